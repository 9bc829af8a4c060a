package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDEmissionPoll = "certidigital.emissions.poll"

	paramBlockID = "block_id"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       30 * time.Second,
		MaxDelay:        10 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// Backoff doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// PollMessage asks a worker to resume polling one emissions block.
type PollMessage struct {
	BlockID string
}

// ToExecutionMessage maps a poll request to go-job. The block id doubles as
// the idempotency key so a block is never queued twice.
func ToExecutionMessage(msg PollMessage) *job.ExecutionMessage {
	blockID := strings.TrimSpace(msg.BlockID)
	return &job.ExecutionMessage{
		JobID:          JobIDEmissionPoll,
		ScriptPath:     JobIDEmissionPoll,
		Parameters:     map[string]any{paramBlockID: blockID},
		IdempotencyKey: JobIDEmissionPoll + ":" + blockID,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// FromExecutionMessage reads a poll request back from go-job.
func FromExecutionMessage(msg *job.ExecutionMessage) (PollMessage, error) {
	if msg == nil {
		return PollMessage{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDEmissionPoll {
		return PollMessage{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	raw, _ := msg.Parameters[paramBlockID].(string)
	blockID := strings.TrimSpace(raw)
	if blockID == "" {
		return PollMessage{}, fmt.Errorf("gojob: %s parameter is required", paramBlockID)
	}
	return PollMessage{BlockID: blockID}, nil
}

type PollEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewPollEnqueuer(enqueuer queue.Enqueuer) *PollEnqueuer {
	return &PollEnqueuer{enqueuer: enqueuer}
}

func (a *PollEnqueuer) EnqueuePoll(ctx context.Context, blockID string) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if strings.TrimSpace(blockID) == "" {
		return fmt.Errorf("gojob: block id is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(PollMessage{BlockID: blockID}))
}
