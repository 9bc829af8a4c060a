package gojob

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-certidigital/adapters/gologger"
	"github.com/goliatone/go-certidigital/core"
	"github.com/goliatone/go-certidigital/emission"
	"github.com/goliatone/go-certidigital/workflow"
	goerrors "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// Resumer continues polling a block issued earlier.
type Resumer interface {
	Resume(ctx context.Context, blockID string) (emission.PollResult, error)
}

// PollWorker drains poll messages and resumes each block. Blocks that time
// out are requeued with backoff until the retry policy gives up.
type PollWorker struct {
	dequeuer queue.Dequeuer
	resumer  Resumer
	policy   RetryPolicy
	hook     worker.Hook
	logger   job.Logger
	idle     time.Duration
	now      func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

type PollWorkerOption func(*PollWorker)

func WithRetryPolicy(policy RetryPolicy) PollWorkerOption {
	return func(w *PollWorker) {
		w.policy = policy
	}
}

func WithHook(hook worker.Hook) PollWorkerOption {
	return func(w *PollWorker) {
		w.hook = hook
	}
}

// WithLogger sets the go-job logger; gologger.ForPollWorker bridges a glog
// logger or provider.
func WithLogger(logger job.Logger) PollWorkerOption {
	return func(w *PollWorker) {
		w.logger = logger
	}
}

// WithIdleDelay sets how long Run sleeps after a failed dequeue.
func WithIdleDelay(delay time.Duration) PollWorkerOption {
	return func(w *PollWorker) {
		w.idle = delay
	}
}

func NewPollWorker(dequeuer queue.Dequeuer, resumer Resumer, opts ...PollWorkerOption) *PollWorker {
	w := &PollWorker{
		dequeuer: dequeuer,
		resumer:  resumer,
		policy:   DefaultRetryPolicy(),
		idle:     time.Second,
		now:      time.Now,
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.logger = ensureJobLogger(w.logger)
	return w
}

// Run processes deliveries until ctx is done.
func (w *PollWorker) Run(ctx context.Context) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := w.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("certidigital poll worker dequeue failed", "error", err)
			if timer == nil {
				timer = time.NewTimer(w.idle)
			} else {
				timer.Reset(w.idle)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
		}
	}
}

// ProcessNext handles a single delivery. The returned error is about the
// queue itself; poll failures are settled through ack or nack.
func (w *PollWorker) ProcessNext(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.resumer == nil {
		return fmt.Errorf("gojob: poll worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	return w.handle(ctx, delivery)
}

func (w *PollWorker) handle(ctx context.Context, delivery queue.Delivery) error {
	// settling must outlive a shutdown that cancelled the poll
	settleCtx := context.WithoutCancel(ctx)

	raw := delivery.Message()
	msg, err := FromExecutionMessage(raw)
	if err != nil {
		w.logger.Error("certidigital poll message rejected", "error", err)
		return delivery.Nack(settleCtx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
	}

	attempt := w.nextAttempt(msg.BlockID)
	event := worker.Event{Message: raw, Delivery: delivery, Attempt: attempt, StartedAt: w.now()}
	w.onStart(ctx, event)

	result, pollErr := w.resumer.Resume(ctx, msg.BlockID)
	event.Duration = w.now().Sub(event.StartedAt)
	event.Err = pollErr

	switch {
	case pollErr == nil && result.Outcome == emission.OutcomeResolved:
		w.forget(msg.BlockID)
		w.onSuccess(ctx, event)
		w.logger.Info("certidigital poll resolved", "block_id", msg.BlockID, "attempt", attempt, "polls", result.Attempts)
		return delivery.Ack(settleCtx)
	case pollErr == nil:
		// cancelled while polling; hand the block back untouched
		return delivery.Nack(settleCtx, queue.NackOptions{Requeue: true, Reason: string(result.Outcome)})
	}

	opts := w.nackOptions(pollErr, attempt)
	event.Delay = opts.Delay
	if opts.Requeue {
		w.onRetry(ctx, event)
	} else {
		w.forget(msg.BlockID)
		w.onFailure(ctx, event)
	}
	w.logger.Warn("certidigital poll not resolved",
		"block_id", msg.BlockID,
		"attempt", attempt,
		"requeue", opts.Requeue,
		"dead_letter", opts.DeadLetter,
		"error", pollErr,
	)
	return delivery.Nack(settleCtx, opts)
}

func (w *PollWorker) nackOptions(err error, attempt int) queue.NackOptions {
	if permanent(err) {
		return queue.NackOptions{DeadLetter: true, Reason: err.Error()}
	}
	return w.policy.NormalizeAttempt(queue.NackOptions{
		Delay:   w.policy.Backoff(attempt),
		Requeue: true,
		Reason:  err.Error(),
	}, attempt)
}

// permanent errors will not change by polling again.
func permanent(err error) bool {
	if emission.IsPollingTimeout(err) || emission.IsRemoteUnavailable(err) {
		return false
	}
	if emission.IsNotFound(err) || emission.IsMalformedJobRecord(err) {
		return true
	}
	if errors.Is(err, workflow.ErrCheckpointNotFound) {
		return true
	}
	return core.IsCategory(err, goerrors.CategoryBadInput) || core.IsCategory(err, goerrors.CategoryValidation)
}

func (w *PollWorker) nextAttempt(blockID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[blockID]++
	return w.attempts[blockID]
}

func (w *PollWorker) forget(blockID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, blockID)
}

func (w *PollWorker) onStart(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *PollWorker) onSuccess(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *PollWorker) onFailure(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

func (w *PollWorker) onRetry(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnRetry(ctx, event)
	}
}

// LoggingHook reports worker events through the go-job logger.
type LoggingHook struct {
	Logger job.Logger
}

func (h LoggingHook) OnStart(_ context.Context, event worker.Event) {
	ensureJobLogger(h.Logger).Debug("certidigital poll started", eventFields(event)...)
}

func (h LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	ensureJobLogger(h.Logger).Info("certidigital poll succeeded", eventFields(event)...)
}

func (h LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	ensureJobLogger(h.Logger).Error("certidigital poll failed", eventFields(event)...)
}

func (h LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	ensureJobLogger(h.Logger).Warn("certidigital poll retry scheduled", eventFields(event)...)
}

func ensureJobLogger(logger job.Logger) job.Logger {
	if logger != nil {
		return logger
	}
	return gologger.ToJobLogger(glog.Nop())
}

func eventFields(event worker.Event) []any {
	fields := []any{"attempt", event.Attempt, "duration", event.Duration}
	if event.Message != nil {
		fields = append(fields, "job_id", event.Message.JobID, "block_id", event.Message.Parameters[paramBlockID])
	}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay)
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err)
	}
	return fields
}

var (
	_ worker.Hook = LoggingHook{}
	_ Resumer     = (*workflow.Issuer)(nil)
)
