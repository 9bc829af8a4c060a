package emission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	DefaultPollInterval    = 10 * time.Second
	DefaultPollMaxAttempts = 180
)

// StatusProvider returns the current jobs of a batch.
type StatusProvider interface {
	FetchBatch(ctx context.Context, batchID string) ([]Job, error)
}

// SealSubmitter submits a seal action over a list of job ids. Implementations
// must be idempotent per id: sealing is a set operation.
type SealSubmitter interface {
	SubmitSeal(ctx context.Context, batchID string, ids []string) (SealAck, error)
}

type SealAck struct {
	AcceptedCount int
}

type FetchFunc func(ctx context.Context, batchID string) ([]Job, error)

func (f FetchFunc) FetchBatch(ctx context.Context, batchID string) ([]Job, error) {
	return f(ctx, batchID)
}

type SubmitFunc func(ctx context.Context, batchID string, ids []string) (SealAck, error)

func (f SubmitFunc) SubmitSeal(ctx context.Context, batchID string, ids []string) (SealAck, error) {
	return f(ctx, batchID, ids)
}

// State is a step of the per-batch polling state machine.
type State string

const (
	StateFetching     State = "fetching"
	StateSummarizing  State = "summarizing"
	StateActionNeeded State = "action_needed"
	StateSubmitting   State = "submitting"
	StateResolved     State = "resolved"
)

type Outcome string

const (
	OutcomeResolved  Outcome = "resolved"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
)

type PollResult struct {
	BatchID string
	Outcome Outcome
	Report  StatusReport
	// Observed is false when no fetch succeeded; Report is then an empty
	// placeholder and must not be read as progress.
	Observed    bool
	Attempts    int
	Submissions int
	// Accepted sums the advisory counts returned by the submitter. The
	// authoritative pending count is always Report.PendingCount.
	Accepted int
}

type TransitionHook func(batchID string, from State, to State)

type Tracker struct {
	provider           StatusProvider
	submitter          SealSubmitter
	interval           time.Duration
	maxAttempts        int
	failFastOnNotFound bool
	logger             glog.Logger
	onTransition       TransitionHook
	wait               func(ctx context.Context, delay time.Duration) error
}

type TrackerOption func(*Tracker)

func WithInterval(interval time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.interval = interval
	}
}

func WithMaxAttempts(attempts int) TrackerOption {
	return func(t *Tracker) {
		t.maxAttempts = attempts
	}
}

// WithFailFastOnNotFound stops polling as soon as the batch is reported
// missing instead of retrying until the attempt budget runs out.
func WithFailFastOnNotFound(enabled bool) TrackerOption {
	return func(t *Tracker) {
		t.failFastOnNotFound = enabled
	}
}

func WithLogger(logger glog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

func WithTransitionHook(hook TransitionHook) TrackerOption {
	return func(t *Tracker) {
		t.onTransition = hook
	}
}

func withWaiter(wait func(ctx context.Context, delay time.Duration) error) TrackerOption {
	return func(t *Tracker) {
		t.wait = wait
	}
}

func NewTracker(provider StatusProvider, submitter SealSubmitter, opts ...TrackerOption) *Tracker {
	tracker := &Tracker{
		provider:    provider,
		submitter:   submitter,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultPollMaxAttempts,
		wait:        waitWithContext,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(tracker)
	}
	if tracker.interval < 0 {
		tracker.interval = 0
	}
	tracker.logger = glog.Ensure(tracker.logger)
	if tracker.wait == nil {
		tracker.wait = waitWithContext
	}
	return tracker
}

// PollUntilResolved runs a single polling loop with the given collaborators.
func PollUntilResolved(
	ctx context.Context,
	batchID string,
	fetch StatusProvider,
	submit SealSubmitter,
	interval time.Duration,
	maxAttempts int,
) (PollResult, error) {
	return NewTracker(fetch, submit, WithInterval(interval), WithMaxAttempts(maxAttempts)).Poll(ctx, batchID)
}

// SubmitSealAction asks the submitter to seal ids and returns its advisory
// accepted count. An empty id list is a no-op.
func (t *Tracker) SubmitSealAction(ctx context.Context, batchID string, pendingIDs []string) (int, error) {
	if t == nil || t.submitter == nil {
		return 0, fmt.Errorf("emission: seal submitter is not configured")
	}
	if len(pendingIDs) == 0 {
		return 0, nil
	}
	ack, err := t.submitter.SubmitSeal(ctx, batchID, append([]string(nil), pendingIDs...))
	if err != nil {
		return 0, err
	}
	return ack.AcceptedCount, nil
}

// Poll drives fetch -> summarize -> submit -> sleep until the batch has no
// pending jobs, the attempt budget is spent (TimeoutError) or ctx is done
// (OutcomeCancelled with a nil error).
func (t *Tracker) Poll(ctx context.Context, batchID string) (PollResult, error) {
	if t == nil || t.provider == nil {
		return PollResult{}, fmt.Errorf("emission: status provider is not configured")
	}
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return PollResult{}, fmt.Errorf("emission: block id is required")
	}
	if t.maxAttempts < 1 {
		return PollResult{}, invalidMaxAttemptsError(t.maxAttempts)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := PollResult{BatchID: batchID, Report: newReport(batchID)}
	state := StateFetching
	var lastErr error

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return t.cancelled(result), nil
		}
		result.Attempts = attempt
		state = t.transition(batchID, state, StateFetching)

		jobs, err := t.provider.FetchBatch(ctx, batchID)
		if err != nil {
			if ctx.Err() != nil {
				return t.cancelled(result), nil
			}
			if t.failFastOnNotFound && IsNotFound(err) {
				return result, err
			}
			lastErr = err
			t.logger.Warn("emissions block fetch failed", "block_id", batchID, "attempt", attempt, "error", err)
		} else {
			state = t.transition(batchID, state, StateSummarizing)
			report, err := Summarize(jobs)
			if err != nil {
				return result, err
			}
			report.BatchID = batchID
			result.Report = report
			result.Observed = true
			lastErr = nil
			t.logReport(report, attempt)

			if report.Resolved() {
				t.transition(batchID, state, StateResolved)
				result.Outcome = OutcomeResolved
				return result, nil
			}

			state = t.transition(batchID, state, StateActionNeeded)
			state = t.transition(batchID, state, StateSubmitting)
			accepted, err := t.SubmitSealAction(ctx, batchID, report.PendingIDs)
			if err != nil {
				if ctx.Err() != nil {
					return t.cancelled(result), nil
				}
				lastErr = err
				t.logger.Warn("seal submission failed", "block_id", batchID, "attempt", attempt, "error", err)
			} else {
				result.Submissions++
				result.Accepted += accepted
				t.logger.Debug("seal submitted", "block_id", batchID, "pending", report.PendingCount, "accepted", accepted)
			}
		}

		if attempt == t.maxAttempts {
			break
		}
		if err := t.wait(ctx, t.interval); err != nil {
			return t.cancelled(result), nil
		}
	}

	result.Outcome = OutcomeTimedOut
	return result, newTimeoutError(batchID, result.Attempts, result.Report, result.Observed, lastErr)
}

// BatchResult pairs a batch id with its polling outcome.
type BatchResult struct {
	Result PollResult
	Err    error
}

// PollMany polls each distinct batch in its own goroutine. Repeated ids are
// polled once.
func (t *Tracker) PollMany(ctx context.Context, batchIDs []string) map[string]BatchResult {
	results := make(map[string]BatchResult, len(batchIDs))
	seen := make(map[string]struct{}, len(batchIDs))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, batchID := range batchIDs {
		batchID := strings.TrimSpace(batchID)
		if batchID == "" {
			continue
		}
		if _, dup := seen[batchID]; dup {
			continue
		}
		seen[batchID] = struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := t.Poll(ctx, batchID)
			mu.Lock()
			results[batchID] = BatchResult{Result: result, Err: err}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func (t *Tracker) cancelled(result PollResult) PollResult {
	result.Outcome = OutcomeCancelled
	t.logger.Info("emissions polling cancelled", "block_id", result.BatchID, "attempts", result.Attempts, "observed", result.Observed, "pending", result.Report.PendingCount)
	return result
}

func (t *Tracker) transition(batchID string, from State, to State) State {
	if t.onTransition != nil && from != to {
		t.onTransition(batchID, from, to)
	}
	return to
}

func (t *Tracker) logReport(report StatusReport, attempt int) {
	args := make([]any, 0, 2*len(statusOrder)+10)
	args = append(args, "block_id", report.BatchID, "attempt", attempt, "total", report.Total(), "pending", report.PendingCount)
	for _, status := range statusOrder {
		if count := report.Counts[status]; count > 0 {
			args = append(args, string(status), count)
		}
	}
	t.logger.Info("emissions block status", args...)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
