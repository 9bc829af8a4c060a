package emission

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorMalformedJobRecord = "EMISSION_MALFORMED_JOB_RECORD"
	ErrorRemoteUnavailable  = "EMISSION_REMOTE_UNAVAILABLE"
	ErrorNotFound           = "EMISSION_NOT_FOUND"
	ErrorPollingTimeout     = "EMISSION_POLLING_TIMEOUT"
	ErrorInvalidPolling     = "EMISSION_INVALID_POLLING"
)

func invalidMaxAttemptsError(attempts int) error {
	return goerrors.New(fmt.Sprintf("emission: max attempts must be at least 1, got %d", attempts), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorInvalidPolling).
		WithMetadata(map[string]any{"max_attempts": attempts})
}

func malformedJobRecordError(index int) error {
	return goerrors.New(fmt.Sprintf("emission: job record at index %d has no id", index), goerrors.CategoryBadInput).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(ErrorMalformedJobRecord).
		WithMetadata(map[string]any{"index": index})
}

// RemoteUnavailable wraps a transient collaborator failure.
func RemoteUnavailable(source error, batchID string) error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, "emission: remote system unavailable").
		WithCode(http.StatusBadGateway).
		WithTextCode(ErrorRemoteUnavailable).
		WithMetadata(map[string]any{"block_id": batchID})
}

// NotFound reports an unknown batch id.
func NotFound(batchID string) error {
	return goerrors.New(fmt.Sprintf("emission: emissions block %q not found", batchID), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorNotFound).
		WithMetadata(map[string]any{"block_id": batchID})
}

// TimeoutError is returned when the attempt budget runs out before the batch
// resolves. It carries the last report observed so callers can inspect
// progress and resume later with the same batch id. Observed is false when
// every fetch failed and Report holds nothing.
type TimeoutError struct {
	BatchID  string
	Attempts int
	Report   StatusReport
	Observed bool
	LastErr  error
	envelope *goerrors.Error
}

func newTimeoutError(batchID string, attempts int, report StatusReport, observed bool, lastErr error) *TimeoutError {
	message := fmt.Sprintf("emission: block %q still has %d pending emissions after %d attempts", batchID, report.PendingCount, attempts)
	metadata := map[string]any{
		"block_id": batchID,
		"attempts": attempts,
		"observed": observed,
	}
	if observed {
		metadata["pending_count"] = report.PendingCount
	} else {
		message = fmt.Sprintf("emission: block %q has no report observed after %d attempts", batchID, attempts)
	}
	envelope := goerrors.New(message, goerrors.CategoryOperation).
		WithCode(http.StatusAccepted).
		WithTextCode(ErrorPollingTimeout).
		WithMetadata(metadata)
	envelope.Source = lastErr
	return &TimeoutError{
		BatchID:  batchID,
		Attempts: attempts,
		Report:   report.clone(),
		Observed: observed,
		LastErr:  lastErr,
		envelope: envelope,
	}
}

func (e *TimeoutError) Error() string {
	if e == nil || e.envelope == nil {
		return "emission: polling timeout"
	}
	return e.envelope.Error()
}

func (e *TimeoutError) Unwrap() error {
	if e == nil || e.envelope == nil {
		return nil
	}
	return e.envelope
}

func IsPollingTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// ReportFromError recovers the last report carried by a polling timeout. It
// reports false when err is not a timeout or no report was ever observed.
func ReportFromError(err error) (StatusReport, bool) {
	var timeout *TimeoutError
	if !errors.As(err, &timeout) || !timeout.Observed {
		return StatusReport{}, false
	}
	return timeout.Report.clone(), true
}

func IsMalformedJobRecord(err error) bool {
	return hasTextCode(err, ErrorMalformedJobRecord)
}

// IsNotFound matches both the emission envelope and any not-found category
// error surfaced by a collaborator.
func IsNotFound(err error) bool {
	if hasTextCode(err, ErrorNotFound) {
		return true
	}
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.Category == goerrors.CategoryNotFound
}

func IsRemoteUnavailable(err error) bool {
	if hasTextCode(err, ErrorRemoteUnavailable) {
		return true
	}
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.Category == goerrors.CategoryExternal
}

func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}
