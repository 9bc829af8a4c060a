package emission

import "strings"

// Status is the lifecycle state of a single emission, as reported by the
// remote stateId field.
type Status string

const (
	StatusIssuedUnsealed   Status = "issued_unsealed"
	StatusSealed           Status = "sealed"
	StatusRejected         Status = "rejected"
	StatusIssuedWithError  Status = "issued_with_error"
	StatusDuplicated       Status = "duplicated"
	StatusReIssued         Status = "re_issued"
	StatusSealedWithError  Status = "sealed_with_error"
	StatusSentWithError    Status = "sent_with_error"
	StatusSentWithErrorEU  Status = "sent_with_error_eu"
	StatusQueuedForSealing Status = "queued_for_sealing"
	StatusQueuedForSending Status = "queued_for_sending"
	StatusSentToValidation Status = "sent_to_validation"
	StatusUnknown          Status = "unknown"
)

var statusOrder = []Status{
	StatusIssuedUnsealed,
	StatusSealed,
	StatusRejected,
	StatusIssuedWithError,
	StatusDuplicated,
	StatusReIssued,
	StatusSealedWithError,
	StatusSentWithError,
	StatusSentWithErrorEU,
	StatusQueuedForSealing,
	StatusQueuedForSending,
	StatusSentToValidation,
	StatusUnknown,
}

// Statuses returns the closed set in remote code order.
func Statuses() []Status {
	return append([]Status(nil), statusOrder...)
}

// StatusFromCode maps a remote stateId. Nil, 13 and any code outside the
// known range map to StatusUnknown.
func StatusFromCode(code *int) Status {
	if code == nil {
		return StatusUnknown
	}
	switch *code {
	case 1:
		return StatusIssuedUnsealed
	case 2:
		return StatusSealed
	case 3:
		return StatusRejected
	case 4:
		return StatusIssuedWithError
	case 5:
		return StatusDuplicated
	case 6:
		return StatusReIssued
	case 7:
		return StatusSealedWithError
	case 8:
		return StatusSentWithError
	case 9:
		return StatusSentWithErrorEU
	case 10:
		return StatusQueuedForSealing
	case 11:
		return StatusQueuedForSending
	case 12:
		return StatusSentToValidation
	default:
		return StatusUnknown
	}
}

// Code returns the remote stateId for the status.
func (s Status) Code() int {
	for i, candidate := range statusOrder {
		if candidate == s {
			return i + 1
		}
	}
	return len(statusOrder)
}

func (s Status) Known() bool {
	for _, candidate := range statusOrder {
		if candidate == s {
			return true
		}
	}
	return false
}

// Normalize folds anything outside the closed set into StatusUnknown.
func (s Status) Normalize() Status {
	if s.Known() {
		return s
	}
	return StatusUnknown
}

// Pending reports whether the status still needs a seal action or further
// polling. SentWithError and SentWithErrorEU are retried by the remote seal
// action, so they stay pending.
func (s Status) Pending() bool {
	switch s {
	case StatusQueuedForSealing, StatusQueuedForSending, StatusSentWithError, StatusSentWithErrorEU:
		return true
	}
	return false
}

func (s Status) Label() string {
	switch s.Normalize() {
	case StatusIssuedUnsealed:
		return "Issued (not sealed)"
	case StatusSealed:
		return "Sealed"
	case StatusRejected:
		return "Rejected"
	case StatusIssuedWithError:
		return "Issued with error"
	case StatusDuplicated:
		return "Duplicated"
	case StatusReIssued:
		return "Re-Issued"
	case StatusSealedWithError:
		return "Sealed with error"
	case StatusSentWithError:
		return "Sent with error"
	case StatusSentWithErrorEU:
		return "Sent with error (EU)"
	case StatusQueuedForSealing:
		return "Queued for sealing"
	case StatusQueuedForSending:
		return "Queued for sending"
	case StatusSentToValidation:
		return "Sent to validation"
	default:
		return "No status"
	}
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus accepts the canonical names. Unrecognized input is Unknown.
func ParseStatus(raw string) Status {
	return Status(strings.TrimSpace(strings.ToLower(raw))).Normalize()
}
