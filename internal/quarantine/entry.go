// Package quarantine holds messages that could not be decoded and replays them on a
// backoff schedule until they succeed or exhaust their retries.
package quarantine

import (
	"errors"
	"time"

	"labor/internal/ldt"
	apperrors "labor/pkg/errors"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusPermanentlyFailed Status = "permanently_failed"
	StatusResolved          Status = "resolved"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPermanentlyFailed, StatusResolved:
		return true
	default:
		return false
	}
}

const (
	ReasonDecodeError     = "decode_error"
	ReasonEmptyMessage    = "empty_message"
	// ReasonRejectedByStore marks text the database refused to store.
	ReasonRejectedByStore = "rejected_by_store"
)

// ErrorDetails is enough to reproduce a failure without reloading the payload.
type ErrorDetails struct {
	Kind    string `json:"kind"`
	Rule    string `json:"rule,omitempty"`
	Field   string `json:"field,omitempty"`
	Line    int    `json:"line,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
	Message string `json:"message"`
}

// DetailsFromError extracts the structured detail of a decode failure.
func DetailsFromError(err error) ErrorDetails {
	var decodeErr *ldt.DecodeError
	if errors.As(err, &decodeErr) {
		kind := ReasonDecodeError
		if decodeErr.Reason == ldt.ReasonEmptyMessage {
			kind = ReasonEmptyMessage
		}
		return ErrorDetails{
			Kind:    kind,
			Rule:    string(decodeErr.Reason),
			Field:   decodeErr.Field,
			Line:    decodeErr.Line,
			Excerpt: decodeErr.Excerpt,
			Message: decodeErr.Error(),
		}
	}
	if apperrors.HasCode(err, apperrors.ErrInvalidPayload) {
		return ErrorDetails{Kind: ReasonRejectedByStore, Message: err.Error()}
	}
	return ErrorDetails{Kind: "error", Message: err.Error()}
}

// Entry is mutated only by the holder of its lease. Version increments on every write
// and guards each update.
type Entry struct {
	ID           string       `json:"id"`
	RawMessageID string       `json:"raw_message_id"`
	Reason       string       `json:"reason"`
	ErrorDetails ErrorDetails `json:"error_details"`
	RetryCount   int          `json:"retry_count"`
	Status       Status       `json:"status"`
	LastRetryAt  *time.Time   `json:"last_retry_at,omitempty"`
	NextRetryAt  *time.Time   `json:"next_retry_at,omitempty"`
	LeaseUntil   *time.Time   `json:"lease_until,omitempty"`
	Version      int          `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type ListFilter struct {
	Status Status
	Reason string
	Limit  int
	Offset int
}
