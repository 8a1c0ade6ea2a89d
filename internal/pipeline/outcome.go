package pipeline

import (
	"time"

	"labor/internal/ldt"
	"labor/pkg/models"
)

// Outcome is the terminal state one delivery or replay reached. Every raw message ends
// in exactly one of stored, quarantined, duplicate or permanently_failed.
type Outcome struct {
	Status       string          `json:"status"`
	MessageID    string          `json:"message_id"`
	RawMessageID string          `json:"raw_message_id"`
	ResultID     string          `json:"result_id,omitempty"`
	OwnerID      string          `json:"owner_id,omitempty"`
	BSNR         string          `json:"bsnr,omitempty"`
	LANR         string          `json:"lanr,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	RetryCount   int             `json:"retry_count,omitempty"`
	Identifiers  ldt.Identifiers `json:"-"`
	Source       string          `json:"-"`
}

func (o Outcome) Event(traceID string, at time.Time) models.OutcomeEvent {
	return models.OutcomeEvent{
		Status:       o.Status,
		MessageID:    o.MessageID,
		RawMessageID: o.RawMessageID,
		ResultID:     o.ResultID,
		OwnerID:      o.OwnerID,
		BSNR:         o.BSNR,
		LANR:         o.LANR,
		Reason:       o.Reason,
		RetryCount:   o.RetryCount,
		Source:       o.Source,
		Timestamp:    at,
		TraceID:      traceID,
	}
}

func (o Outcome) AuditEvent(eventType, idempotencyKey, traceID string, at time.Time) models.AuditEvent {
	return models.AuditEvent{
		EventType:      eventType,
		RawMessageID:   o.RawMessageID,
		MessageID:      o.MessageID,
		IdempotencyKey: idempotencyKey,
		Source:         o.Source,
		Status:         o.Status,
		ResultID:       o.ResultID,
		OwnerID:        o.OwnerID,
		BSNR:           o.BSNR,
		LANR:           o.LANR,
		BSNRSource:     string(o.Identifiers.BSNRSource),
		LANRSource:     string(o.Identifiers.LANRSource),
		Reason:         o.Reason,
		RetryCount:     o.RetryCount,
		TraceID:        traceID,
		Timestamp:      at,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
