package models

import "time"

const (
	SourceKafka = "kafka"
	SourceHTTP  = "http"
	SourceRetry = "retry"
)

// Delivery is one inbound raw LDT payload as handed over by a transport.
type Delivery struct {
	MessageID      string    `json:"message_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Payload        []byte    `json:"payload"`
	BSNRHint       string    `json:"bsnr_hint,omitempty"`
	LANRHint       string    `json:"lanr_hint,omitempty"`
	Source         string    `json:"source"`
	ReceivedAt     time.Time `json:"received_at"`
}

const (
	OutcomeStored            = "stored"
	OutcomeQuarantined       = "quarantined"
	OutcomeDuplicate         = "duplicate"
	OutcomePermanentlyFailed = "permanently_failed"
)

// OutcomeEvent is published for every delivery that reached a terminal outcome.
type OutcomeEvent struct {
	Status       string    `json:"status"`
	MessageID    string    `json:"message_id"`
	RawMessageID string    `json:"raw_message_id"`
	ResultID     string    `json:"result_id,omitempty"`
	OwnerID      string    `json:"owner_id,omitempty"`
	BSNR         string    `json:"bsnr,omitempty"`
	LANR         string    `json:"lanr,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RetryCount   int       `json:"retry_count,omitempty"`
	Source       string    `json:"source"`
	Timestamp    time.Time `json:"timestamp"`
	TraceID      string    `json:"trace_id,omitempty"`
}
