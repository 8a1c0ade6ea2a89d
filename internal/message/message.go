// Package message holds the durable raw message as received from a transport.
package message

import (
	"time"

	"labor/internal/ldt"
)

type Status string

const (
	// StatusReceived marks a claimed message that has not reached a terminal outcome yet.
	StatusReceived          Status = "received"
	StatusStored            Status = "stored"
	StatusQuarantined       Status = "quarantined"
	StatusPermanentlyFailed Status = "permanently_failed"
	// StatusReleased marks a claim given up after a store failure; redelivery may reclaim it.
	StatusReleased Status = "released"
)

// Raw is the payload bytes plus the transport metadata that arrived with them. The
// payload is never modified after the first insert.
type Raw struct {
	ID                 string    `json:"id"`
	IdempotencyKey     string    `json:"idempotency_key"`
	TransportMessageID string    `json:"transport_message_id,omitempty"`
	Source             string    `json:"source"`
	Payload            []byte    `json:"-"`
	Hints              ldt.Hints `json:"hints"`
	Status             Status    `json:"status"`
	ResultID           *string   `json:"result_id,omitempty"`
	ReceivedAt         time.Time `json:"received_at"`
	ClaimedAt          time.Time `json:"claimed_at"`
}

// Terminal reports whether the message reached an outcome that a redelivery must not
// reprocess.
func (s Status) Terminal() bool {
	switch s {
	case StatusStored, StatusQuarantined, StatusPermanentlyFailed:
		return true
	default:
		return false
	}
}
