package models

import "time"

// AuditEvent is the durable trail entry written for every processing attempt.
type AuditEvent struct {
	EventType      string                 `json:"event_type" bson:"event_type"`
	RawMessageID   string                 `json:"raw_message_id" bson:"raw_message_id"`
	MessageID      string                 `json:"message_id,omitempty" bson:"message_id,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty" bson:"idempotency_key,omitempty"`
	Source         string                 `json:"source" bson:"source"`
	Status         string                 `json:"status" bson:"status"`
	ResultID       string                 `json:"result_id,omitempty" bson:"result_id,omitempty"`
	OwnerID        string                 `json:"owner_id,omitempty" bson:"owner_id,omitempty"`
	BSNR           string                 `json:"bsnr,omitempty" bson:"bsnr,omitempty"`
	LANR           string                 `json:"lanr,omitempty" bson:"lanr,omitempty"`
	BSNRSource     string                 `json:"bsnr_source,omitempty" bson:"bsnr_source,omitempty"`
	LANRSource     string                 `json:"lanr_source,omitempty" bson:"lanr_source,omitempty"`
	Reason         string                 `json:"reason,omitempty" bson:"reason,omitempty"`
	RetryCount     int                    `json:"retry_count" bson:"retry_count"`
	Details        map[string]interface{} `json:"details,omitempty" bson:"details,omitempty"`
	TraceID        string                 `json:"trace_id,omitempty" bson:"trace_id,omitempty"`
	Timestamp      time.Time              `json:"timestamp" bson:"timestamp"`
}

const (
	AuditEventIngested      = "ingested"
	AuditEventReplayed      = "replayed"
	AuditEventOwnerAssigned = "owner_assigned"
)
