package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"labor/internal/constants"
	"labor/pkg/models"
)

// OutcomePublisher announces terminal outcomes on the output topic, keyed by raw
// message id so that all outcomes of one message land on the same partition.
type OutcomePublisher struct {
	producer Producer
	topic    string
}

func NewOutcomePublisher(producer Producer, topic string) *OutcomePublisher {
	return &OutcomePublisher{producer: producer, topic: topic}
}

func (p *OutcomePublisher) PublishOutcome(ctx context.Context, event models.OutcomeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome event: %w", err)
	}
	return p.producer.Publish(ctx, p.topic, Message{
		Key:   event.RawMessageID,
		Value: body,
		Headers: map[string]string{
			constants.HeaderMessageID: event.MessageID,
		},
	})
}
