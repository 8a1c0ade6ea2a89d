package pipeline

import (
	"context"

	"labor/internal/broker"
	"labor/pkg/models"
)

// KafkaHandler adapts Ingest to the broker consumer. Only failures without an outcome
// are returned, so the consumer retries store failures and leaves every terminal outcome
// committed.
func KafkaHandler(ingester Ingester) broker.HandlerFunc {
	return func(ctx context.Context, d *models.Delivery) error {
		_, err := ingester.Ingest(ctx, d)
		return err
	}
}
