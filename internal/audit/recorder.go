// Package audit keeps the trail of every terminal outcome the pipeline reached.
package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"labor/internal/constants"
	"labor/internal/logger"
	"labor/pkg/models"
)

// Recorder persists audit events. Recording is best effort: callers log failures and
// carry on, the outcome itself is already durable in Postgres.
type Recorder interface {
	Record(ctx context.Context, event models.AuditEvent) error
}

type MongoRecorder struct {
	collection *mongo.Collection
}

func NewMongoRecorder(db *mongo.Database, collection string) *MongoRecorder {
	if collection == "" {
		collection = constants.DefaultAuditCollection
	}
	return &MongoRecorder{collection: db.Collection(collection)}
}

func (r *MongoRecorder) Record(ctx context.Context, event models.AuditEvent) error {
	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ByRawMessage returns the trail of one raw message, oldest first.
func (r *MongoRecorder) ByRawMessage(ctx context.Context, rawMessageID string) ([]models.AuditEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"raw_message_id": rawMessageID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []models.AuditEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode audit events: %w", err)
	}
	return events, nil
}

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, models.AuditEvent) error { return nil }

// LoggingRecorder wraps a Recorder and logs instead of returning failures.
type LoggingRecorder struct {
	next   Recorder
	logger logger.Logger
}

func NewLoggingRecorder(next Recorder, log logger.Logger) *LoggingRecorder {
	return &LoggingRecorder{next: next, logger: log}
}

func (r *LoggingRecorder) Record(ctx context.Context, event models.AuditEvent) error {
	if err := r.next.Record(ctx, event); err != nil {
		r.logger.WarnwCtx(ctx, "Failed to record audit event",
			"event_type", event.EventType,
			"raw_message_id", event.RawMessageID,
			"error", err,
		)
	}
	return nil
}
