package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureAuditIndexes creates the indexes the audit trail is queried by. The collection
// itself is created on first insert.
func EnsureAuditIndexes(ctx context.Context, db *mongo.Database, collectionName string) error {
	collection := db.Collection(collectionName)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "raw_message_id", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("idx_audit_raw_message_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_status_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "bsnr", Value: 1}, {Key: "lanr", Value: 1}},
			Options: options.Index().SetName("idx_audit_bsnr_lanr").SetSparse(true),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create audit indexes: %w", err)
		}
	}
	return nil
}
