package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"labor/internal/config"
	"labor/internal/logger"
	"labor/internal/owner"
	"labor/pkg/bootstrap"
	"labor/pkg/models"
)

const (
	containerStartupTimeout = 60

	validPayload  = "01380008230\n0180201793860200\n0180212772720053\n0173101Mustermann\n0138410GLUC\n01284200054"
	brokenPayload = "0180201793860200\n01234\n0180212772720053"
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestConfig() *config.Config {
	return &config.Config{
		Ingestion: config.IngestionConfig{
			HashAlgorithm: "sha256",
			MaxRetries:    2,
			RetryBackoff: config.RetryConfig{
				InitialInterval: time.Millisecond,
				MaxInterval:     10 * time.Millisecond,
				Multiplier:      2,
			},
			ClaimTTL:     time.Minute,
			StoreTimeout: 5 * time.Second,
		},
		Worker: config.WorkerConfig{
			BatchSize:     10,
			LeaseDuration: time.Minute,
			Concurrency:   2,
		},
		OwnerCache: config.OwnerCacheConfig{
			Enabled:     true,
			TTL:         time.Minute,
			NegativeTTL: time.Minute,
		},
		Audit: config.AuditConfig{
			Enabled:    true,
			Collection: "ingestion_audit",
		},
		Database: config.DatabaseConfig{
			MongoDB: config.MongoDBConfig{Database: "labor_test"},
		},
	}
}

// buildPipeline wires the production object graph over the test containers.
func buildPipeline(t *testing.T, infra *TestInfra, cfg *config.Config) *bootstrap.Pipeline {
	t.Helper()

	base := bootstrap.NewBase(cfg, createTestLogger(), "integration-test")
	base.Stores = &bootstrap.Stores{
		Postgres: infra.PostgresDB,
		Redis:    infra.RedisClient,
		Mongo:    infra.MongoClient,
	}
	p, err := base.BuildPipeline(context.Background())
	require.NoError(t, err)
	return p
}

func seedOwner(t *testing.T, db *sql.DB, o owner.Owner) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`INSERT INTO owners (id, tenant_id, user_id, bsnr, lanr) VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.TenantID, o.UserID, o.BSNR, o.LANR)
	require.NoError(t, err)
}

func createTestDelivery(messageID, payload string) *models.Delivery {
	return models.NewDeliveryBuilder(models.SourceHTTP).
		WithMessageID(messageID).
		WithPayload([]byte(payload)).
		WithReceivedAt(time.Now().UTC()).
		Build()
}

func rawStatus(t *testing.T, db *sql.DB, rawMessageID string) string {
	t.Helper()
	var status string
	err := db.QueryRowContext(context.Background(),
		`SELECT status FROM raw_messages WHERE id = $1`, rawMessageID).Scan(&status)
	require.NoError(t, err)
	return status
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM `+table).Scan(&n)
	require.NoError(t, err)
	return n
}
