package bootstrap

import (
	"context"
	"fmt"

	"labor/internal/audit"
	"labor/internal/broker"
	"labor/internal/constants"
	"labor/internal/idempotency"
	"labor/internal/owner"
	"labor/internal/pipeline"
	"labor/internal/quarantine"
	"labor/internal/result"
	"labor/internal/storage"
	"labor/pkg/migrations"
)

// Pipeline is the ingestion object graph shared by the ingest service, the retry worker
// and the admin service.
type Pipeline struct {
	Service    *pipeline.Service
	Quarantine *quarantine.Service
	// Audit is nil when no audit store is configured.
	Audit *audit.MongoRecorder
}

// BuildPipeline wires repositories, caches and breakers over b.Stores. Without a
// producer outcomes are not published.
func (b *Base) BuildPipeline(ctx context.Context) (*Pipeline, error) {
	cfg, stores := b.Config, b.Stores
	tx := storage.NewTxManager(stores.Postgres)

	var rawRepo idempotency.Repository = idempotency.NewRepository(stores.Postgres)
	var directory owner.Directory = owner.NewPostgresDirectory(stores.Postgres, b.Service)
	if cfg.CircuitBreaker.Enabled {
		rawRepo = idempotency.NewCircuitBreakerRepository(rawRepo, cfg.CircuitBreaker)
		directory = owner.NewCircuitBreakerDirectory(directory, cfg.CircuitBreaker)
		b.Logger.Info("Circuit breakers enabled for raw message store and owner directory")
	}
	if cfg.OwnerCache.Enabled && stores.Redis != nil {
		directory = owner.NewCachedDirectory(directory, stores.Redis, cfg.OwnerCache, b.Logger)
		b.Logger.Infow("Owner cache enabled", "ttl", cfg.OwnerCache.TTL, "negative_ttl", cfg.OwnerCache.NegativeTTL)
	}

	quarantineSvc := quarantine.NewService(quarantine.NewRepository(stores.Postgres), tx, cfg.Ingestion, cfg.Worker, b.Logger)

	var opts []pipeline.Option
	if b.Producer != nil && cfg.Broker.Kafka.OutputTopic != "" {
		opts = append(opts, pipeline.WithPublisher(broker.NewOutcomePublisher(b.Producer, cfg.Broker.Kafka.OutputTopic)))
	}

	var recorder *audit.MongoRecorder
	if cfg.Audit.Enabled && stores.Mongo != nil {
		dbName := cfg.Database.MongoDB.Database
		if dbName == "" {
			dbName = constants.DefaultMongoDBName
		}
		db := stores.Mongo.Database(dbName)
		if err := migrations.EnsureAuditIndexes(ctx, db, cfg.Audit.Collection); err != nil {
			return nil, fmt.Errorf("failed to ensure audit indexes: %w", err)
		}
		recorder = audit.NewMongoRecorder(db, cfg.Audit.Collection)
		opts = append(opts, pipeline.WithRecorder(audit.NewLoggingRecorder(recorder, b.Logger)))
	}

	svc := pipeline.NewService(
		idempotency.NewGuard(rawRepo, cfg.Ingestion, b.Logger),
		owner.NewMatcher(directory, b.Logger),
		quarantineSvc,
		result.NewMaterializer(result.NewRepository(stores.Postgres), tx, b.Logger),
		cfg.Ingestion,
		b.Logger,
		opts...,
	)

	return &Pipeline{Service: svc, Quarantine: quarantineSvc, Audit: recorder}, nil
}
