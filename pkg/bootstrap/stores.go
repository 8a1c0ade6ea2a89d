package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"labor/internal/config"
	"labor/internal/logger"
	"labor/pkg/migrations"
)

// Stores holds the connections a binary opened. Redis and MongoDB are optional and
// nil when not configured.
type Stores struct {
	Postgres *sql.DB
	Redis    *redis.Client
	Mongo    *mongo.Client
}

// OpenStores connects every configured store. Whatever was opened before a failure is
// closed again.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*Stores, error) {
	s := &Stores{}
	var err error

	if s.Postgres, err = OpenPostgres(ctx, cfg.Postgres); err != nil {
		return nil, err
	}
	log.Infow("PostgreSQL connected", "host", cfg.Postgres.Host, "database", cfg.Postgres.DBName)

	if cfg.RunMigrations {
		if err = migrations.MigratePostgres(s.Postgres); err != nil {
			s.Close(ctx)
			return nil, err
		}
		log.Info("PostgreSQL migrations applied")
	}

	if cfg.Redis.Host != "" {
		if s.Redis, err = openRedis(ctx, cfg.Redis); err != nil {
			s.Close(ctx)
			return nil, err
		}
		log.Infow("Redis connected", "host", cfg.Redis.Host)
	}

	if cfg.MongoDB.URI != "" {
		if s.Mongo, err = openMongo(ctx, cfg.MongoDB); err != nil {
			s.Close(ctx)
			return nil, err
		}
		log.Infow("MongoDB connected", "database", cfg.MongoDB.Database)
	}
	return s, nil
}

// OpenPostgres opens and pings the pool without migrating.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     cfg.DBName,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}

	db, err := sql.Open("postgres", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Host, err)
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return rdb, nil
}

func openMongo(ctx context.Context, cfg config.MongoDBConfig) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// Close is safe on a nil or partially opened Stores.
func (s *Stores) Close(ctx context.Context) []error {
	if s == nil {
		return nil
	}

	var errs []error
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}
	if s.Mongo != nil {
		if err := s.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}
	if s.Postgres != nil {
		if err := s.Postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}
	return errs
}
