package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
)

// Ping is a Checker backed by a function.
type Ping struct {
	name string
	fn   func(ctx context.Context) error
}

func (p Ping) Name() string { return p.name }

func (p Ping) Check(ctx context.Context) error {
	if err := p.fn(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.name, err)
	}
	return nil
}

func Postgres(db *sql.DB) Ping {
	return Ping{name: "postgresql", fn: db.PingContext}
}

func Redis(client *redis.Client) Ping {
	return Ping{name: "redis", fn: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

func MongoDB(client *mongo.Client) Ping {
	return Ping{name: "mongodb", fn: func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}}
}

// Kafka succeeds as soon as one broker accepts a connection.
func Kafka(brokers []string) Ping {
	return Ping{name: "kafka", fn: func(ctx context.Context) error {
		err := errors.New("no brokers configured")
		for _, addr := range brokers {
			conn, dialErr := kafka.DialContext(ctx, "tcp", addr)
			if dialErr == nil {
				return conn.Close()
			}
			err = dialErr
		}
		return err
	}}
}
