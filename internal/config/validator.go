package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"labor/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// checks collects every problem instead of stopping at the first one.
type checks []error

func (c *checks) fail(field, format string, args ...interface{}) {
	*c = append(*c, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checks) require(ok bool, field, format string, args ...interface{}) {
	if !ok {
		c.fail(field, format, args...)
	}
}

func (c *checks) port(field string, port int) {
	c.require(port >= 1 && port <= 65535, field, "port must be between 1 and 65535, got %d", port)
}

// oneOf accepts an empty value so that defaults can fill it.
func (c *checks) oneOf(field, value string, allowed ...string) {
	if value != "" && !slices.Contains(allowed, strings.ToLower(value)) {
		c.fail(field, "invalid value %q (valid: %s)", value, strings.Join(allowed, ", "))
	}
}

// Validate checks cfg without touching the network. All field errors are joined.
func Validate(cfg *Config) error {
	var c checks

	c.port("server.port", cfg.Server.Port)
	c.require(cfg.Server.ReadTimeout > 0, "server.read_timeout", "must be positive")
	c.require(cfg.Server.WriteTimeout > 0, "server.write_timeout", "must be positive")

	c.kafka(cfg.Broker.Kafka)
	c.database(cfg.Database)

	in := cfg.Ingestion
	c.oneOf("ingestion.hash_algorithm", in.HashAlgorithm, constants.HashAlgorithmSHA256, constants.HashAlgorithmSHA512)
	c.oneOf("ingestion.fallback_charset", in.FallbackCharset,
		constants.CharsetISO88591, constants.CharsetISO885915, constants.CharsetCP437)
	c.require(in.MaxRetries >= 0, "ingestion.max_retries", "must be non-negative")
	c.require(in.ClaimTTL > 0, "ingestion.claim_ttl", "must be positive")
	c.backoff("ingestion.retry_backoff", in.RetryBackoff)

	w := cfg.Worker
	c.require(w.PollInterval > 0, "worker.poll_interval", "must be positive")
	c.require(w.BatchSize >= 1, "worker.batch_size", "must be at least 1, got %d", w.BatchSize)
	c.require(w.LeaseDuration > 0, "worker.lease_duration", "must be positive")

	c.oneOf("logging.level", cfg.Logging.Level, "debug", "info", "warn", "error")
	c.oneOf("logging.format", cfg.Logging.Format, "json", "console")

	if len(c) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed: %w", errors.Join(c...))
}

func (c *checks) kafka(k KafkaConfig) {
	// Kafka is optional: the admin service and the retry worker run without it.
	if len(k.Brokers) == 0 {
		return
	}
	for i, b := range k.Brokers {
		c.require(b != "", fmt.Sprintf("broker.kafka.brokers[%d]", i), "broker address cannot be empty")
	}
	c.require(k.GroupID != "", "broker.kafka.group_id", "consumer group is required")
	c.require(k.InputTopic != "", "broker.kafka.input_topic", "input topic is required")
	c.backoff("broker.kafka.retry", k.Retry)
}

func (c *checks) backoff(prefix string, r RetryConfig) {
	c.require(r.MaxAttempts >= 0, prefix+".max_attempts", "must be non-negative")
	c.require(r.InitialInterval >= 0, prefix+".initial_interval", "must be non-negative")
	c.require(r.MaxInterval >= 0, prefix+".max_interval", "must be non-negative")
	c.require(r.MaxInterval == 0 || r.MaxInterval >= r.InitialInterval, prefix+".max_interval",
		"must not be below initial_interval")
	c.require(r.Multiplier > 0, prefix+".multiplier", "must be positive")
}

func (c *checks) database(d DatabaseConfig) {
	pg := d.Postgres
	c.require(pg.Host != "", "database.postgres.host", "host is required")
	c.port("database.postgres.port", pg.Port)
	c.require(pg.User != "", "database.postgres.user", "user is required")
	c.require(pg.DBName != "", "database.postgres.dbname", "database name is required")
	c.oneOf("database.postgres.sslmode", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")

	// Redis and MongoDB are optional; validate them only once configured.
	if d.Redis.Host != "" || d.Redis.Port > 0 {
		c.require(d.Redis.Host != "", "database.redis.host", "host is required")
		c.port("database.redis.port", d.Redis.Port)
	}
	if d.MongoDB.URI != "" {
		c.require(strings.HasPrefix(d.MongoDB.URI, "mongodb://") || strings.HasPrefix(d.MongoDB.URI, "mongodb+srv://"),
			"database.mongodb.uri", "must start with mongodb:// or mongodb+srv://")
		c.require(d.MongoDB.Database != "", "database.mongodb.database", "database name is required")
	}
}
