package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"labor/internal/constants"
)

var defaults = map[string]interface{}{
	"server.port":          8080,
	"server.read_timeout":  10 * time.Second,
	"server.write_timeout": 10 * time.Second,

	"database.postgres.sslmode":        "disable",
	"database.postgres.max_open_conns": 20,
	"database.postgres.max_idle_conns": 5,
	"database.mongodb.database":        constants.DefaultMongoDBName,

	"broker.kafka.input_topic":            constants.DefaultInputTopic,
	"broker.kafka.output_topic":           constants.DefaultOutputTopic,
	"broker.kafka.dlq_topic":              constants.DefaultDLQTopic,
	"broker.kafka.retry.max_attempts":     3,
	"broker.kafka.retry.initial_interval": 200 * time.Millisecond,
	"broker.kafka.retry.max_interval":     5 * time.Second,
	"broker.kafka.retry.multiplier":       2.0,

	"logging.level":  "info",
	"logging.format": "json",

	"ingestion.hash_algorithm":                 constants.HashAlgorithmSHA256,
	"ingestion.max_retries":                    constants.DefaultMaxRetries,
	"ingestion.retry_backoff.initial_interval": time.Minute,
	"ingestion.retry_backoff.max_interval":     6 * time.Hour,
	"ingestion.retry_backoff.multiplier":       2.0,
	"ingestion.claim_ttl":                      5 * time.Minute,
	"ingestion.store_timeout":                  5 * time.Second,
	"ingestion.fallback_charset":               constants.DefaultFallbackCharset,

	"worker.poll_interval":  15 * time.Second,
	"worker.batch_size":     50,
	"worker.lease_duration": 2 * time.Minute,
	"worker.lock_key":       constants.DefaultWorkerLockKey,
	"worker.lock_ttl":       30 * time.Second,
	"worker.concurrency":    4,

	"owner_cache.ttl":          10 * time.Minute,
	"owner_cache.negative_ttl": 30 * time.Second,

	"audit.collection": constants.DefaultAuditCollection,

	"webhook.max_body_bytes": constants.DefaultMaxBodyBytes,
}

// envKeys are bound explicitly because AutomaticEnv only covers keys viper already
// knows about from the file or a default.
var envKeys = []string{
	"server.port",
	"server.read_timeout",
	"server.write_timeout",
	"broker.kafka.brokers",
	"broker.kafka.group_id",
	"broker.kafka.input_topic",
	"broker.kafka.output_topic",
	"database.postgres.host",
	"database.postgres.port",
	"database.postgres.user",
	"database.postgres.password",
	"database.postgres.dbname",
	"database.postgres.sslmode",
	"database.run_migrations",
	"database.redis.host",
	"database.redis.port",
	"database.redis.password",
	"database.redis.db",
	"database.mongodb.uri",
	"database.mongodb.database",
	"logging.level",
	"logging.format",
	"ingestion.max_retries",
	"ingestion.hash_algorithm",
	"ingestion.fallback_charset",
	"worker.poll_interval",
	"worker.batch_size",
	"owner_cache.enabled",
	"audit.enabled",
	"tracing.enabled",
	"tracing.service_name",
	"tracing.otlp.endpoint",
	"tracing.otlp.insecure",
}

// Load reads configFile, applies defaults and environment overrides, and validates
// the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set from the environment the broker list is one comma separated string. A YAML
	// list reads back as "".
	if brokers := v.GetString("broker.kafka.brokers"); brokers != "" {
		cfg.Broker.Kafka.Brokers = splitList(brokers)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
