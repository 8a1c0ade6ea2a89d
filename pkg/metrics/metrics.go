package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldt_ingestion_outcomes_total",
			Help: "Total number of raw messages by terminal outcome (count)",
		},
		[]string{"source", "status"},
	)

	IngestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ldt_ingestion_duration_ms",
			Help:    "End-to-end processing duration of one raw message in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"source", "status"},
	)

	DecodeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldt_decode_failures_total",
			Help: "Total number of messages rejected by the record decoder (count)",
		},
		[]string{"reason"},
	)

	LengthMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ldt_length_mismatches_total",
			Help: "Total number of records whose declared length disagrees with the line (count)",
		},
	)

	IdentifierResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ldt_identifier_resolutions_total",
			Help: "Total number of identifier resolutions by tier (count)",
		},
		[]string{"identifier", "source"},
	)

	OwnerLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owner_lookups_total",
			Help: "Total number of owner directory lookups (count)",
		},
		[]string{"result"},
	)

	OwnerCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "owner_cache_requests_total",
			Help: "Total number of owner cache requests (count)",
		},
		[]string{"result"},
	)

	IdempotencyClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_claims_total",
			Help: "Total number of idempotency claims by result (count)",
		},
		[]string{"result"},
	)

	QuarantineRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarantine_retries_total",
			Help: "Total number of quarantine replays by result (count)",
		},
		[]string{"result"},
	)

	QuarantineLeasedEntries = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quarantine_leased_entries",
			Help:    "Number of quarantine entries leased per worker tick (count)",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

// register tolerates collectors shared between groups being registered twice.
func register(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			panic(err)
		}
	}
}

func RegisterIngestionMetrics() {
	register(
		IngestionOutcomesTotal,
		IngestionDuration,
		DecodeFailuresTotal,
		LengthMismatchesTotal,
		IdentifierResolutionsTotal,
		OwnerLookupsTotal,
		OwnerCacheRequestsTotal,
		IdempotencyClaimsTotal,
		DatabaseQueriesTotal,
		DatabaseQueryDuration,
	)
}

func RegisterWorkerMetrics() {
	RegisterIngestionMetrics()
	register(QuarantineRetriesTotal, QuarantineLeasedEntries)
}

func RegisterBrokerMetrics() {
	register(
		RetryAttemptsTotal,
		DLQMessagesTotal,
		KafkaMessagesReadTotal,
		KafkaMessagesWrittenTotal,
		KafkaMessageSizeBytes,
		KafkaConsumerLag,
		KafkaWriteDuration,
	)
}

func RegisterCircuitBreakerMetrics() {
	register(CircuitBreakerState, CircuitBreakerRequests, CircuitBreakerFailures)
}

func RegisterAdminMetrics() {
	register(RateLimitRequestsTotal, DatabaseQueriesTotal, DatabaseQueryDuration, QuarantineRetriesTotal)
}

func ObserveIngestion(source, status string, duration time.Duration) {
	IngestionOutcomesTotal.WithLabelValues(source, status).Inc()
	IngestionDuration.WithLabelValues(source, status).Observe(float64(duration.Milliseconds()))
}

func IncDecodeFailure(reason string) {
	DecodeFailuresTotal.WithLabelValues(reason).Inc()
}

func AddLengthMismatches(n int) {
	if n > 0 {
		LengthMismatchesTotal.Add(float64(n))
	}
}

func IncIdentifierResolution(identifier, source string) {
	IdentifierResolutionsTotal.WithLabelValues(identifier, source).Inc()
}

func IncOwnerLookup(result string) {
	OwnerLookupsTotal.WithLabelValues(result).Inc()
}

func IncOwnerCache(result string) {
	OwnerCacheRequestsTotal.WithLabelValues(result).Inc()
}

func IncIdempotencyClaim(result string) {
	IdempotencyClaimsTotal.WithLabelValues(result).Inc()
}

func IncQuarantineRetry(result string) {
	QuarantineRetriesTotal.WithLabelValues(result).Inc()
}

func ObserveLeasedEntries(n int) {
	QuarantineLeasedEntries.Observe(float64(n))
}

func ObserveDatabaseQuery(service, database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
