package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout  = 10 * time.Second
	DefaultMaxBodyBytes = 1 << 20
)

const (
	CacheKeyPrefixOwner  = "owner:"
	DefaultWorkerLockKey = "lock:quarantine-retry"
)

const (
	DefaultInputTopic  = "ldt_raw_messages"
	DefaultOutputTopic = "ldt_outcomes"
	DefaultDLQTopic    = "ldt_raw_messages_dlq"
)

const (
	HeaderMessageID      = "message-id"
	HeaderIdempotencyKey = "idempotency-key"
	HeaderBSNRHint       = "bsnr-hint"
	HeaderLANRHint       = "lanr-hint"
)

const (
	HTTPHeaderMessageID      = "X-Message-ID"
	HTTPHeaderIdempotencyKey = "Idempotency-Key"
	HTTPHeaderBSNRHint       = "X-BSNR-Hint"
	HTTPHeaderLANRHint       = "X-LANR-Hint"
)

const (
	DefaultMongoDBName     = "labor"
	DefaultAuditCollection = "ingestion_audit"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	DefaultMaxRetries = 5
)

const (
	HashAlgorithmSHA256 = "sha256"
	HashAlgorithmSHA512 = "sha512"
)

// Charsets for payloads that are not UTF-8 and do not declare their own.
const (
	CharsetISO88591        = "iso-8859-1"
	CharsetISO885915       = "iso-8859-15"
	CharsetCP437           = "cp437"
	DefaultFallbackCharset = CharsetISO885915
)

const (
	ServiceNameIngest = "ingest-service"
	ServiceNameWorker = "retry-worker"
	ServiceNameAdmin  = "admin-service"
)
