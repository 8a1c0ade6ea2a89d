package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"labor/internal/config"
	"labor/internal/constants"
	"labor/internal/logger"
	apperrors "labor/pkg/errors"
	"labor/pkg/logging"
	"labor/pkg/metrics"
	"labor/pkg/models"
	"labor/pkg/retry"
	"labor/pkg/tracing"
)

const (
	headerDLQReason      = "dlq-reason"
	headerDLQSourceTopic = "dlq-source-topic"
	headerDLQTimestamp   = "dlq-timestamp"

	fetchErrorPause = time.Second
)

// KafkaConsumer reads one topic in a consumer group. An offset is committed once its
// delivery was handled, rejected, or parked on the dead letter topic.
type KafkaConsumer struct {
	cfg     config.KafkaConfig
	service string
	logger  logger.Logger
	dlq     Producer

	mu     sync.Mutex
	reader *kafka.Reader
}

func NewKafkaConsumer(cfg config.KafkaConfig, service string, log logger.Logger) *KafkaConsumer {
	c := &KafkaConsumer{cfg: cfg, service: service, logger: log}
	if cfg.DLQTopic != "" {
		c.dlq = NewKafkaProducer(cfg, service)
	}
	return c
}

// Consume blocks until ctx is cancelled and then returns ctx.Err().
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	ctx = logging.WithServiceName(ctx, c.service)
	c.logger.InfowCtx(ctx, "Started consuming", "topic", topic, "brokers", c.cfg.Brokers, "group_id", c.cfg.GroupID)

	for {
		m, err := reader.FetchMessage(ctx)
		switch {
		case ctx.Err() != nil:
			c.logger.InfowCtx(ctx, "Stopped consuming", "topic", topic)
			return ctx.Err()
		case err != nil:
			c.logger.ErrorwCtx(ctx, "Error fetching kafka message", "error", err, "topic", topic)
			select {
			case <-ctx.Done():
			case <-time.After(fetchErrorPause):
			}
			continue
		}

		if c.handle(ctx, m, handler) {
			if err := reader.CommitMessages(ctx, m); err != nil {
				c.logger.ErrorwCtx(ctx, "Failed to commit message", "error", err, "topic", topic, "offset", m.Offset)
			}
		}
	}
}

// handle runs handler for one record and reports whether its offset may be committed.
func (c *KafkaConsumer) handle(ctx context.Context, m kafka.Message, handler HandlerFunc) bool {
	metrics.IncKafkaMessagesRead(c.service, m.Topic)
	metrics.ObserveKafkaMessageSize(c.service, m.Topic, "in", len(m.Value))
	if m.HighWaterMark > 0 {
		metrics.SetKafkaConsumerLag(c.service, m.Topic, m.Partition, m.HighWaterMark-m.Offset-1)
	}

	ctx, span := tracing.StartConsumeSpan(ctx, m)
	defer span.End()

	d := DeliveryFromMessage(m)
	ctx = logging.WithTraceID(ctx, tracing.TraceIDFromContext(ctx))
	ctx = logging.WithMessageID(ctx, d.MessageID)

	err := c.process(ctx, d, handler, m.Topic)
	if err == nil {
		return true
	}

	tracing.RecordError(span, err)
	c.logger.ErrorwCtx(ctx, "Failed to process message after retries",
		"error", err,
		"topic", m.Topic,
		"partition", m.Partition,
		"offset", m.Offset,
	)
	if c.dlq == nil {
		c.logger.WarnwCtx(ctx, "No DLQ configured, committing message to avoid blocking", "topic", m.Topic)
		return true
	}
	if err := c.sendToDLQ(ctx, m, err); err != nil {
		// Left uncommitted, the record is fetched again after a restart.
		c.logger.ErrorwCtx(ctx, "Failed to send message to DLQ", "error", err, "topic", m.Topic)
		return false
	}
	return true
}

func (c *KafkaConsumer) process(ctx context.Context, d *models.Delivery, handler HandlerFunc, topic string) error {
	policy := c.retryPolicy()
	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = apperrors.RecoverPanic(r)
				c.logger.ErrorwCtx(ctx, "Panic recovered during message processing", "error", err, "topic", topic)
			}
		}()
		return handler(ctx, d)
	}, func(attempt int, err error, next time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.service, topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", next,
			"error", err,
		)
	})
}

func (c *KafkaConsumer) retryPolicy() retry.Policy {
	r := c.cfg.Retry
	p := retry.Policy{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 30 * time.Second, Multiplier: 2}
	if r.MaxAttempts > 0 {
		p.MaxAttempts = r.MaxAttempts
	}
	if r.InitialInterval > 0 {
		p.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		p.MaxInterval = r.MaxInterval
	}
	if r.Multiplier > 0 {
		p.Multiplier = r.Multiplier
	}
	p.MaxElapsedTime = r.MaxElapsedTime
	return p
}

// sendToDLQ forwards the original bytes and headers unchanged, plus the failure reason.
func (c *KafkaConsumer) sendToDLQ(ctx context.Context, m kafka.Message, cause error) error {
	headers := headerMap(m.Headers)
	headers[headerDLQReason] = cause.Error()
	headers[headerDLQSourceTopic] = m.Topic
	headers[headerDLQTimestamp] = time.Now().UTC().Format(time.RFC3339Nano)

	if err := c.dlq.Publish(ctx, c.cfg.DLQTopic, Message{Key: string(m.Key), Value: m.Value, Headers: headers}); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	reason := "max_retries_exceeded"
	if retry.IsPermanent(cause) {
		reason = "rejected"
	}
	metrics.DLQMessagesTotal.WithLabelValues(c.service, m.Topic, reason).Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ", "source_topic", m.Topic, "dlq_topic", c.cfg.DLQTopic, "reason", reason)
	return nil
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()

	var errs []error
	if reader != nil {
		errs = append(errs, reader.Close())
	}
	if c.dlq != nil {
		errs = append(errs, c.dlq.Close())
	}
	return errors.Join(errs...)
}

// DeliveryFromMessage maps a Kafka record to a delivery. The key doubles as message id
// when no message-id header is present.
func DeliveryFromMessage(m kafka.Message) *models.Delivery {
	headers := headerMap(m.Headers)

	messageID := headers[constants.HeaderMessageID]
	if messageID == "" {
		messageID = string(m.Key)
	}

	b := models.NewDeliveryBuilder(models.SourceKafka).
		WithMessageID(messageID).
		WithIdempotencyKey(headers[constants.HeaderIdempotencyKey]).
		WithPayload(m.Value).
		WithHints(headers[constants.HeaderBSNRHint], headers[constants.HeaderLANRHint])
	if !m.Time.IsZero() {
		b = b.WithReceivedAt(m.Time.UTC())
	}
	return b.Build()
}

func headerMap(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers)+3)
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
