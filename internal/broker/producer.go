package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"labor/internal/config"
	"labor/internal/constants"
	"labor/pkg/metrics"
	"labor/pkg/tracing"
)

// KafkaProducer writes synchronously and waits for all in-sync replicas. Records with
// the same key land on the same partition.
type KafkaProducer struct {
	writer  *kafka.Writer
	service string
}

func NewKafkaProducer(cfg config.KafkaConfig, service string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			BatchTimeout: constants.KafkaBatchTimeout,
			WriteTimeout: constants.KafkaWriteTimeout,
			RequiredAcks: kafka.RequireAll,
		},
		service: service,
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, msg Message) error {
	record := kafka.Message{
		Topic: topic,
		Key:   []byte(msg.Key),
		Value: msg.Value,
		Time:  time.Now(),
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	record.Headers = tracing.InjectTraceContext(ctx, record.Headers)

	err := p.writer.WriteMessages(ctx, record)
	metrics.ObserveKafkaWriteDuration(p.service, topic, time.Since(record.Time))
	if err != nil {
		return fmt.Errorf("failed to write kafka message to %s: %w", topic, err)
	}

	metrics.IncKafkaMessagesWritten(p.service, topic)
	metrics.ObserveKafkaMessageSize(p.service, topic, "out", len(msg.Value))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
