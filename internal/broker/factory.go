package broker

import (
	"errors"

	"labor/internal/config"
	"labor/internal/logger"
)

var ErrBrokerDisabled = errors.New("no kafka brokers configured")

// NewProducer returns ErrBrokerDisabled when no brokers are configured.
func NewProducer(cfg config.BrokerConfig, service string) (Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, ErrBrokerDisabled
	}
	return NewKafkaProducer(cfg.Kafka, service), nil
}

func NewConsumer(cfg config.BrokerConfig, service string, log logger.Logger) (Consumer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, ErrBrokerDisabled
	}
	return NewKafkaConsumer(cfg.Kafka, service, log), nil
}
