package models

import (
	"strings"
	"time"
)

type DeliveryBuilder struct {
	delivery *Delivery
}

func NewDeliveryBuilder(source string) *DeliveryBuilder {
	return &DeliveryBuilder{
		delivery: &Delivery{Source: source},
	}
}

func (b *DeliveryBuilder) WithMessageID(id string) *DeliveryBuilder {
	b.delivery.MessageID = strings.TrimSpace(id)
	return b
}

func (b *DeliveryBuilder) WithIdempotencyKey(key string) *DeliveryBuilder {
	b.delivery.IdempotencyKey = strings.TrimSpace(key)
	return b
}

func (b *DeliveryBuilder) WithPayload(payload []byte) *DeliveryBuilder {
	b.delivery.Payload = payload
	return b
}

func (b *DeliveryBuilder) WithHints(bsnr, lanr string) *DeliveryBuilder {
	b.delivery.BSNRHint = strings.TrimSpace(bsnr)
	b.delivery.LANRHint = strings.TrimSpace(lanr)
	return b
}

func (b *DeliveryBuilder) WithReceivedAt(t time.Time) *DeliveryBuilder {
	b.delivery.ReceivedAt = t
	return b
}

func (b *DeliveryBuilder) Build() *Delivery {
	if b.delivery.ReceivedAt.IsZero() {
		b.delivery.ReceivedAt = time.Now().UTC()
	}
	return b.delivery
}
