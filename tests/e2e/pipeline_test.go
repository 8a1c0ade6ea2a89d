package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labor/internal/constants"
	"labor/pkg/models"
)

const messageWaitTimeout = 30 * time.Second

var (
	kafkaBroker = envOr("E2E_KAFKA_BROKER", "localhost:29092")
	inputTopic  = envOr("E2E_INPUT_TOPIC", constants.DefaultInputTopic)
	outputTopic = envOr("E2E_OUTPUT_TOPIC", constants.DefaultOutputTopic)
)

func TestKafkaDeliveryIsStored(t *testing.T) {
	messageID := uuid.NewString()
	payload := validPayload + "\n0148410" + uuid.NewString()[:7]

	require.NoError(t, sendMessageToKafka(t, messageID, payload, nil))

	event := waitForOutcome(t, messageID)
	require.NotNil(t, event, "outcome should be published")
	assert.Equal(t, models.OutcomeStored, event.Status)
	assert.Equal(t, models.SourceKafka, event.Source)
	assert.NotEmpty(t, event.ResultID)
}

func TestKafkaRedeliveryIsDuplicate(t *testing.T) {
	payload := validPayload + "\n0148410" + uuid.NewString()[:7]
	key := uuid.NewString()
	headers := map[string]string{constants.HeaderIdempotencyKey: key}

	firstID := uuid.NewString()
	require.NoError(t, sendMessageToKafka(t, firstID, payload, headers))
	first := waitForOutcome(t, firstID)
	require.NotNil(t, first)

	secondID := uuid.NewString()
	require.NoError(t, sendMessageToKafka(t, secondID, payload, headers))
	second := waitForOutcome(t, secondID)
	require.NotNil(t, second)

	assert.Equal(t, models.OutcomeDuplicate, second.Status)
	assert.Equal(t, first.RawMessageID, second.RawMessageID)
	assert.Equal(t, first.ResultID, second.ResultID)
}

func TestKafkaBrokenDeliveryIsQuarantined(t *testing.T) {
	messageID := uuid.NewString()
	require.NoError(t, sendMessageToKafka(t, messageID, brokenPayload+"\n"+uuid.NewString()[:8], nil))

	event := waitForOutcome(t, messageID)
	require.NotNil(t, event)
	assert.Equal(t, models.OutcomeQuarantined, event.Status)
	assert.Equal(t, "decode_error", event.Reason)
}

func sendMessageToKafka(t *testing.T, messageID, payload string, headers map[string]string) error {
	t.Helper()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kafkaBroker),
		Topic:        inputTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
	defer writer.Close()

	msg := kafka.Message{
		Key:   []byte(messageID),
		Value: []byte(payload),
		Time:  time.Now(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func waitForOutcome(t *testing.T, messageID string) *models.OutcomeEvent {
	t.Helper()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{kafkaBroker},
		Topic:       outputTopic,
		GroupID:     fmt.Sprintf("e2e-outcome-waiter-%s", uuid.NewString()),
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     2 * time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), messageWaitTimeout)
	defer cancel()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}
		_ = reader.CommitMessages(ctx, msg)

		var event models.OutcomeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			continue
		}
		if event.MessageID == messageID {
			return &event
		}
	}
}
