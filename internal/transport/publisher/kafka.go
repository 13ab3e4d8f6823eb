package publisher

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of kafka.Writer used by the publisher.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher delivers payloads to Kafka topics. The destination is the
// topic name; the idempotency key becomes the message key so partitioning and
// downstream deduplication stay stable across redeliveries.
type KafkaPublisher struct {
	writer KafkaWriter
}

// NewKafkaPublisher creates a Kafka-backed publisher. The writer must be
// configured without a fixed topic so the destination can select one per message.
func NewKafkaPublisher(writer KafkaWriter) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
	}
}

// Publish writes one message to the destination topic.
func (p *KafkaPublisher) Publish(
	ctx context.Context,
	destination string,
	payload []byte,
	metadata map[string]string,
	idempotencyKey string,
) error {
	headers := make([]kafka.Header, 0, len(metadata))
	for key, val := range metadata {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(val)})
	}

	msg := kafka.Message{
		Topic:   destination,
		Key:     []byte(idempotencyKey),
		Value:   payload,
		Headers: headers,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	return nil
}

var _ Publisher = (*KafkaPublisher)(nil)
