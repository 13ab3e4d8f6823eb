package publisher

import (
	"context"
	"strings"
	"sync"

	"github.com/streadway/amqp"

	"github.com/halcyonlabs/relay/internal/dal/rabbitmq"
)

// AMQPBroker is the subset of the RabbitMQ client used by the publisher.
type AMQPBroker interface {
	Publish(exchange, routingKey string, msg amqp.Publishing) error
	DeclareQueue(cfg rabbitmq.DeclareQueueConfig) (amqp.Queue, error)
}

// AMQPPublisher delivers payloads through RabbitMQ. The destination format is
// "exchange/routing_key"; a destination without a slash publishes directly to
// a queue via the default exchange, declaring the queue on first use.
type AMQPPublisher struct {
	broker AMQPBroker

	mu       sync.Mutex
	declared map[string]struct{}
}

// NewAMQPPublisher creates an AMQP-backed publisher.
func NewAMQPPublisher(broker AMQPBroker) *AMQPPublisher {
	return &AMQPPublisher{
		broker:   broker,
		declared: make(map[string]struct{}),
	}
}

// Publish sends one message. The idempotency key travels as the AMQP
// MessageId so consumers can deduplicate redeliveries.
func (p *AMQPPublisher) Publish(
	ctx context.Context,
	destination string,
	payload []byte,
	metadata map[string]string,
	idempotencyKey string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	exchange, routingKey, found := strings.Cut(destination, "/")
	if !found {
		exchange, routingKey = "", destination
		if err := p.ensureQueue(routingKey); err != nil {
			return err
		}
	}

	headers := amqp.Table{}
	for key, val := range metadata {
		headers[key] = val
	}

	return p.broker.Publish(
		exchange,
		routingKey,
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   idempotencyKey,
			Body:        payload,
			Headers:     headers,
		},
	)
}

// ensureQueue declares the queue backing a default-exchange destination once
// per publisher lifetime. Failed declarations are not cached so the next
// publish retries them.
func (p *AMQPPublisher) ensureQueue(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.declared[name]; ok {
		return nil
	}

	if _, err := p.broker.DeclareQueue(rabbitmq.DeclareQueueConfig{
		Name:    name,
		Durable: true,
	}); err != nil {
		return err
	}
	p.declared[name] = struct{}{}

	return nil
}

var _ Publisher = (*AMQPPublisher)(nil)

var _ AMQPBroker = (*rabbitmq.Client)(nil)
