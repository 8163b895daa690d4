package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"push-dispatcher/internal/infra/metrics"
)

// RabbitConsumer читает запросы на уведомления из очереди RabbitMQ.
type RabbitConsumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

var _ Consumer = (*RabbitConsumer)(nil)

// NewRabbitConsumer подключается к брокеру и объявляет durable-очередь.
func NewRabbitConsumer(amqpURL, queue string, prefetch int) (*RabbitConsumer, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	start := time.Now()
	conn, err := amqp.Dial(amqpURL)
	metrics.ObserveNetworkRequest("rabbitmq", "dial", queue, start, err)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	return &RabbitConsumer{conn: conn, ch: ch, queue: queue}, nil
}

// Consume передаёт сообщения обработчику и подтверждает их по результату.
func (c *RabbitConsumer) Consume(ctx context.Context, handle Handler) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq: delivery channel closed")
			}
			if err := settle(d, handle(ctx, d.Body)); err != nil {
				return err
			}
		}
	}
}

// Close закрывает канал и соединение.
func (c *RabbitConsumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func settle(d amqp.Delivery, outcome Outcome) error {
	var err error
	switch outcome {
	case Ack:
		err = d.Ack(false)
	case Reject:
		err = d.Nack(false, false)
	default:
		err = d.Nack(false, true)
	}
	if err != nil {
		return fmt.Errorf("settle delivery (%s): %w", outcome, err)
	}
	return nil
}
