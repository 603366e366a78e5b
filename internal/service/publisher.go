// Package service publishes domain events to RabbitMQ.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends JSON messages to durable queues on the default exchange.
// Each Publish dials its own connection; publish volume is one message per
// reservation or per run.
type Publisher struct {
	url  string
	open func(url string) (channel, io.Closer, error)
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url, open: dial}
}

func dial(url string) (channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	return ch, conn, nil
}

// Publish marshals v and sends it persistently to queue.
func (p *Publisher) Publish(ctx context.Context, queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal %s: %w", queue, err)
	}
	ch, conn, err := p.open(p.url)
	if err != nil {
		log.Warn().Err(err).Str("queue", queue).Msg("rabbitmq: connect")
		return err
	}
	defer func() {
		_ = ch.Close()
		_ = conn.Close()
	}()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Warn().Err(err).Str("queue", queue).Msg("rabbitmq: queue declare")
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		log.Warn().Err(err).Str("queue", queue).Msg("rabbitmq: publish")
		return err
	}
	return nil
}
