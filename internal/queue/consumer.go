package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// StartBookingConsumer consumes BookingConfirmedQueue and appends one line
// per confirmation to logPath.  It reconnects with backoff until ctx is
// cancelled, then returns ctx.Err().
func StartBookingConsumer(ctx context.Context, url, logPath string) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("booking-consumer: dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, logPath)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("booking-consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logPath string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("booking-consumer: set qos")
	}
	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, BookingConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body, logPath); err != nil {
			log.Error().Err(err).Msg("booking-consumer: handle message")
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(body []byte, logPath string) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if dir := filepath.Dir(logPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Reservation confirmed | event_id=%d | login=%q | seats=[%s]\n",
		ev.ConfirmedAt, ev.EventID, ev.LoginID, strings.Join(ev.Seats, ","))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
