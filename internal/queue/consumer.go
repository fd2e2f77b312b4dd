package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
)

// PaymentApplier is the part of the reconciler the consumer needs.
type PaymentApplier interface {
	Apply(ctx context.Context, ev service.PaymentEvent) (service.Result, error)
}

type action int

const (
	ack action = iota
	requeue
	reject
)

// requeueDelay slows redelivery of messages that hit a transient failure.
const requeueDelay = time.Second

// StartPaymentConsumer connects to RabbitMQ, declares payment.events
// (durable) and feeds each message to applier until ctx is cancelled.
// Broken connections are redialled with exponential backoff.  Malformed
// messages are rejected; transient failures are requeued.
func StartPaymentConsumer(ctx context.Context, url string, applier PaymentApplier, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("payment-consumer: dial failed", slog.String("error", err.Error()), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, applier, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("payment-consumer: consume loop ended, reconnecting", slog.String("error", err.Error()))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, applier PaymentApplier, logger *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		logger.Warn("payment-consumer: set QoS failed", slog.String("error", err.Error()))
	}
	if _, err := ch.QueueDeclare(PaymentEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(PaymentEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			switch handleMessage(ctx, d.Body, applier, logger) {
			case ack:
				_ = d.Ack(false)
			case requeue:
				sleep(ctx, requeueDelay)
				_ = d.Nack(false, true)
			default:
				_ = d.Nack(false, false)
			}
		}
	}
}

func handleMessage(ctx context.Context, body []byte, applier PaymentApplier, logger *slog.Logger) action {
	var msg PaymentEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Warn("payment-consumer: malformed message", slog.String("error", err.Error()))
		return reject
	}
	res, err := applier.Apply(ctx, msg.ToPaymentEvent())
	switch {
	case err == nil:
		logger.Debug("payment-consumer: applied", slog.String("result", string(res)), slog.String("payment_ref", msg.PaymentRef))
		return ack
	case errors.Is(err, model.ErrTransient):
		logger.Warn("payment-consumer: transient failure, requeueing", slog.String("error", err.Error()))
		return requeue
	default:
		logger.Warn("payment-consumer: rejecting message", slog.String("error", err.Error()))
		return reject
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
