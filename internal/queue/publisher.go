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
)

const (
	// dialTimeout bounds how long the publisher waits for the broker.
	dialTimeout = 3 * time.Second
	// publishTimeout bounds a single publish on an open channel.
	publishTimeout = 5 * time.Second
	// flushTimeout bounds the final drain once Run is asked to stop.
	flushTimeout = 5 * time.Second
	// defaultBuffer is how many events may wait for the broker.
	defaultBuffer = 256
)

// ErrPublishBufferFull is returned when events arrive faster than the
// broker takes them and the event was dropped.
var ErrPublishBufferFull = errors.New("booking event buffer full")

// Publisher sends booking events to the booking.events queue.  Callers only
// enqueue; Run owns the broker connection and does the sending, so a slow
// or absent broker never holds up a request.
type Publisher struct {
	url    string
	logger *slog.Logger
	events chan []byte

	// Owned by Run.
	conn *amqp.Connection
	ch   *amqp.Channel
}

// PublisherOption customizes a Publisher.
type PublisherOption func(*Publisher)

// WithBuffer sets how many events may be queued for the broker.
func WithBuffer(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.events = make(chan []byte, n)
		}
	}
}

// NewPublisher returns a Publisher for the broker at url.  Nothing is sent
// until Run is started.
func NewPublisher(url string, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{url: url, logger: logger, events: make(chan []byte, defaultBuffer)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BookingChanged queues event for b without waiting for the broker.  It
// fails only when the event cannot be encoded or the buffer is full;
// delivery failures are logged by Run.
func (p *Publisher) BookingChanged(_ context.Context, event string, b model.Booking) error {
	body, err := json.Marshal(NewBookingEvent(event, b))
	if err != nil {
		return err
	}
	select {
	case p.events <- body:
		return nil
	default:
		return ErrPublishBufferFull
	}
}

// Run sends queued events until ctx is cancelled, then makes one bounded
// attempt to flush what is left.  A failed send drops the event and the
// connection; the next event redials.
func (p *Publisher) Run(ctx context.Context) {
	defer p.reset()
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case body := <-p.events:
			p.deliver(ctx, body)
		}
	}
}

func (p *Publisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case body := <-p.events:
			if ctx.Err() != nil {
				p.logger.Warn("rabbitmq: dropping unsent booking events", slog.Int("count", len(p.events)+1))
				return
			}
			p.deliver(ctx, body)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, body []byte) {
	if err := p.send(ctx, body); err != nil {
		p.logger.WarnContext(ctx, "rabbitmq publish failed",
			slog.String("queue", BookingEventsQueue), slog.String("error", err.Error()))
		p.reset()
	}
}

func (p *Publisher) send(ctx context.Context, body []byte) error {
	if p.ch == nil || p.ch.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	return p.ch.PublishWithContext(ctx, "", BookingEventsQueue, false, false, pub)
}

func (p *Publisher) connect() error {
	p.reset()
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(BookingEventsQueue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
