// Package service holds adapters that connect the booking engine to
// outside systems.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/kart-rental/internal/metrics"
	"github.com/iliyamo/kart-rental/internal/queue"
)

// Dial limits.  A failed dial blocks further dials for redialBackoff, so
// during a broker outage each booking waits at most dialTimeout once and
// then fails fast.
const (
	dialTimeout   = 2 * time.Second
	redialBackoff = 10 * time.Second
)

// ErrBrokerUnavailable is returned while the publisher waits out the
// backoff after a failed dial.
var ErrBrokerUnavailable = errors.New("rabbitmq: broker unavailable")

// AMQPPublisher publishes booking events to a RabbitMQ topic exchange with
// the event type as routing key.  The connection is opened lazily and
// re-opened after a failure, so a broker outage never fails a booking.
type AMQPPublisher struct {
	url      string
	exchange string
	log      *zap.Logger
	dial     func(url string) (*amqp.Connection, error)
	now      func() time.Time

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

// NewAMQPPublisher returns a publisher for exchange on the broker at url.
func NewAMQPPublisher(url, exchange string, log *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, exchange: exchange, log: log, dial: dialBroker, now: time.Now}
}

func dialBroker(url string) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
}

// PublishBooking sends ev as a persistent JSON message.  Errors are logged
// and returned so the caller can choose to ignore them.
func (p *AMQPPublisher) PublishBooking(ctx context.Context, ev queue.BookingEvent) error {
	msg, err := Publishing(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureChannel(); err != nil {
		metrics.ObservePublish("error")
		if !errors.Is(err, ErrBrokerUnavailable) {
			p.log.Warn("rabbitmq: connect failed", zap.Error(err))
		}
		return err
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, msg); err != nil {
		metrics.ObservePublish("error")
		p.log.Warn("rabbitmq: publish failed", zap.String("event_id", ev.EventID), zap.Error(err))
		p.reset()
		return err
	}
	metrics.ObservePublish("ok")
	return nil
}

// Publishing converts ev into an AMQP message.
func Publishing(ev queue.BookingEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.EventID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

func (p *AMQPPublisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.reset()
	if p.now().Before(p.retryAt) {
		return ErrBrokerUnavailable
	}
	conn, err := p.dial(p.url)
	if err != nil {
		p.retryAt = p.now().Add(redialBackoff)
		return fmt.Errorf("dial: %w", err)
	}
	p.retryAt = time.Time{}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel open: %w", err)
	}
	if err := queue.DeclareTopology(ch, p.exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
