package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"travel/internal/metrics"
)

// ErrPublisherUnavailable is returned while the broker connection is down.
var ErrPublisherUnavailable = errors.New("notification broker unavailable")

const (
	defaultDialTimeout    = 2 * time.Second
	defaultPublishTimeout = 3 * time.Second
	maxReconnectBackoff   = 10 * time.Second
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	URL      string
	Exchange string
	// DialTimeout bounds the TCP connect and AMQP handshake.
	DialTimeout time.Duration
	// PublishTimeout bounds one publish including the broker confirm.
	PublishTimeout time.Duration
}

// Publisher is a Dispatcher backed by a RabbitMQ topic exchange.
// Messages are persistent and each publish waits for the broker's confirm.
// While the connection is down Enqueue fails immediately and a single
// background loop reconnects.
type Publisher struct {
	cfg    PublisherConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool

	reconnecting atomic.Bool
	done         chan struct{}
	wg           sync.WaitGroup
}

func newPublisher(cfg PublisherConfig, logger zerolog.Logger) *Publisher {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return &Publisher{cfg: cfg, logger: logger, done: make(chan struct{})}
}

// NewPublisher connects to the broker and declares the exchange.
func NewPublisher(cfg PublisherConfig, logger zerolog.Logger) (*Publisher, error) {
	p := newPublisher(cfg, logger)
	conn, ch, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.setChannel(conn, ch)
	return p, nil
}

func (p *Publisher) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.cfg.URL, amqp.Config{
		Dial:      amqp.DefaultDial(p.cfg.DialTimeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return conn, ch, nil
}

// setChannel installs a fresh connection. It reports false once the publisher is closed.
func (p *Publisher) setChannel(conn *amqp.Connection, ch *amqp.Channel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = ch.Close()
		_ = conn.Close()
		return false
	}
	p.closeLocked()
	p.conn = conn
	p.ch = ch
	return true
}

func (p *Publisher) channel() *amqp.Channel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}
	return p.ch
}

// Enqueue publishes the job. It assigns an ID when the job has none.
func (p *Publisher) Enqueue(ctx context.Context, job Job) (JobHandle, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	if err := p.publish(ctx, job); err != nil {
		metrics.IncNotificationEnqueued(string(job.Kind), "failure")
		return JobHandle{}, err
	}

	metrics.IncNotificationEnqueued(string(job.Kind), "success")
	p.logger.Debug().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("notification enqueued")
	return JobHandle{ID: job.ID}, nil
}

func (p *Publisher) publish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	ch := p.channel()
	if ch == nil {
		p.reconnect()
		return ErrPublisherUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.cfg.Exchange, job.Kind.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.CreatedAt,
		Type:         string(job.Kind),
		Body:         body,
	})
	if err != nil {
		if ch.IsClosed() {
			p.reconnect()
		}
		return fmt.Errorf("publish job: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await publish confirm: %w", err)
	}
	if !acked {
		return errors.New("broker rejected notification job")
	}
	return nil
}

// reconnect starts the background reconnect loop unless one is running.
func (p *Publisher) reconnect() {
	if !p.reconnecting.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.reconnecting.Store(false)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.reconnecting.Store(false)

		backoff := 250 * time.Millisecond
		for {
			conn, ch, err := p.dial()
			if err == nil {
				if p.setChannel(conn, ch) {
					p.logger.Info().Str("exchange", p.cfg.Exchange).Msg("reconnected to RabbitMQ")
				}
				return
			}
			p.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("rabbitmq reconnect failed")

			select {
			case <-p.done:
				return
			case <-time.After(backoff):
			}
			if backoff < maxReconnectBackoff {
				backoff *= 2
			}
		}
	}()
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close closes the channel and connection and stops reconnecting.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.closeLocked()
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

var _ Dispatcher = (*Publisher)(nil)
