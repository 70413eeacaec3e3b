package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"travel/internal/metrics"
)

// attemptHeader counts how many times a job has been tried.
const attemptHeader = "x-attempt"

// SentStore remembers delivered jobs so redeliveries are not mailed twice.
type SentStore interface {
	NotificationSent(ctx context.Context, jobID string) (bool, error)
	MarkNotificationSent(ctx context.Context, jobID string) error
}

// WorkerConfig holds queue topology and retry settings.
type WorkerConfig struct {
	URL         string
	Exchange    string
	Queue       string
	DLX         string
	DLQ         string
	Prefetch    int
	MaxAttempts int
	// Workers is how many deliveries are processed concurrently.
	Workers int
}

// retryPublisher is the part of *amqp.Channel used to schedule retries.
type retryPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// IsPermanent reports whether err should skip retries.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Worker consumes notification jobs and sends them by email.
type Worker struct {
	cfg    WorkerConfig
	mailer Mailer
	sent   SentStore
	logger zerolog.Logger

	conn  *amqp.Connection
	ch    *amqp.Channel
	retry retryPublisher
}

// NewWorker creates a new Worker. sent may be nil to disable deduplication.
func NewWorker(cfg WorkerConfig, mailer Mailer, sent SentStore, logger zerolog.Logger) *Worker {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Worker{cfg: cfg, mailer: mailer, sent: sent, logger: logger}
}

// Connect dials the broker and declares the exchange, queue and dead-letter topology.
// Each retry attempt gets its own delay queue whose messages expire back into the
// main queue, so a failing job never holds a consumer while it waits.
func (w *Worker) Connect() error {
	conn, err := amqp.Dial(w.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	fail := func(format string, err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf(format, err)
	}

	if err := ch.ExchangeDeclare(w.cfg.DLX, "topic", true, false, false, false, nil); err != nil {
		return fail("declare dlx: %w", err)
	}
	if _, err := ch.QueueDeclare(w.cfg.DLQ, true, false, false, false, nil); err != nil {
		return fail("declare dlq: %w", err)
	}
	if err := ch.QueueBind(w.cfg.DLQ, "#", w.cfg.DLX, false, nil); err != nil {
		return fail("bind dlq: %w", err)
	}

	if err := ch.ExchangeDeclare(w.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange: %w", err)
	}
	args := amqp.Table{"x-dead-letter-exchange": w.cfg.DLX}
	q, err := ch.QueueDeclare(w.cfg.Queue, true, false, false, false, args)
	if err != nil {
		return fail("declare queue: %w", err)
	}
	for _, kind := range []Kind{KindBookingConfirmation, KindPaymentConfirmation} {
		if err := ch.QueueBind(q.Name, kind.RoutingKey(), w.cfg.Exchange, false, nil); err != nil {
			return fail("bind queue: %w", err)
		}
	}

	for attempt := 1; attempt < w.cfg.MaxAttempts; attempt++ {
		retryArgs := amqp.Table{
			"x-message-ttl":             retryDelay(attempt).Milliseconds(),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": w.cfg.Queue,
		}
		if _, err := ch.QueueDeclare(w.retryQueue(attempt), true, false, false, false, retryArgs); err != nil {
			return fail("declare retry queue: %w", err)
		}
	}

	if err := ch.Qos(w.cfg.Prefetch, 0, false); err != nil {
		return fail("set qos: %w", err)
	}

	w.conn = conn
	w.ch = ch
	w.retry = ch
	return nil
}

// Close closes the channel and connection.
func (w *Worker) Close() {
	if w.ch != nil {
		_ = w.ch.Close()
	}
	if w.conn != nil {
		_ = w.conn.Close()
	}
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (w *Worker) Run(ctx context.Context) error {
	msgs, err := w.ch.ConsumeWithContext(ctx, w.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	return w.consume(ctx, msgs)
}

// consume fans deliveries out to cfg.Workers goroutines.
func (w *Worker) consume(ctx context.Context, msgs <-chan amqp.Delivery) error {
	var wg sync.WaitGroup
	var closed sync.Once
	var closedErr error

	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						closed.Do(func() { closedErr = errors.New("delivery channel closed") })
						return
					}
					w.settle(ctx, d, w.Process(ctx, d.Body))
				}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return closedErr
}

// Process handles one job body: decode, skip if already sent, render and send.
func (w *Worker) Process(ctx context.Context, body []byte) error {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return permanent(fmt.Errorf("decode job: %w", err))
	}

	logger := w.logger.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Str("booking_id", job.BookingID).Logger()

	if w.sent != nil && job.ID != "" {
		sent, err := w.sent.NotificationSent(ctx, job.ID)
		if err != nil {
			logger.Warn().Err(err).Msg("dedupe lookup failed, sending anyway")
		} else if sent {
			logger.Info().Msg("notification already sent, skipping")
			metrics.IncNotificationDelivered(string(job.Kind), "duplicate")
			return nil
		}
	}

	msg, err := Render(job)
	if err != nil {
		return permanent(err)
	}

	if err := w.mailer.Send(ctx, msg); err != nil {
		metrics.IncNotificationDelivered(string(job.Kind), "failure")
		return err
	}

	if w.sent != nil && job.ID != "" {
		if err := w.sent.MarkNotificationSent(ctx, job.ID); err != nil {
			logger.Warn().Err(err).Msg("failed to record sent notification")
		}
	}

	metrics.IncNotificationDelivered(string(job.Kind), "success")
	logger.Info().Msg("notification sent")
	return nil
}

// settle acks, retries or dead-letters a delivery based on the processing result.
func (w *Worker) settle(ctx context.Context, d amqp.Delivery, err error) {
	if err == nil {
		_ = d.Ack(false)
		return
	}

	attempt := attemptOf(d.Headers) + 1
	logger := w.logger.With().Str("message_id", d.MessageId).Int("attempt", attempt).Err(err).Logger()

	if IsPermanent(err) || attempt >= w.cfg.MaxAttempts {
		logger.Error().Msg("notification dead-lettered")
		_ = d.Nack(false, false)
		return
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptHeader] = int32(attempt)

	perr := w.retry.PublishWithContext(ctx, "", w.retryQueue(attempt), false, false, amqp.Publishing{
		Headers:      headers,
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    d.Timestamp,
		Type:         d.Type,
		Body:         d.Body,
	})
	if perr != nil {
		logger.Warn().AnErr("publish_error", perr).Msg("retry publish failed, requeueing")
		_ = d.Nack(false, true)
		return
	}

	logger.Warn().Dur("retry_in", retryDelay(attempt)).Msg("notification failed, scheduled retry")
	_ = d.Ack(false)
}

func (w *Worker) retryQueue(attempt int) string {
	return fmt.Sprintf("%s.retry.%d", w.cfg.Queue, attempt)
}

// attemptOf reads the attempt counter from message headers.
func attemptOf(headers amqp.Table) int {
	switch v := headers[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}

// retryDelay backs off exponentially from one second, capped at thirty.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		return time.Second
	}
	if attempt > 6 {
		return 30 * time.Second
	}
	d := time.Second << (attempt - 1)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}
