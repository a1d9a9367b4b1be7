// Package outbox переносит события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultPublishTimeout = 5 * time.Second
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shop_outbox_pending_records",
		Help: "Current number of pending order events in the outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shop_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending order event.",
	})
)

// DeadLetter: то, что уходит в DLQ после исчерпания попыток.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

// Option настраивает Relay.
type Option func(*Relay)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDeadLetterPublisher задаёт получателя событий, которые не удалось опубликовать.
func WithDeadLetterPublisher(publisher domain.OutboxPublisher) Option {
	return func(r *Relay) {
		r.dlq = publisher
	}
}

// WithPollInterval задаёт период опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(r *Relay) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт число событий за один цикл.
func WithBatchSize(size int) Option {
	return func(r *Relay) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(attempts int) Option {
	return func(r *Relay) {
		if attempts > 0 {
			r.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт начальную задержку между попытками; 0: без задержки.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(r *Relay) {
		if delay >= 0 {
			r.retryBaseDelay = delay
		}
	}
}

// Relay периодически забирает pending-события и публикует их.
type Relay struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlq            domain.OutboxPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

// NewRelay создаёт relay над репозиторием outbox.
func NewRelay(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Relay {
	r := &Relay{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-relay"),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run опрашивает outbox до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.repo == nil || r.publisher == nil {
		r.logger.Warn("Outbox relay is disabled: repository or publisher is nil")
		return
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один цикл и возвращает число опубликованных событий.
func (r *Relay) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	r.refreshBacklog(ctx)

	events, err := r.repo.PullPending(ctx, r.batchSize)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to pull pending outbox events")
		return 0
	}

	sent := 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}

		entry := r.logger.WithFields(log.Fields{
			"outbox_id":    event.ID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		})

		if err := r.publishWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				break
			}
			entry.WithError(err).Error("Outbox event could not be published")
			publishAttempts.WithLabelValues("failed").Inc()

			if dlqErr := r.deadLetter(ctx, event, err); dlqErr != nil {
				entry.WithError(dlqErr).Warn("Failed to publish outbox event to DLQ")
				publishAttempts.WithLabelValues("dlq_failed").Inc()
			}
			if markErr := r.repo.MarkFailed(ctx, event.ID); markErr != nil {
				entry.WithError(markErr).Warn("Failed to mark outbox event as failed")
			}
			continue
		}

		if err := r.repo.MarkSent(ctx, event.ID); err != nil {
			entry.WithError(err).Warn("Failed to mark outbox event as sent")
			continue
		}
		sent++
	}

	if len(events) > 0 {
		r.refreshBacklog(ctx)
	}
	return sent
}

func (r *Relay) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	delay := r.retryBaseDelay

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		err := r.publisher.Publish(publishCtx, event)
		cancel()
		if err == nil {
			publishAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		lastErr = err
		publishAttempts.WithLabelValues("retry_error").Inc()

		if attempt == r.maxAttempts || delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, r.maxAttempts, lastErr)
}

func (r *Relay) deadLetter(ctx context.Context, event domain.OutboxMessage, publishErr error) error {
	if r.dlq == nil {
		return nil
	}

	payload, err := json.Marshal(DeadLetter{
		OutboxID:      event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishError:  publishErr.Error(),
		FailedAt:      r.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	dead := event
	dead.Payload = payload
	if err := r.dlq.Publish(ctx, dead); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (r *Relay) refreshBacklog(ctx context.Context) {
	stats, err := r.repo.Stats(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to collect outbox backlog stats")
		return
	}

	pendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingAge.Set(0)
		return
	}
	age := r.now().Sub(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	oldestPendingAge.Set(age)
}
