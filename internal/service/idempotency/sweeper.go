// Package idempotency удаляет просроченные записи Idempotency-Key,
// которыми защищено создание заказов.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultSweepBatch    = 500
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_idempotency_sweep_runs_total",
		Help: "Total number of idempotency key sweeps grouped by result.",
	}, []string{"result"})
	sweepDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_idempotency_sweep_deleted_total",
		Help: "Total number of expired idempotency keys deleted.",
	})
)

// SweeperOption настраивает Sweeper.
type SweeperOption func(*Sweeper)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInterval задаёт период между проходами.
func WithInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithBatchSize ограничивает число удалений за один запрос к хранилищу.
func WithBatchSize(size int) SweeperOption {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// Sweeper периодически удаляет записи с истёкшим TTL.
type Sweeper struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// NewSweeper создаёт фоновую очистку ключей.
func NewSweeper(repo domain.IdempotencyRepository, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		logger:    log.WithField("component", "idempotency-sweeper"),
		interval:  defaultSweepInterval,
		batchSize: defaultSweepBatch,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run чистит ключи сразу и затем по таймеру до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("Idempotency sweeper is disabled: repository is nil")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.Sweep(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweepRuns.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("Idempotency sweep failed")
		return
	}

	sweepRuns.WithLabelValues("ok").Inc()
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("Expired idempotency keys removed")
	}
}

// Sweep удаляет все записи с истёкшим TTL порциями batchSize.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	before := s.now()
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := s.repo.DeleteExpired(ctx, before, s.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		sweepDeleted.Add(float64(deleted))

		if deleted < s.batchSize {
			return total, nil
		}
	}
}
