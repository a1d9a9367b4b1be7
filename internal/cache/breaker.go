package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CircuitState: состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker оборачивает Cache circuit breaker'ом: после maxFailures подряд
// ошибок обращения к кэшу отклоняются с domain.ErrCacheUnavailable
// до истечения resetTimeout, затем пропускается пробный запрос.
type Breaker struct {
	inner        Cache
	maxFailures  int
	resetTimeout time.Duration
	logger       *log.Entry
	now          func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
}

// BreakerOption настраивает Breaker.
type BreakerOption func(*Breaker)

// WithBreakerClock подменяет источник времени.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBreaker создаёт обёртку над inner.
func NewBreaker(inner Cache, maxFailures int, resetTimeout time.Duration, logger *log.Entry, opts ...BreakerOption) *Breaker {
	if logger == nil {
		logger = log.New().WithField("component", "cache-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 10 * time.Second
	}

	b := &Breaker{
		inner:        inner,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger,
		now:          time.Now,
		state:        CircuitClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State возвращает текущее состояние.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := b.execute("get", func() error {
		var err error
		value, found, err = b.inner.Get(ctx, key)
		return err
	})
	return value, found, err
}

func (b *Breaker) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.execute("set", func() error {
		return b.inner.Set(ctx, key, value, ttl)
	})
}

func (b *Breaker) Delete(ctx context.Context, keys ...string) error {
	return b.execute("delete", func() error {
		return b.inner.Delete(ctx, keys...)
	})
}

func (b *Breaker) execute(operation string, fn func() error) error {
	if err := b.allow(operation); err != nil {
		return err
	}

	err := fn()
	b.record(operation, err)
	return err
}

func (b *Breaker) allow(operation string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) > b.resetTimeout {
		b.state = CircuitHalfOpen
		b.logger.WithField("operation", operation).Info("Cache circuit breaker half-open")
		return nil
	}
	return fmt.Errorf("%w: circuit breaker is open", domain.ErrCacheUnavailable)
}

func (b *Breaker) record(operation string, err error) {
	// Клиент ушёл или истёк его дедлайн: о здоровье кэша это ничего не говорит.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = b.now()

		if b.state == CircuitHalfOpen || b.failures >= b.maxFailures {
			if b.state != CircuitOpen {
				b.logger.WithFields(log.Fields{
					"operation": operation,
					"failures":  b.failures,
				}).Warn("Cache circuit breaker opened")
			}
			b.state = CircuitOpen
		}
		return
	}

	if b.state == CircuitHalfOpen {
		b.logger.WithField("operation", operation).Info("Cache circuit breaker closed")
	}
	b.state = CircuitClosed
	b.failures = 0
}

// Ping проверяет доступность кэша в обход breaker'а.
func (b *Breaker) Ping(ctx context.Context) error {
	if pinger, ok := b.inner.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

var _ Cache = (*Breaker)(nil)
