package cache

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Layer: read-through слой поверх Cache. Сбои кэша логируются и не
// прерывают запрос: значение вычисляется напрямую.
type Layer struct {
	cache   Cache
	logger  *log.Entry
	metrics *metrics.ShopMetrics
}

// NewLayer создаёт read-through слой. metrics может быть nil.
func NewLayer(c Cache, logger *log.Entry, m *metrics.ShopMetrics) *Layer {
	if logger == nil {
		logger = log.New().WithField("component", "cache")
	}
	return &Layer{cache: c, logger: logger, metrics: m}
}

// Cache возвращает обёрнутое хранилище.
func (l *Layer) Cache() Cache {
	return l.cache
}

// GetOrCompute возвращает значение по key из кэша, иначе вызывает compute,
// сохраняет результат на ttl и возвращает его. Ошибка compute не кэшируется.
func GetOrCompute[T any](ctx context.Context, l *Layer, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	raw, found, err := l.cache.Get(ctx, key)
	switch {
	case err != nil:
		l.fault("get", key, err)
	case found:
		var cached T
		decodeErr := json.Unmarshal(raw, &cached)
		if decodeErr == nil {
			l.metrics.RecordCacheHit()
			return cached, nil
		}
		l.fault("decode", key, decodeErr)
	default:
		l.metrics.RecordCacheMiss()
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		l.fault("encode", key, err)
		return value, nil
	}
	if err := l.cache.Set(ctx, key, encoded, ttl); err != nil {
		l.fault("set", key, err)
	}
	return value, nil
}

// Forget удаляет ключи, ошибка только логируется.
func (l *Layer) Forget(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := l.cache.Delete(ctx, keys...); err != nil {
		l.fault("delete", keys[0], err)
	}
}

func (l *Layer) fault(operation, key string, err error) {
	l.metrics.RecordCacheError(operation)
	l.logger.WithError(err).WithFields(log.Fields{
		"operation": operation,
		"key":       key,
	}).Warn("Cache unavailable, serving without cache")
}
