package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// registryCapacity: сколько размеров страниц помнит реестр сущности.
	registryCapacity = 50
	registryTTL      = time.Hour
	// invalidatedPages: страницы 1..N очищаются при мутации. Более дальние
	// страницы живут до истечения TTL.
	invalidatedPages = 10
)

// defaultPageSizes очищаются всегда, даже если их никто не запрашивал.
var defaultPageSizes = []int{15, 30, 50, 100}

// Tracker помнит использованные размеры страниц и по ним очищает списки.
type Tracker struct {
	layer *Layer
}

// NewTracker создаёт трекер поверх read-through слоя.
func NewTracker(layer *Layer) *Tracker {
	return &Tracker{layer: layer}
}

// RegisterPageSize добавляет size в реестр сущности, если его там нет.
// Реестр упорядочен по добавлению; при переполнении отбрасываются самые старые.
func (t *Tracker) RegisterPageSize(ctx context.Context, entity string, size int) error {
	if size <= 0 {
		return nil
	}

	sizes, err := t.UsedPageSizes(ctx, entity)
	if err != nil {
		return err
	}
	for _, s := range sizes {
		if s == size {
			return nil
		}
	}

	sizes = append(sizes, size)
	if len(sizes) > registryCapacity {
		sizes = sizes[len(sizes)-registryCapacity:]
	}

	raw, err := json.Marshal(sizes)
	if err != nil {
		return fmt.Errorf("encode page size registry: %w", err)
	}
	if err := t.layer.cache.Set(ctx, registryKey(entity), raw, registryTTL); err != nil {
		return fmt.Errorf("store page size registry: %w", err)
	}
	return nil
}

// UsedPageSizes возвращает реестр сущности в порядке добавления.
func (t *Tracker) UsedPageSizes(ctx context.Context, entity string) ([]int, error) {
	raw, found, err := t.layer.cache.Get(ctx, registryKey(entity))
	if err != nil {
		return nil, fmt.Errorf("load page size registry: %w", err)
	}
	if !found {
		return []int{}, nil
	}

	var sizes []int
	if err := json.Unmarshal(raw, &sizes); err != nil {
		// Испорченный реестр начинаем заново.
		t.layer.logger.WithError(err).WithField("entity", entity).Warn("Discarding corrupted page size registry")
		return []int{}, nil
	}
	return sizes, nil
}

// InvalidateAll очищает страницы 1..10 для всех размеров из реестра и
// размеров по умолчанию. Для заказов ключи строятся по userID.
// Возвращает число ключей, отправленных на удаление.
func (t *Tracker) InvalidateAll(ctx context.Context, entity string, userID int64) (int, error) {
	keyFor, err := pageKeyFunc(entity, userID)
	if err != nil {
		return 0, err
	}

	registered, err := t.UsedPageSizes(ctx, entity)
	if err != nil {
		// Без реестра всё равно очищаем размеры по умолчанию.
		t.layer.logger.WithError(err).WithField("entity", entity).Warn("Page size registry unavailable, invalidating defaults only")
		registered = nil
	}

	sizes := unionSizes(registered, defaultPageSizes)
	keys := make([]string, 0, len(sizes)*invalidatedPages)
	for _, size := range sizes {
		for page := 1; page <= invalidatedPages; page++ {
			keys = append(keys, keyFor(page, size))
		}
	}

	if err := t.layer.cache.Delete(ctx, keys...); err != nil {
		t.layer.fault("invalidate", registryKey(entity), err)
		return 0, fmt.Errorf("invalidate %s listings: %w", entity, err)
	}

	t.layer.metrics.RecordInvalidatedKeys(entity, len(keys))
	t.layer.logger.WithFields(log.Fields{
		"entity": entity,
		"sizes":  sizes,
		"keys":   len(keys),
	}).Debug("Invalidated cached listings")
	return len(keys), nil
}

func pageKeyFunc(entity string, userID int64) (func(page, perPage int) string, error) {
	switch entity {
	case EntityProducts:
		return ProductsPageKey, nil
	case EntityOrders:
		return func(page, perPage int) string { return OrdersPageKey(userID, page, perPage) }, nil
	default:
		return nil, fmt.Errorf("unknown cache entity %q", entity)
	}
}

func unionSizes(lists ...[]int) []int {
	seen := make(map[int]struct{})
	result := make([]int, 0)
	for _, list := range lists {
		for _, size := range list {
			if _, ok := seen[size]; ok {
				continue
			}
			seen[size] = struct{}{}
			result = append(result, size)
		}
	}
	return result
}
