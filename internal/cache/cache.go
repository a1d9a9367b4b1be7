// Package cache содержит read-through кэш и трекер инвалидации страниц.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache: хранилище ключ-значение с TTL.
type Cache interface {
	// Get возвращает значение и признак его наличия. Просроченный ключ отсутствует.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete удаляет ключи; отсутствующие ключи не считаются ошибкой.
	Delete(ctx context.Context, keys ...string) error
}

// Сущности, для которых ведётся реестр размеров страниц.
const (
	EntityProducts = "produtos"
	EntityOrders   = "pedidos"
)

// TTL записей по типу.
const (
	ProductListTTL   = 60 * time.Second
	ProductDetailTTL = 300 * time.Second
	OrderListTTL     = 30 * time.Second
)

// ProductsPageKey: ключ страницы каталога.
func ProductsPageKey(page, perPage int) string {
	return fmt.Sprintf("produtos:page:%d:per:%d", page, perPage)
}

// ProductKey: ключ карточки товара.
func ProductKey(productID int64) string {
	return fmt.Sprintf("produto:%d", productID)
}

// OrdersPageKey: ключ страницы заказов пользователя.
func OrdersPageKey(userID int64, page, perPage int) string {
	return fmt.Sprintf("pedidos:user:%d:page:%d:per:%d", userID, page, perPage)
}

func registryKey(entity string) string {
	return entity + ":used_per_pages"
}
