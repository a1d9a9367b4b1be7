// Package ledger применяет изменения остатков товаров внутри транзакции заказа.
package ledger

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Ledger изменяет остатки только через заблокированные строки товаров.
type Ledger struct{}

// New создаёт Ledger.
func New() *Ledger {
	return &Ledger{}
}

// ApplyDelta блокирует строку товара, прибавляет delta к остатку и сохраняет.
// Неотрицательность остатка проверяет вызывающий код.
func (l *Ledger) ApplyDelta(ctx context.Context, tx domain.OrderTx, productID int64, delta int) (domain.Product, error) {
	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if delta == 0 {
		return product, nil
	}

	product.Stock += delta
	if err := tx.SetProductStock(ctx, productID, product.Stock); err != nil {
		return domain.Product{}, fmt.Errorf("apply stock delta %d to product %d: %w", delta, productID, err)
	}
	return product, nil
}

// ReverseAllForOrder возвращает на склад количество каждой позиции заказа.
// Позиции при этом не удаляются.
func (l *Ledger) ReverseAllForOrder(ctx context.Context, tx domain.OrderTx, orderID int64) error {
	lines, err := tx.ListOrderLines(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load lines of order %d: %w", orderID, err)
	}
	for _, line := range lines {
		if _, err := l.ApplyDelta(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}
