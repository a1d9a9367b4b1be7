package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
)

// LineProcessor проверяет остатки и записывает позиции заказа.
type LineProcessor struct {
	ledger *ledger.Ledger
	now    func() time.Time
}

// NewLineProcessor создаёт процессор позиций поверх ledger.
func NewLineProcessor(l *ledger.Ledger) *LineProcessor {
	if l == nil {
		l = ledger.New()
	}
	return &LineProcessor{
		ledger: l,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ProcessItems обрабатывает позиции строго в порядке запроса: блокирует товар,
// проверяет остаток, списывает его и записывает позицию с текущей ценой.
// Первая же нехватка прерывает пакет; откат выполняет транзакция.
func (p *LineProcessor) ProcessItems(ctx context.Context, tx domain.OrderTx, orderID int64, items []domain.OrderItem) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		product, err := tx.LockProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("lock product %d: %w", item.ProductID, err)
		}
		if product.Stock < item.Quantity {
			return nil, &domain.InsufficientStockError{
				ProductID: product.ID,
				Available: product.Stock,
				Requested: item.Quantity,
			}
		}

		if _, err := p.ledger.ApplyDelta(ctx, tx, product.ID, -item.Quantity); err != nil {
			return nil, err
		}

		line, err := tx.InsertOrderLine(ctx, domain.OrderLine{
			OrderID:   orderID,
			ProductID: product.ID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
			CreatedAt: p.now(),
		})
		if err != nil {
			return nil, err
		}
		line.ProductName = product.Name
		line.Category = product.Category
		lines = append(lines, line)
	}
	return lines, nil
}
