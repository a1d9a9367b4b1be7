package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TxRunner открывает транзакцию построения заказа.
type TxRunner struct {
	db *sql.DB
}

// NewTxRunner создаёт PostgreSQL-реализацию TxRunner.
func NewTxRunner(store *Store) *TxRunner {
	return &TxRunner{db: store.DB()}
}

// InTx выполняет fn в READ COMMITTED транзакции. Блокировки строк берутся
// через SELECT ... FOR UPDATE внутри orderTx.
func (r *TxRunner) InTx(ctx context.Context, fn func(tx domain.OrderTx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin order tx: %w", classifyTxError(err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&orderTx{tx: tx}); err != nil {
		return classifyTxError(err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit order tx: %w", classifyTxError(err))
	}
	return nil
}

type orderTx struct {
	tx *sql.Tx
}

func (t *orderTx) LockProduct(ctx context.Context, productID int64) (domain.Product, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("lock product %d: %w", productID, err)
	}
	return product, nil
}

func (t *orderTx) SetProductStock(ctx context.Context, productID int64, stock int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, productID, stock)
	if err != nil {
		return fmt.Errorf("update product stock: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (t *orderTx) InsertOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, order.UserID, string(order.Status), order.CreatedAt, order.UpdatedAt).Scan(&order.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Order{}, domain.ErrUserNotFound
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

func (t *orderTx) LockOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("lock order %d: %w", orderID, err)
	}
	return order, nil
}

func (t *orderTx) UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
	`, orderID, string(status), at)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

func (t *orderTx) ListOrderLines(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	return loadLines(ctx, t.tx, orderID)
}

func (t *orderTx) InsertOrderLine(ctx context.Context, line domain.OrderLine) (domain.OrderLine, error) {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO order_lines (order_id, product_id, quantity, unit_price, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, line.OrderID, line.ProductID, line.Quantity, line.UnitPrice, line.CreatedAt).Scan(&line.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.OrderLine{}, domain.ErrDuplicateItem
		}
		return domain.OrderLine{}, fmt.Errorf("insert order line: %w", err)
	}
	return line, nil
}

func (t *orderTx) DeleteOrderLines(ctx context.Context, orderID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	return nil
}

func (t *orderTx) EnqueueOutbox(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $6)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var (
	_ domain.TxRunner = (*TxRunner)(nil)
	_ domain.OrderTx  = (*orderTx)(nil)
)
