package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := loadLines(ctx, r.db, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines

	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID int64, page, perPage int) (domain.OrderPage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result := domain.OrderPage{Page: domain.Page{Number: page, PerPage: perPage}}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&result.Page.Total); err != nil {
		return domain.OrderPage{}, fmt.Errorf("count orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, userID, perPage, result.Page.Offset())
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0, perPage)
	ids := make([]int64, 0, perPage)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return domain.OrderPage{}, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return domain.OrderPage{}, fmt.Errorf("iterate order rows: %w", err)
	}
	_ = rows.Close()

	linesByOrder, err := loadLinesForOrders(ctx, r.db, ids)
	if err != nil {
		return domain.OrderPage{}, err
	}
	for i := range orders {
		orders[i].Lines = linesByOrder[orders[i].ID]
	}
	result.Items = orders

	return result, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
