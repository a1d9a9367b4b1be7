package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	productColumns = `id, name, price, stock, category, created_at, updated_at`
	orderColumns   = `id, user_id, status, created_at, updated_at`
	outboxColumns  = `id, aggregate_type, aggregate_id, event_type, payload, created_at`

	idempotencyColumns = `key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at`
	lineSelect         = `
		SELECT l.id, l.order_id, l.product_id, l.quantity, l.unit_price, l.created_at,
		       p.name, p.category
		FROM order_lines l
		JOIN products p ON p.id = l.product_id`
)

type rowScanner interface {
	Scan(dest ...any) error
}

// queryer покрывает и *sql.DB, и *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Category, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.UserID, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	if !o.Status.Valid() {
		return domain.Order{}, fmt.Errorf("invalid order status %q for order %d", status, o.ID)
	}
	return o, nil
}

func scanLines(rows *sql.Rows) ([]domain.OrderLine, error) {
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(
			&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.CreatedAt,
			&l.ProductName, &l.Category,
		); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

func loadLines(ctx context.Context, q queryer, orderID int64) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, lineSelect+` WHERE l.order_id = $1 ORDER BY l.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	return scanLines(rows)
}

// loadLinesForOrders загружает позиции нескольких заказов одним запросом.
func loadLinesForOrders(ctx context.Context, q queryer, orderIDs []int64) (map[int64][]domain.OrderLine, error) {
	result := make(map[int64][]domain.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	rows, err := q.QueryContext(ctx, lineSelect+` WHERE l.order_id = ANY($1) ORDER BY l.order_id, l.id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order lines batch: %w", err)
	}
	lines, err := scanLines(rows)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		result[l.OrderID] = append(result[l.OrderID], l)
	}
	return result, nil
}

func scanIdempotencyRecord(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		rec        domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	err := row.Scan(&rec.Key, &rec.RequestHash, &rec.ResponseBody, &httpStatus, &status,
		&rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	rec.Status = domain.IdempotencyStatus(status)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", status, rec.Key)
	}
	if httpStatus.Valid {
		rec.HTTPStatus = int(httpStatus.Int64)
	}
	return rec, nil
}

func scanOutboxMessages(rows *sql.Rows, capacity int) ([]domain.OutboxMessage, error) {
	defer rows.Close()

	messages := make([]domain.OutboxMessage, 0, capacity)
	for rows.Next() {
		var m domain.OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}
	return messages, nil
}
