package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) List(ctx context.Context, page, perPage int) (domain.ProductPage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	result := domain.ProductPage{Page: domain.Page{Number: page, PerPage: perPage}}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&result.Page.Total); err != nil {
		return domain.ProductPage{}, fmt.Errorf("count products: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, perPage, result.Page.Offset())
	if err != nil {
		return domain.ProductPage{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	result.Items = make([]domain.Product, 0, perPage)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return domain.ProductPage{}, fmt.Errorf("scan product row: %w", err)
		}
		result.Items = append(result.Items, product)
	}
	if err := rows.Err(); err != nil {
		return domain.ProductPage{}, fmt.Errorf("iterate product rows: %w", err)
	}

	return result, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

func (r *productRepository) MissingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("check product ids: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan product id: %w", err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product ids: %w", err)
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price, stock, category)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, product.Name, product.Price, product.Stock, product.Category).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2,
		    price = $3,
		    stock = $4,
		    category = $5,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, product.ID, product.Name, product.Price, product.Stock, product.Category).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	return product, nil
}

func (r *productRepository) Delete(ctx context.Context, id int64) (err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Блокируем товар, чтобы параллельный заказ не добавил позицию между проверкой и удалением.
	var locked int64
	if err = tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrProductNotFound
		}
		return fmt.Errorf("lock product for delete: %w", err)
	}

	var inUse bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM order_lines WHERE product_id = $1)`, id).Scan(&inUse); err != nil {
		return fmt.Errorf("check product usage: %w", err)
	}
	if inUse {
		return domain.ErrProductInUse
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrProductInUse
		}
		return fmt.Errorf("delete product: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete product: %w", err)
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
