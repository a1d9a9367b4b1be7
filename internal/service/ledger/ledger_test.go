package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func setup(t *testing.T, stock int) (*memory.Store, domain.User, domain.Product) {
	t.Helper()

	store := memory.NewStore()
	ctx := context.Background()
	user, err := memory.NewUserRepository(store).Create(ctx, domain.User{Name: "U", Email: "u@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	product, err := memory.NewProductRepository(store).Create(ctx, domain.Product{
		Name: "Caneta", Price: decimal.NewFromInt(2), Stock: stock, Category: "Papelaria",
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return store, user, product
}

func stockOf(t *testing.T, store *memory.Store, id int64) int {
	t.Helper()

	p, err := memory.NewProductRepository(store).Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Stock
}

func TestApplyDelta(t *testing.T) {
	store, _, product := setup(t, 5)
	l := ledger.New()
	ctx := context.Background()

	err := memory.NewTxRunner(store).InTx(ctx, func(tx domain.OrderTx) error {
		got, err := l.ApplyDelta(ctx, tx, product.ID, -3)
		if err != nil {
			return err
		}
		if got.Stock != 2 {
			t.Errorf("expected returned stock 2, got %d", got.Stock)
		}
		_, err = l.ApplyDelta(ctx, tx, product.ID, 4)
		return err
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if got := stockOf(t, store, product.ID); got != 6 {
		t.Fatalf("expected stock 6, got %d", got)
	}
}

func TestApplyDelta_DoesNotEnforceNonNegativity(t *testing.T) {
	store, _, product := setup(t, 1)
	l := ledger.New()
	ctx := context.Background()

	err := memory.NewTxRunner(store).InTx(ctx, func(tx domain.OrderTx) error {
		_, err := l.ApplyDelta(ctx, tx, product.ID, -2)
		return err
	})
	if err != nil {
		t.Fatalf("ledger must leave the check to callers: %v", err)
	}
	if got := stockOf(t, store, product.ID); got != -1 {
		t.Fatalf("expected stock -1, got %d", got)
	}
}

func TestApplyDelta_ProductNotFound(t *testing.T) {
	store, _, _ := setup(t, 1)
	ctx := context.Background()

	err := memory.NewTxRunner(store).InTx(ctx, func(tx domain.OrderTx) error {
		_, err := ledger.New().ApplyDelta(ctx, tx, 404, 1)
		return err
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestReverseAllForOrder(t *testing.T) {
	store, user, product := setup(t, 10)
	l := ledger.New()
	ctx := context.Background()
	runner := memory.NewTxRunner(store)

	var orderID int64
	err := runner.InTx(ctx, func(tx domain.OrderTx) error {
		now := time.Now().UTC()
		order, err := tx.InsertOrder(ctx, domain.Order{UserID: user.ID, Status: domain.OrderStatusPending, CreatedAt: now})
		if err != nil {
			return err
		}
		orderID = order.ID
		if _, err := l.ApplyDelta(ctx, tx, product.ID, -4); err != nil {
			return err
		}
		_, err = tx.InsertOrderLine(ctx, domain.OrderLine{OrderID: order.ID, ProductID: product.ID, Quantity: 4, UnitPrice: product.Price})
		return err
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if got := stockOf(t, store, product.ID); got != 6 {
		t.Fatalf("expected stock 6, got %d", got)
	}

	if err := runner.InTx(ctx, func(tx domain.OrderTx) error {
		return l.ReverseAllForOrder(ctx, tx, orderID)
	}); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if got := stockOf(t, store, product.ID); got != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got)
	}
}
