package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func seed(t *testing.T) (*memory.Store, domain.User, domain.Product) {
	t.Helper()

	store := memory.NewStore()
	ctx := context.Background()
	user, err := memory.NewUserRepository(store).Create(ctx, domain.User{Name: "Ana", Email: "Ana@Example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	product, err := memory.NewProductRepository(store).Create(ctx, domain.Product{
		Name: "Caneta", Price: decimal.RequireFromString("2.50"), Stock: 10, Category: "Papelaria",
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return store, user, product
}

func createOrder(t *testing.T, store *memory.Store, userID, productID int64, qty int) int64 {
	t.Helper()

	ctx := context.Background()
	var orderID int64
	err := memory.NewTxRunner(store).InTx(ctx, func(tx domain.OrderTx) error {
		now := time.Now().UTC()
		order, err := tx.InsertOrder(ctx, domain.Order{UserID: userID, Status: domain.OrderStatusPending, CreatedAt: now, UpdatedAt: now})
		if err != nil {
			return err
		}
		orderID = order.ID
		p, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		if err := tx.SetProductStock(ctx, productID, p.Stock-qty); err != nil {
			return err
		}
		_, err = tx.InsertOrderLine(ctx, domain.OrderLine{OrderID: order.ID, ProductID: productID, Quantity: qty, UnitPrice: p.Price})
		return err
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return orderID
}

func TestTxRunner_CommitAppliesAllChanges(t *testing.T) {
	store, user, product := seed(t)
	ctx := context.Background()

	orderID := createOrder(t, store, user.ID, product.ID, 3)

	got, err := memory.NewProductRepository(store).Get(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 7 {
		t.Fatalf("expected stock 7, got %d", got.Stock)
	}

	order, err := memory.NewOrderRepository(store).Get(ctx, orderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(order.Lines) != 1 || order.Lines[0].ProductName != "Caneta" || order.Lines[0].Category != "Papelaria" {
		t.Fatalf("unexpected lines: %+v", order.Lines)
	}
	if !order.Total().Equal(decimal.RequireFromString("7.50")) {
		t.Fatalf("unexpected total %s", order.Total())
	}
}

func TestTxRunner_ErrorDiscardsChanges(t *testing.T) {
	store, user, product := seed(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := memory.NewTxRunner(store).InTx(ctx, func(tx domain.OrderTx) error {
		now := time.Now().UTC()
		if _, err := tx.InsertOrder(ctx, domain.Order{UserID: user.ID, Status: domain.OrderStatusPending, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.SetProductStock(ctx, product.ID, 0); err != nil {
			return err
		}
		if err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{AggregateID: "1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := memory.NewProductRepository(store).Get(ctx, product.ID)
	if got.Stock != 10 {
		t.Fatalf("stock must be untouched, got %d", got.Stock)
	}
	page, _ := memory.NewOrderRepository(store).ListByUser(ctx, user.ID, 1, 15)
	if page.Page.Total != 0 {
		t.Fatalf("order must be rolled back, got %d", page.Page.Total)
	}
	pending, _ := memory.NewOutboxRepository(store).PullPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("outbox must be rolled back, got %d", len(pending))
	}
}

func TestTxRunner_Constraints(t *testing.T) {
	store, user, product := seed(t)
	ctx := context.Background()
	runner := memory.NewTxRunner(store)

	err := runner.InTx(ctx, func(tx domain.OrderTx) error {
		now := time.Now().UTC()
		order, err := tx.InsertOrder(ctx, domain.Order{UserID: user.ID, Status: domain.OrderStatusPending, CreatedAt: now})
		if err != nil {
			return err
		}
		line := domain.OrderLine{OrderID: order.ID, ProductID: product.ID, Quantity: 1}
		if _, err := tx.InsertOrderLine(ctx, line); err != nil {
			return err
		}
		_, err = tx.InsertOrderLine(ctx, line)
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateItem) {
		t.Fatalf("expected ErrDuplicateItem, got %v", err)
	}

	err = runner.InTx(ctx, func(tx domain.OrderTx) error {
		_, err := tx.InsertOrder(ctx, domain.Order{UserID: 404})
		return err
	})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	err = runner.InTx(ctx, func(tx domain.OrderTx) error {
		_, err := tx.LockOrder(ctx, 404)
		return err
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := runner.InTx(cancelled, func(domain.OrderTx) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTxRunner_ConcurrentDecrementsAreSerialized(t *testing.T) {
	store, _, product := seed(t)
	ctx := context.Background()
	runner := memory.NewTxRunner(store)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = runner.InTx(ctx, func(tx domain.OrderTx) error {
				p, err := tx.LockProduct(ctx, product.ID)
				if err != nil {
					return err
				}
				return tx.SetProductStock(ctx, product.ID, p.Stock-1)
			})
		}()
	}
	wg.Wait()

	got, _ := memory.NewProductRepository(store).Get(ctx, product.ID)
	if got.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", got.Stock)
	}
}

func TestProductRepository_ListUpdateDelete(t *testing.T) {
	store, user, product := seed(t)
	repo := memory.NewProductRepository(store)
	ctx := context.Background()

	for _, name := range []string{"B", "C"} {
		if _, err := repo.Create(ctx, domain.Product{Name: name, Category: "X"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := repo.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page.Total != 3 || len(page.Items) != 1 || page.Items[0].Name != "C" {
		t.Fatalf("unexpected page: %+v", page)
	}
	beyond, _ := repo.List(ctx, 9, 2)
	if len(beyond.Items) != 0 {
		t.Fatalf("expected empty page, got %d", len(beyond.Items))
	}

	missing, _ := repo.MissingIDs(ctx, []int64{product.ID, 99})
	if len(missing) != 1 || missing[0] != 99 {
		t.Fatalf("unexpected missing ids: %v", missing)
	}

	product.Name = "Caneta Azul"
	updated, err := repo.Update(ctx, product)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Caneta Azul" || !updated.CreatedAt.Equal(product.CreatedAt) {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if _, err := repo.Update(ctx, domain.Product{ID: 99}); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	createOrder(t, store, user.ID, product.ID, 1)
	if err := repo.Delete(ctx, product.ID); !errors.Is(err, domain.ErrProductInUse) {
		t.Fatalf("expected ErrProductInUse, got %v", err)
	}
	if err := repo.Delete(ctx, page.Items[0].ID); err != nil {
		t.Fatalf("delete unreferenced: %v", err)
	}
	if err := repo.Delete(ctx, page.Items[0].ID); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestOrderRepository_ListByUserNewestFirst(t *testing.T) {
	store, user, product := seed(t)
	repo := memory.NewOrderRepository(store)
	ctx := context.Background()

	first := createOrder(t, store, user.ID, product.ID, 1)
	second := createOrder(t, store, user.ID, product.ID, 1)
	third := createOrder(t, store, user.ID, product.ID, 1)

	page, err := repo.ListByUser(ctx, user.ID, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Page.Total != 3 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page.Page)
	}
	if page.Items[0].ID != third || page.Items[1].ID != second {
		t.Fatalf("expected newest first, got %d, %d", page.Items[0].ID, page.Items[1].ID)
	}

	next, _ := repo.ListByUser(ctx, user.ID, 2, 2)
	if len(next.Items) != 1 || next.Items[0].ID != first {
		t.Fatalf("unexpected second page: %+v", next.Items)
	}

	if _, err := repo.Get(ctx, 404); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestUserAndTokenRepositories(t *testing.T) {
	store, user, _ := seed(t)
	users := memory.NewUserRepository(store)
	tokens := memory.NewTokenRepository(store)
	ctx := context.Background()

	if user.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}
	if _, err := users.Create(ctx, domain.User{Email: "ANA@example.com"}); !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if got, err := users.GetByEmail(ctx, " Ana@example.COM "); err != nil || got.ID != user.ID {
		t.Fatalf("GetByEmail: %+v, %v", got, err)
	}
	if _, err := users.GetByID(ctx, 404); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	for _, hash := range []string{"h1", "h2"} {
		if err := tokens.Create(ctx, domain.AccessToken{Hash: hash, UserID: user.ID}); err != nil {
			t.Fatalf("create token: %v", err)
		}
	}
	if err := tokens.Create(ctx, domain.AccessToken{Hash: "x", UserID: 404}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if id, err := tokens.UserIDByHash(ctx, "h1"); err != nil || id != user.ID {
		t.Fatalf("UserIDByHash: %d, %v", id, err)
	}
	if err := tokens.Delete(ctx, "h1"); err != nil {
		t.Fatalf("delete token: %v", err)
	}
	if err := tokens.Delete(ctx, "h1"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if err := tokens.DeleteByUser(ctx, user.ID); err != nil {
		t.Fatalf("delete by user: %v", err)
	}
	if _, err := tokens.UserIDByHash(ctx, "h2"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}
