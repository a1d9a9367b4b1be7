package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TxRunner выполняет транзакции заказа над Store.
type TxRunner struct {
	store *Store
}

// NewTxRunner создаёт in-memory реализацию TxRunner.
func NewTxRunner(store *Store) *TxRunner {
	return &TxRunner{store: store}
}

// InTx держит эксклюзивную блокировку Store на всё время fn,
// поэтому транзакции сериализуются и конфликтов не бывает.
func (r *TxRunner) InTx(ctx context.Context, fn func(tx domain.OrderTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	work := r.store.state.cloneForTx()
	if err := fn(&orderTx{st: work, now: r.store.now}); err != nil {
		return err
	}
	r.store.state = work
	return nil
}

type orderTx struct {
	st  *state
	now func() time.Time
}

func (t *orderTx) LockProduct(_ context.Context, productID int64) (domain.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (t *orderTx) SetProductStock(_ context.Context, productID int64, stock int) error {
	p, ok := t.st.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock = stock
	p.UpdatedAt = t.now()
	t.st.products[productID] = p
	return nil
}

func (t *orderTx) InsertOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	if _, ok := t.st.users[order.UserID]; !ok {
		return domain.Order{}, domain.ErrUserNotFound
	}
	t.st.nextOrderID++
	order.ID = t.st.nextOrderID
	order.Lines = nil
	t.st.orders[order.ID] = order
	return order, nil
}

func (t *orderTx) LockOrder(_ context.Context, orderID int64) (domain.Order, error) {
	order, ok := t.st.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (t *orderTx) UpdateOrderStatus(_ context.Context, orderID int64, status domain.OrderStatus, at time.Time) error {
	order, ok := t.st.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = at
	t.st.orders[orderID] = order
	return nil
}

func (t *orderTx) ListOrderLines(_ context.Context, orderID int64) ([]domain.OrderLine, error) {
	return t.st.linesWithProducts(orderID), nil
}

func (t *orderTx) InsertOrderLine(_ context.Context, line domain.OrderLine) (domain.OrderLine, error) {
	if _, ok := t.st.orders[line.OrderID]; !ok {
		return domain.OrderLine{}, domain.ErrOrderNotFound
	}
	if _, ok := t.st.products[line.ProductID]; !ok {
		return domain.OrderLine{}, domain.ErrProductNotFound
	}
	for _, existing := range t.st.lines[line.OrderID] {
		if existing.ProductID == line.ProductID {
			return domain.OrderLine{}, domain.ErrDuplicateItem
		}
	}

	t.st.nextLineID++
	line.ID = t.st.nextLineID
	line.ProductName, line.Category = "", ""
	t.st.lines[line.OrderID] = append(t.st.lines[line.OrderID], line)
	return line, nil
}

func (t *orderTx) DeleteOrderLines(_ context.Context, orderID int64) error {
	delete(t.st.lines, orderID)
	return nil
}

func (t *orderTx) EnqueueOutbox(_ context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = t.now()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	t.st.outbox = append(t.st.outbox, outboxRecord{msg: msg, status: outboxStatusPending})
	return nil
}

var (
	_ domain.TxRunner = (*TxRunner)(nil)
	_ domain.OrderTx  = (*orderTx)(nil)
)
