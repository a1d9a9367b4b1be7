package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан, позиции можно менять.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing: заказ передан в обработку.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted: заказ выполнен, терминальный статус.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled: заказ отменён, терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled, OrderStatusCompleted},
	OrderStatusProcessing: {OrderStatusCancelled},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// CanBeEdited: позиции можно менять только у pending заказа.
func (s OrderStatus) CanBeEdited() bool {
	return s == OrderStatusPending
}

// CanBeCancelled возвращает true для pending и processing.
func (s OrderStatus) CanBeCancelled() bool {
	return s.CanTransitionTo(OrderStatusCancelled)
}

// IsTerminal возвращает true, если из статуса нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// CanTransitionTo проверяет допустимость перехода в next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem описывает запрошенную позицию (товар и количество).
type OrderItem struct {
	ProductID int64
	Quantity  int
}

// OrderLine: сохранённая позиция заказа со снимком цены.
type OrderLine struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	// UnitPrice фиксируется в момент добавления и не меняется вслед за товаром.
	UnitPrice decimal.Decimal
	// ProductName и Category подтягиваются из товара при чтении.
	ProductName string
	Category    string
	CreatedAt   time.Time
}

// Subtotal возвращает стоимость позиции.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order агрегирует заказ пользователя и его позиции.
type Order struct {
	ID        int64
	UserID    int64
	Status    OrderStatus
	Lines     []OrderLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Total возвращает сумму заказа по снимкам цен.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// ProductIDs возвращает идентификаторы товаров из позиций заказа.
func (o Order) ProductIDs() []int64 {
	ids := make([]int64, 0, len(o.Lines))
	for _, line := range o.Lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

// OrderPage: страница заказов пользователя.
type OrderPage struct {
	Items []Order
	Page  Page
}

// ValidateItems проверяет запрошенные позиции до открытия транзакции.
func ValidateItems(items []OrderItem) error {
	if len(items) == 0 {
		return &ValidationError{Field: "items", Err: ErrItemsRequired}
	}

	seen := make(map[int64]struct{}, len(items))
	for i, item := range items {
		if item.ProductID <= 0 {
			return &ValidationError{Field: itemField(i, "produto_id"), Err: ErrItemProductRequired}
		}
		if item.Quantity < 1 {
			return &ValidationError{Field: itemField(i, "quantidade"), Err: ErrItemQtyInvalid}
		}
		if _, ok := seen[item.ProductID]; ok {
			return &ValidationError{Field: itemField(i, "produto_id"), Err: ErrDuplicateItem}
		}
		seen[item.ProductID] = struct{}{}
	}

	return nil
}
