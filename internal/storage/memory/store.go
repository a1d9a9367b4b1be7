package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Store: in-memory хранилище каталога, заказов, пользователей и outbox.
// Используется для локальной разработки и тестов.
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

// state: снимок данных. Транзакция работает с копией и подменяет
// оригинал только при успешном завершении.
type state struct {
	products map[int64]domain.Product
	orders   map[int64]domain.Order
	lines    map[int64][]domain.OrderLine
	outbox   []outboxRecord

	users  map[int64]domain.User
	emails map[string]int64
	tokens map[string]domain.AccessToken

	nextProductID int64
	nextOrderID   int64
	nextLineID    int64
	nextUserID    int64
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		state: &state{
			products: make(map[int64]domain.Product),
			orders:   make(map[int64]domain.Order),
			lines:    make(map[int64][]domain.OrderLine),
			users:    make(map[int64]domain.User),
			emails:   make(map[string]int64),
			tokens:   make(map[string]domain.AccessToken),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Ping всегда успешен, нужен для health-проверок.
func (s *Store) Ping(context.Context) error {
	return nil
}

// cloneForTx копирует то, что может изменить транзакция заказа.
// Пользователи и токены транзакцией не меняются и разделяются.
func (st *state) cloneForTx() *state {
	cp := *st
	cp.products = make(map[int64]domain.Product, len(st.products))
	for id, p := range st.products {
		cp.products[id] = p
	}
	cp.orders = make(map[int64]domain.Order, len(st.orders))
	for id, o := range st.orders {
		cp.orders[id] = o
	}
	cp.lines = make(map[int64][]domain.OrderLine, len(st.lines))
	for id, l := range st.lines {
		cp.lines[id] = append([]domain.OrderLine(nil), l...)
	}
	cp.outbox = append([]outboxRecord(nil), st.outbox...)
	return &cp
}

// linesWithProducts дополняет позиции названием и категорией товара.
func (st *state) linesWithProducts(orderID int64) []domain.OrderLine {
	src := st.lines[orderID]
	lines := make([]domain.OrderLine, 0, len(src))
	for _, l := range src {
		if p, ok := st.products[l.ProductID]; ok {
			l.ProductName = p.Name
			l.Category = p.Category
		}
		lines = append(lines, l)
	}
	return lines
}

func (st *state) orderWithLines(id int64) (domain.Order, bool) {
	order, ok := st.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	order.Lines = st.linesWithProducts(id)
	return order, true
}

func (st *state) productReferenced(productID int64) bool {
	for _, lines := range st.lines {
		for _, l := range lines {
			if l.ProductID == productID {
				return true
			}
		}
	}
	return false
}
