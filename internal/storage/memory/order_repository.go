package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepository: чтение заказов из in-memory Store.
type orderRepository struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

// Get возвращает заказ с позициями или ErrOrderNotFound.
func (r *orderRepository) Get(_ context.Context, id int64) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.state.orderWithLines(id)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListByUser отдаёт заказы пользователя по убыванию ID.
func (r *orderRepository) ListByUser(_ context.Context, userID int64, page, perPage int) (domain.OrderPage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	st := r.store.state
	ids := make([]int64, 0)
	for id, o := range st.orders {
		if o.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	result := domain.OrderPage{Page: domain.Page{Number: page, PerPage: perPage, Total: len(ids)}}
	pageIDs := paginate(ids, result.Page)
	result.Items = make([]domain.Order, 0, len(pageIDs))
	for _, id := range pageIDs {
		order, _ := st.orderWithLines(id)
		result.Items = append(result.Items, order)
	}
	return result, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
