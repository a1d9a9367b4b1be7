package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct {
	store *Store
}

// NewProductRepository возвращает in-memory репозиторий каталога.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{store: store}
}

func (r *productRepository) List(_ context.Context, page, perPage int) (domain.ProductPage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all := make([]domain.Product, 0, len(r.store.state.products))
	for _, p := range r.store.state.products {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	result := domain.ProductPage{Page: domain.Page{Number: page, PerPage: perPage, Total: len(all)}}
	result.Items = paginate(all, result.Page)
	return result, nil
}

func (r *productRepository) Get(_ context.Context, id int64) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.state.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (r *productRepository) MissingIDs(_ context.Context, ids []int64) ([]int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var missing []int64
	for _, id := range ids {
		if _, ok := r.store.state.products[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *productRepository) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	st := r.store.state
	st.nextProductID++
	now := r.store.now()
	product.ID = st.nextProductID
	product.CreatedAt, product.UpdatedAt = now, now
	st.products[product.ID] = product
	return product, nil
}

func (r *productRepository) Update(_ context.Context, product domain.Product) (domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.state.products[product.ID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = r.store.now()
	r.store.state.products[product.ID] = product
	return product, nil
}

func (r *productRepository) Delete(_ context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	st := r.store.state
	if _, ok := st.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	if st.productReferenced(id) {
		return domain.ErrProductInUse
	}
	delete(st.products, id)
	return nil
}

// paginate вырезает страницу из упорядоченного среза.
func paginate[T any](all []T, page domain.Page) []T {
	from := page.Offset()
	if from >= len(all) {
		return []T{}
	}
	to := from + page.PerPage
	if to > len(all) {
		to = len(all)
	}
	return append([]T(nil), all[from:to]...)
}

var _ domain.ProductRepository = (*productRepository)(nil)
