// Package catalog: CRUD каталога товаров с read-through кэшем.
package catalog

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service управляет товарами каталога.
type Service struct {
	products domain.ProductRepository
	layer    *cache.Layer
	tracker  *cache.Tracker
	logger   *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, layer *cache.Layer, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-service")
	}
	return &Service{
		products: products,
		layer:    layer,
		tracker:  cache.NewTracker(layer),
		logger:   logger,
	}
}

// List возвращает страницу каталога по возрастанию ID.
func (s *Service) List(ctx context.Context, page, perPage int) (domain.ProductPage, error) {
	if err := domain.ValidatePage(page, perPage); err != nil {
		return domain.ProductPage{}, err
	}

	if err := s.tracker.RegisterPageSize(ctx, cache.EntityProducts, perPage); err != nil {
		s.logger.WithError(err).WithField("per_page", perPage).Warn("Failed to register product page size")
	}

	return cache.GetOrCompute(ctx, s.layer, cache.ProductsPageKey(page, perPage), cache.ProductListTTL,
		func(ctx context.Context) (domain.ProductPage, error) {
			return s.products.List(ctx, page, perPage)
		})
}

// Get возвращает товар по ID.
func (s *Service) Get(ctx context.Context, id int64) (domain.Product, error) {
	return cache.GetOrCompute(ctx, s.layer, cache.ProductKey(id), cache.ProductDetailTTL,
		func(ctx context.Context) (domain.Product, error) {
			return s.products.Get(ctx, id)
		})
}

// Create добавляет товар.
func (s *Service) Create(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	if err := in.Validate(); err != nil {
		return domain.Product{}, err
	}

	product, err := s.products.Create(ctx, in.Apply(domain.Product{}))
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"category":   product.Category,
	}).Info("Product created")

	s.invalidate(ctx, product.ID)
	return product, nil
}

// Update полностью заменяет поля товара.
func (s *Service) Update(ctx context.Context, id int64, in domain.ProductInput) (domain.Product, error) {
	if err := in.Validate(); err != nil {
		return domain.Product{}, err
	}

	current, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := s.products.Update(ctx, in.Apply(current))
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithField("product_id", product.ID).Info("Product updated")

	s.invalidate(ctx, product.ID)
	return product, nil
}

// Delete удаляет товар, если на него не ссылаются заказы.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrProductInUse) {
			return &domain.ProductInUseError{ProductID: id}
		}
		return err
	}

	s.logger.WithField("product_id", id).Info("Product deleted")

	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, productID int64) {
	if _, err := s.tracker.InvalidateAll(ctx, cache.EntityProducts, 0); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate product lists")
	}
	s.layer.Forget(ctx, cache.ProductKey(productID))
}
