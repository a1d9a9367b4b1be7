package orders

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service: операции над заказами от имени аутентифицированного пользователя.
type Service struct {
	coordinator *Coordinator
	orders      domain.OrderRepository
	products    domain.ProductRepository
	layer       *cache.Layer
	tracker     *cache.Tracker
	logger      *log.Entry
}

// NewService собирает сервис заказов.
func NewService(
	coordinator *Coordinator,
	orders domain.OrderRepository,
	products domain.ProductRepository,
	layer *cache.Layer,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "order-service")
	}
	return &Service{
		coordinator: coordinator,
		orders:      orders,
		products:    products,
		layer:       layer,
		tracker:     cache.NewTracker(layer),
		logger:      logger,
	}
}

// List возвращает страницу заказов пользователя, новые первыми.
func (s *Service) List(ctx context.Context, userID int64, page, perPage int) (domain.OrderPage, error) {
	if err := domain.ValidatePage(page, perPage); err != nil {
		return domain.OrderPage{}, err
	}

	if err := s.tracker.RegisterPageSize(ctx, cache.EntityOrders, perPage); err != nil {
		s.logger.WithError(err).WithField("per_page", perPage).Warn("Failed to register order page size")
	}

	key := cache.OrdersPageKey(userID, page, perPage)
	return cache.GetOrCompute(ctx, s.layer, key, cache.OrderListTTL, func(ctx context.Context) (domain.OrderPage, error) {
		return s.orders.ListByUser(ctx, userID, page, perPage)
	})
}

// Get возвращает заказ, если он принадлежит пользователю.
func (s *Service) Get(ctx context.Context, userID, orderID int64) (domain.Order, error) {
	return s.findAuthorized(ctx, userID, orderID)
}

// Create проверяет позиции и создаёт заказ одной транзакцией.
func (s *Service) Create(ctx context.Context, userID int64, items []domain.OrderItem) (domain.Order, error) {
	if err := s.validateItems(ctx, items); err != nil {
		return domain.Order{}, err
	}

	order, err := s.coordinator.CreateOrder(ctx, userID, items)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  userID,
		"lines":    len(order.Lines),
	}).Info("Order created")

	s.invalidate(ctx, userID, order.ProductIDs())
	return order, nil
}

// Update заменяет позиции pending-заказа пользователя.
func (s *Service) Update(ctx context.Context, userID, orderID int64, items []domain.OrderItem) (domain.Order, error) {
	current, err := s.findAuthorized(ctx, userID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !current.Status.CanBeEdited() {
		return domain.Order{}, &domain.NotEditableError{Status: current.Status}
	}
	if err := s.validateItems(ctx, items); err != nil {
		return domain.Order{}, err
	}

	updated, err := s.coordinator.UpdateOrder(ctx, current, items)
	if err != nil {
		return domain.Order{}, err
	}

	s.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"user_id":  userID,
		"lines":    len(updated.Lines),
	}).Info("Order updated")

	// Прежние товары тоже изменили остаток.
	touched := append(current.ProductIDs(), updated.ProductIDs()...)
	s.invalidate(ctx, userID, touched)
	return updated, nil
}

// Cancel отменяет заказ пользователя. Повторная отмена возвращает заказ как есть.
func (s *Service) Cancel(ctx context.Context, userID, orderID int64) (domain.Order, error) {
	current, err := s.findAuthorized(ctx, userID, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	cancelled, err := s.coordinator.Cancel(ctx, current)
	if err != nil {
		return domain.Order{}, err
	}

	if current.Status != domain.OrderStatusCancelled {
		s.logger.WithFields(log.Fields{
			"order_id": cancelled.ID,
			"user_id":  userID,
		}).Info("Order cancelled")
		s.invalidate(ctx, userID, nil)
	}
	return cancelled, nil
}

// findAuthorized не различает отсутствующий и чужой заказ.
func (s *Service) findAuthorized(ctx context.Context, userID, orderID int64) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, &domain.AccessDeniedError{OrderID: orderID, UserID: userID}
		}
		return domain.Order{}, err
	}
	if order.UserID != userID {
		return domain.Order{}, &domain.AccessDeniedError{OrderID: orderID, UserID: userID}
	}
	return order, nil
}

func (s *Service) validateItems(ctx context.Context, items []domain.OrderItem) error {
	if err := domain.ValidateItems(items); err != nil {
		return err
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	missing, err := s.products.MissingIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("check order products: %w", err)
	}
	if len(missing) == 0 {
		return nil
	}

	for i, item := range items {
		if item.ProductID == missing[0] {
			return &domain.ValidationError{
				Field: fmt.Sprintf("items.%d.produto_id", i),
				Err:   domain.ErrItemProductUnknown,
			}
		}
	}
	return &domain.ValidationError{Field: "items", Err: domain.ErrItemProductUnknown}
}

// invalidate очищает списки заказов пользователя и каталог после commit.
// Ошибки кэша не прерывают запрос.
func (s *Service) invalidate(ctx context.Context, userID int64, productIDs []int64) {
	if _, err := s.tracker.InvalidateAll(ctx, cache.EntityOrders, userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate order lists")
	}
	if _, err := s.tracker.InvalidateAll(ctx, cache.EntityProducts, 0); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate product lists")
	}

	if len(productIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, cache.ProductKey(id))
	}
	s.layer.Forget(ctx, keys...)
}
