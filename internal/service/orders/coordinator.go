// Package orders реализует транзакционное построение заказов и
// сервис заказов поверх него.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/ledger"
)

const (
	opCreate = "create"
	opUpdate = "update"
	opCancel = "cancel"
)

// Coordinator выполняет создание, изменение и отмену заказа одной транзакцией.
type Coordinator struct {
	runner  domain.TxRunner
	ledger  *ledger.Ledger
	lines   *LineProcessor
	retry   RetryConfig
	metrics *metrics.ShopMetrics
	logger  *log.Entry
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// CoordinatorOption настраивает Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRetryConfig задаёт политику повторов при конфликте транзакций.
func WithRetryConfig(cfg RetryConfig) CoordinatorOption {
	return func(c *Coordinator) {
		c.retry = cfg.normalized()
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.ShopMetrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
			c.lines.now = now
		}
	}
}

// NewCoordinator создаёт координатор поверх TxRunner хранилища.
func NewCoordinator(runner domain.TxRunner, opts ...CoordinatorOption) *Coordinator {
	l := ledger.New()
	c := &Coordinator{
		runner: runner,
		ledger: l,
		lines:  NewLineProcessor(l),
		retry:  DefaultRetryConfig(),
		logger: log.New().WithField("component", "order-coordinator"),
		now:    func() time.Time { return time.Now().UTC() },
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateOrder создаёт pending-заказ пользователя с позициями items.
func (c *Coordinator) CreateOrder(ctx context.Context, userID int64, items []domain.OrderItem) (domain.Order, error) {
	var created domain.Order
	err := c.inTx(ctx, opCreate, func(tx domain.OrderTx) error {
		now := c.now()
		order, err := tx.InsertOrder(ctx, domain.Order{
			UserID:    userID,
			Status:    domain.OrderStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}

		order.Lines, err = c.lines.ProcessItems(ctx, tx, order.ID, items)
		if err != nil {
			return err
		}
		if err := c.enqueue(ctx, tx, domain.OrderEventCreated, order); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	c.metrics.RecordOrderCreated()
	return created, nil
}

// UpdateOrder заменяет позиции заказа: возвращает на склад прежние
// количества, удаляет позиции и обрабатывает items заново.
// Статус перепроверяется под блокировкой строки заказа.
func (c *Coordinator) UpdateOrder(ctx context.Context, order domain.Order, items []domain.OrderItem) (domain.Order, error) {
	var updated domain.Order
	err := c.inTx(ctx, opUpdate, func(tx domain.OrderTx) error {
		current, err := tx.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if !current.Status.CanBeEdited() {
			return &domain.NotEditableError{Status: current.Status}
		}

		if err := c.ledger.ReverseAllForOrder(ctx, tx, current.ID); err != nil {
			return err
		}
		if err := tx.DeleteOrderLines(ctx, current.ID); err != nil {
			return err
		}

		current.Lines, err = c.lines.ProcessItems(ctx, tx, current.ID, items)
		if err != nil {
			return err
		}

		current.UpdatedAt = c.now()
		if err := tx.UpdateOrderStatus(ctx, current.ID, current.Status, current.UpdatedAt); err != nil {
			return err
		}
		if err := c.enqueue(ctx, tx, domain.OrderEventUpdated, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	c.metrics.RecordOrderUpdated()
	return updated, nil
}

// Cancel переводит заказ в cancelled. Повторная отмена ничего не делает.
// Остатки при отмене не возвращаются.
func (c *Coordinator) Cancel(ctx context.Context, order domain.Order) (domain.Order, error) {
	var (
		result  domain.Order
		changed bool
	)
	err := c.inTx(ctx, opCancel, func(tx domain.OrderTx) error {
		changed = false
		current, err := tx.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		current.Lines, err = tx.ListOrderLines(ctx, current.ID)
		if err != nil {
			return err
		}

		if current.Status == domain.OrderStatusCancelled {
			result = current
			return nil
		}
		if !current.Status.CanBeCancelled() {
			return &domain.NotCancellableError{Status: current.Status}
		}

		current.Status = domain.OrderStatusCancelled
		current.UpdatedAt = c.now()
		if err := tx.UpdateOrderStatus(ctx, current.ID, current.Status, current.UpdatedAt); err != nil {
			return err
		}
		if err := c.enqueue(ctx, tx, domain.OrderEventCancelled, current); err != nil {
			return err
		}
		result = current
		changed = true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if changed {
		c.metrics.RecordOrderCancelled()
	}
	return result, nil
}

func (c *Coordinator) enqueue(ctx context.Context, tx domain.OrderTx, eventType domain.OrderEventType, order domain.Order) error {
	msg, err := domain.NewOrderOutboxMessage(eventType, order, c.now())
	if err != nil {
		return err
	}
	return tx.EnqueueOutbox(ctx, msg)
}

// inTx повторяет транзакцию при ErrTxConflict с экспоненциальной задержкой.
// Исчерпание попыток превращается в ErrTransactionAborted.
func (c *Coordinator) inTx(ctx context.Context, operation string, fn func(tx domain.OrderTx) error) error {
	start := time.Now()
	defer func() {
		c.metrics.RecordTxDuration(operation, time.Since(start))
	}()

	delay := c.retry.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		err := c.runner.InTx(ctx, fn)
		if err == nil {
			if attempt > 1 {
				c.logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("Order transaction succeeded after retry")
			}
			return nil
		}
		if !domain.IsTxConflict(err) {
			c.recordFailure(operation, err)
			return err
		}

		lastErr = err
		if attempt == c.retry.MaxAttempts {
			break
		}

		c.metrics.RecordTxRetry(operation)
		c.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).Warn("Order transaction conflict, retrying")

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
		delay = c.retry.nextDelay(delay)
	}

	c.logger.WithError(lastErr).WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": c.retry.MaxAttempts,
	}).Error("Order transaction failed after all retry attempts")

	err := fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrTransactionAborted, operation, c.retry.MaxAttempts, lastErr)
	c.recordFailure(operation, err)
	return err
}

func (c *Coordinator) recordFailure(operation string, err error) {
	reason := failureReason(err)
	if reason == "insufficient_stock" {
		c.metrics.RecordInsufficientStock()
	}
	c.metrics.RecordOrderFailed(operation, reason)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrOrderNotEditable):
		return "not_editable"
	case errors.Is(err, domain.ErrOrderNotCancellable):
		return "not_cancellable"
	case errors.Is(err, domain.ErrTransactionAborted):
		return "tx_aborted"
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsValidation(err), errors.Is(err, domain.ErrDuplicateItem):
		return "validation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
