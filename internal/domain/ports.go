package domain

import (
	"context"
	"time"
)

// OrderTx: операции, доступные внутри транзакции построения заказа.
// Реализация обязана держать блокировки строк до commit/rollback.
type OrderTx interface {
	// LockProduct читает товар с эксклюзивной блокировкой строки.
	LockProduct(ctx context.Context, productID int64) (Product, error)
	// SetProductStock записывает новый остаток заблокированного товара.
	SetProductStock(ctx context.Context, productID int64, stock int) error
	// InsertOrder создаёт заказ и возвращает его с присвоенным ID.
	InsertOrder(ctx context.Context, order Order) (Order, error)
	// LockOrder перечитывает заказ (без позиций) с блокировкой строки.
	LockOrder(ctx context.Context, orderID int64) (Order, error)
	// UpdateOrderStatus меняет статус заказа.
	UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus, at time.Time) error
	// ListOrderLines возвращает позиции заказа вместе с названием и категорией товара.
	ListOrderLines(ctx context.Context, orderID int64) ([]OrderLine, error)
	InsertOrderLine(ctx context.Context, line OrderLine) (OrderLine, error)
	DeleteOrderLines(ctx context.Context, orderID int64) error
	// EnqueueOutbox сохраняет событие в той же транзакции.
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) error
}

// TxRunner выполняет fn атомарно: при ошибке все изменения откатываются.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx OrderTx) error) error
}

// ProductRepository: чтение и CRUD каталога вне транзакции заказа.
type ProductRepository interface {
	List(ctx context.Context, page, perPage int) (ProductPage, error)
	Get(ctx context.Context, id int64) (Product, error)
	// MissingIDs возвращает идентификаторы из ids, для которых нет товара.
	MissingIDs(ctx context.Context, ids []int64) ([]int64, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, product Product) (Product, error)
	// Delete возвращает ErrProductInUse, если на товар ссылаются позиции заказов.
	Delete(ctx context.Context, id int64) error
}

// OrderRepository: чтение заказов вне транзакции.
type OrderRepository interface {
	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(ctx context.Context, id int64) (Order, error)
	// ListByUser возвращает страницу заказов пользователя, новые первыми.
	ListByUser(ctx context.Context, userID int64, page, perPage int) (OrderPage, error)
}

// UserRepository хранит пользователей.
type UserRepository interface {
	// Create возвращает ErrEmailTaken при повторном email.
	Create(ctx context.Context, user User) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
}

// TokenRepository хранит хэши выданных токенов.
type TokenRepository interface {
	Create(ctx context.Context, token AccessToken) error
	// UserIDByHash возвращает владельца токена или ErrTokenNotFound.
	UserIDByHash(ctx context.Context, hash string) (int64, error)
	Delete(ctx context.Context, hash string) error
	DeleteByUser(ctx context.Context, userID int64) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository отдаёт накопленные события воркеру публикации.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
