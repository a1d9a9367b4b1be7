package domain

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// Ошибка пустого списка позиций.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве товара (< 1).
	ErrItemQtyInvalid = errors.New("item quantity must be at least 1")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrItemProductRequired = errors.New("item product id is required")
	// Ошибка ссылки на несуществующий товар в позиции.
	ErrItemProductUnknown = errors.New("item references an unknown product")
	// Один и тот же товар дважды в одном заказе.
	ErrDuplicateItem = errors.New("product may appear only once per order")

	ErrProductNameRequired     = errors.New("product name is required")
	ErrProductCategoryRequired = errors.New("product category is required")
	ErrProductPriceInvalid     = errors.New("product price must be between 0 and 99999999.99 with at most 2 decimals")
	ErrProductStockInvalid     = errors.New("product stock must be between 0 and 2147483647")
	ErrFieldTooLong            = errors.New("field must not exceed 255 characters")

	ErrUserNameRequired      = errors.New("name is required")
	ErrEmailInvalid          = errors.New("email must be a valid address")
	ErrPasswordTooShort      = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong       = errors.New("password must not exceed 72 bytes")
	ErrPasswordMismatch      = errors.New("password confirmation does not match")
	ErrPasswordRequired      = errors.New("password is required")
	ErrPaginationOutOfRange  = errors.New("pagination parameter out of range")
	ErrEmailTaken            = errors.New("email has already been taken")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrTokenNotFound         = errors.New("access token not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrProductNotFound       = errors.New("product not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrOrderNotEditable      = errors.New("only pending orders can be edited")
	ErrOrderNotCancellable   = errors.New("order can no longer be cancelled")
	ErrInvalidTransition     = errors.New("invalid order status transition")
	ErrAccessDenied          = errors.New("access to order denied")
	ErrProductInUse          = errors.New("product cannot be deleted because it is referenced by orders")
	ErrTxConflict            = errors.New("transaction aborted by concurrent update")
	ErrTransactionAborted    = errors.New("transaction aborted, retry the request")
	ErrCacheUnavailable      = errors.New("cache unavailable")
	ErrOutboxPublish         = errors.New("outbox publish failed")
	ErrOutboxMessageNotFound = errors.New("outbox message not found")

	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with a different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
)

// InsufficientStockError: на складе меньше, чем запрошено.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// NotEditableError: попытка изменить позиции не-pending заказа.
type NotEditableError struct {
	Status OrderStatus
}

func (e *NotEditableError) Error() string {
	return fmt.Sprintf("%s: current status %s", ErrOrderNotEditable, e.Status)
}

func (e *NotEditableError) Unwrap() error { return ErrOrderNotEditable }

// NotCancellableError: отмена из статуса, где она запрещена.
type NotCancellableError struct {
	Status OrderStatus
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("%s: current status %s", ErrOrderNotCancellable, e.Status)
}

func (e *NotCancellableError) Unwrap() error { return ErrOrderNotCancellable }

// AccessDeniedError: заказ не принадлежит пользователю (или не существует).
type AccessDeniedError struct {
	OrderID int64
	UserID  int64
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("%s: order %d, user %d", ErrAccessDenied, e.OrderID, e.UserID)
}

func (e *AccessDeniedError) Unwrap() error { return ErrAccessDenied }

// ProductInUseError: удаление товара, на который ссылаются позиции заказов.
type ProductInUseError struct {
	ProductID int64
}

func (e *ProductInUseError) Error() string {
	return fmt.Sprintf("product %d is referenced by orders", e.ProductID)
}

func (e *ProductInUseError) Unwrap() error { return ErrProductInUse }

// ValidationError привязывает ошибку входных данных к полю запроса.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation проверяет, что ошибка относится к входным данным.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// IsTxConflict проверяет, что транзакцию можно повторить.
func IsTxConflict(err error) bool {
	return errors.Is(err, ErrTxConflict)
}

// IsNotFound объединяет все ошибки отсутствующих сущностей.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

func itemField(index int, name string) string {
	return "items." + strconv.Itoa(index) + "." + name
}
