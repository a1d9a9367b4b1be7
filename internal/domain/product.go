package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	maxProductTextLen = 255
	// Границы колонок NUMERIC(10,2) и INTEGER.
	priceScale = 2
	maxStock   = math.MaxInt32
)

var priceCeiling = decimal.New(1, 10-priceScale)

// Product: товар каталога.
type Product struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Stock    int
	Category string
	// CreatedAt и UpdatedAt проставляет хранилище.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductInput: данные для создания или обновления товара.
type ProductInput struct {
	Name     string
	Price    decimal.Decimal
	Stock    int
	Category string
}

// Validate проверяет поля товара и нормализует строки.
func (in *ProductInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)

	switch {
	case in.Name == "":
		return &ValidationError{Field: "nome", Err: ErrProductNameRequired}
	case len(in.Name) > maxProductTextLen:
		return &ValidationError{Field: "nome", Err: ErrFieldTooLong}
	case in.Price.IsNegative(), in.Price.GreaterThanOrEqual(priceCeiling), !in.Price.Equal(in.Price.Round(priceScale)):
		return &ValidationError{Field: "preco", Err: ErrProductPriceInvalid}
	case in.Stock < 0, in.Stock > maxStock:
		return &ValidationError{Field: "estoque", Err: ErrProductStockInvalid}
	case in.Category == "":
		return &ValidationError{Field: "categoria", Err: ErrProductCategoryRequired}
	case len(in.Category) > maxProductTextLen:
		return &ValidationError{Field: "categoria", Err: ErrFieldTooLong}
	}
	return nil
}

// Apply переносит поля ввода в товар.
func (in ProductInput) Apply(p Product) Product {
	p.Name = in.Name
	p.Price = in.Price
	p.Stock = in.Stock
	p.Category = in.Category
	return p
}

// Параметры пагинации по умолчанию.
const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// ValidatePage проверяет номер и размер страницы.
func ValidatePage(page, perPage int) error {
	if page < 1 {
		return &ValidationError{Field: "page", Err: ErrPaginationOutOfRange}
	}
	if perPage < 1 || perPage > MaxPerPage {
		return &ValidationError{Field: "per_page", Err: ErrPaginationOutOfRange}
	}
	return nil
}

// Page описывает параметры и итог пагинации.
type Page struct {
	Number  int
	PerPage int
	Total   int
}

// LastPage возвращает номер последней страницы (минимум 1).
func (p Page) LastPage() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// Offset возвращает смещение первой записи страницы.
func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.PerPage
}

// ProductPage: страница каталога.
type ProductPage struct {
	Items []Product
	Page  Page
}
