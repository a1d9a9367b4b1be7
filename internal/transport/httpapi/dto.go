package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/auth"
)

type registerRequest struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type productRequest struct {
	Name     string          `json:"nome"`
	Price    decimal.Decimal `json:"preco"`
	Stock    int             `json:"estoque"`
	Category string          `json:"categoria"`
}

func (r productRequest) input() domain.ProductInput {
	return domain.ProductInput{
		Name:     r.Name,
		Price:    r.Price,
		Stock:    r.Stock,
		Category: r.Category,
	}
}

type orderItemRequest struct {
	ProductID int64 `json:"produto_id"`
	Quantity  int   `json:"quantidade"`
}

type orderRequest struct {
	Items []orderItemRequest `json:"items"`
}

func (r orderRequest) items() []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, domain.OrderItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return items
}

type userResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type sessionResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type productResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"nome"`
	Price     string    `json:"preco"`
	Stock     int       `json:"estoque"`
	Category  string    `json:"categoria"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type orderLineResponse struct {
	ProductID int64  `json:"produto_id"`
	Name      string `json:"nome"`
	Category  string `json:"categoria"`
	Quantity  int    `json:"quantidade"`
	UnitPrice string `json:"preco_unitario"`
	Subtotal  string `json:"subtotal"`
}

type orderResponse struct {
	ID        int64               `json:"id"`
	UserID    int64               `json:"user_id"`
	Status    domain.OrderStatus  `json:"status"`
	Total     string              `json:"total"`
	Items     []orderLineResponse `json:"items"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type pageMeta struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

type dataEnvelope struct {
	Data any       `json:"data"`
	Meta *pageMeta `json:"meta,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toUser(u domain.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}

func toSession(s auth.Session) sessionResponse {
	return sessionResponse{User: toUser(s.User), Token: s.Token}
}

func toProduct(p domain.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price.StringFixed(2),
		Stock:     p.Stock,
		Category:  p.Category,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toOrder(o domain.Order) orderResponse {
	items := make([]orderLineResponse, 0, len(o.Lines))
	for _, line := range o.Lines {
		items = append(items, orderLineResponse{
			ProductID: line.ProductID,
			Name:      line.ProductName,
			Category:  line.Category,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Subtotal:  line.Subtotal().StringFixed(2),
		})
	}
	return orderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		Total:     o.Total().StringFixed(2),
		Items:     items,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func toMeta(p domain.Page) *pageMeta {
	return &pageMeta{
		CurrentPage: p.Number,
		PerPage:     p.PerPage,
		Total:       p.Total,
		LastPage:    p.LastPage(),
	}
}
