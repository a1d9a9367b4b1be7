// Package httpapi: REST API магазина поверх chi.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/auth"
)

// Accounts: регистрация и аутентификация.
type Accounts interface {
	Register(ctx context.Context, in auth.RegisterInput) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

// Catalog: операции над товарами.
type Catalog interface {
	List(ctx context.Context, page, perPage int) (domain.ProductPage, error)
	Get(ctx context.Context, id int64) (domain.Product, error)
	Create(ctx context.Context, in domain.ProductInput) (domain.Product, error)
	Update(ctx context.Context, id int64, in domain.ProductInput) (domain.Product, error)
	Delete(ctx context.Context, id int64) error
}

// Orders: операции над заказами покупателя.
type Orders interface {
	List(ctx context.Context, userID int64, page, perPage int) (domain.OrderPage, error)
	Get(ctx context.Context, userID, orderID int64) (domain.Order, error)
	Create(ctx context.Context, userID int64, items []domain.OrderItem) (domain.Order, error)
	Update(ctx context.Context, userID, orderID int64, items []domain.OrderItem) (domain.Order, error)
	Cancel(ctx context.Context, userID, orderID int64) (domain.Order, error)
}

// Deps: зависимости роутера. Idempotency может быть nil.
type Deps struct {
	Accounts    Accounts
	Catalog     Catalog
	Orders      Orders
	Idempotency domain.IdempotencyRepository
	Metrics     *metrics.ShopMetrics
	Logger      *log.Entry
}

type api struct {
	accounts Accounts
	catalog  Catalog
	orders   Orders
	logger   *log.Entry
}

// NewRouter собирает http.Handler со всеми маршрутами /api.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}

	a := &api{
		accounts: deps.Accounts,
		catalog:  deps.Catalog,
		orders:   deps.Orders,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger, deps.Metrics))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Route not found", Status: http.StatusNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: "Method not allowed", Status: http.StatusMethodNotAllowed})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", a.register)
		r.Post("/login", a.login)

		r.Route("/produtos", func(r chi.Router) {
			r.Get("/", a.listProducts)
			r.Post("/", a.createProduct)
			r.Get("/{id}", a.getProduct)
			r.Put("/{id}", a.updateProduct)
			r.Delete("/{id}", a.deleteProduct)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Post("/logout", a.logout)

			r.Route("/pedidos", func(r chi.Router) {
				r.Get("/", a.listOrders)
				r.With(idempotent(deps.Idempotency, logger)).Post("/", a.createOrder)
				r.Get("/{id}", a.getOrder)
				r.Put("/{id}", a.updateOrder)
				r.Get("/{id}/cancel", a.cancelOrder)
				r.Post("/{id}/cancel", a.cancelOrder)
			})
		})
	})

	return r
}
