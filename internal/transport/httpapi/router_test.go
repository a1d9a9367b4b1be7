package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/auth"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

type RouterSuite struct {
	suite.Suite

	store   *memory.Store
	handler http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.store = memory.NewStore()
	layer := cache.NewLayer(cache.NewMemoryCache(), nil, nil)
	products := memory.NewProductRepository(s.store)

	coordinator := orders.NewCoordinator(memory.NewTxRunner(s.store))
	s.handler = httpapi.NewRouter(httpapi.Deps{
		Accounts: auth.NewService(
			memory.NewUserRepository(s.store),
			memory.NewTokenRepository(s.store),
			auth.WithBcryptCost(bcrypt.MinCost),
		),
		Catalog:     catalog.NewService(products, layer, nil),
		Orders:      orders.NewService(coordinator, memory.NewOrderRepository(s.store), products, layer, nil),
		Idempotency: memory.NewIdempotencyRepository(),
	})
}

type response struct {
	Code   int
	Header http.Header
	Body   map[string]any
	Raw    []byte
}

func (s *RouterSuite) do(method, path, token string, body any, headers ...string) response {
	var payload []byte
	switch v := body.(type) {
	case nil:
	case string:
		payload = []byte(v)
	default:
		var err error
		payload, err = json.Marshal(v)
		s.Require().NoError(err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req.WithContext(context.Background()))

	resp := response{Code: rec.Code, Header: rec.Header(), Raw: rec.Body.Bytes()}
	if rec.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp.Body), rec.Body.String())
	}
	return resp
}

func (s *RouterSuite) register(email string) string {
	resp := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name":                  "Cliente",
		"email":                 email,
		"password":              "segredo123",
		"password_confirmation": "segredo123",
	})
	s.Require().Equal(http.StatusCreated, resp.Code, string(resp.Raw))
	return data(resp)["token"].(string)
}

func (s *RouterSuite) createProduct(name, price string, stock int) int64 {
	resp := s.do(http.MethodPost, "/api/produtos", "", map[string]any{
		"nome": name, "preco": price, "estoque": stock, "categoria": "Papelaria",
	})
	s.Require().Equal(http.StatusCreated, resp.Code, string(resp.Raw))
	return int64(data(resp)["id"].(float64))
}

func (s *RouterSuite) createOrder(token string, items ...map[string]any) response {
	return s.do(http.MethodPost, "/api/pedidos", token, map[string]any{"items": items})
}

func (s *RouterSuite) stock(productID int64) int {
	resp := s.do(http.MethodGet, fmt.Sprintf("/api/produtos/%d", productID), "", nil)
	s.Require().Equal(http.StatusOK, resp.Code)
	return int(data(resp)["estoque"].(float64))
}

func data(resp response) map[string]any {
	d, _ := resp.Body["data"].(map[string]any)
	return d
}

func errorsOf(resp response) map[string]any {
	e, _ := resp.Body["errors"].(map[string]any)
	return e
}

func item(productID int64, qty int) map[string]any {
	return map[string]any{"produto_id": productID, "quantidade": qty}
}

func (s *RouterSuite) TestRegisterLoginLogout() {
	token := s.register("ana@example.com")
	s.NotEmpty(token)

	dup := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name": "Ana", "email": "ANA@example.com", "password": "segredo123", "password_confirmation": "segredo123",
	})
	s.Equal(http.StatusUnprocessableEntity, dup.Code)
	s.Contains(errorsOf(dup), "email")

	bad := s.do(http.MethodPost, "/api/login", "", map[string]string{"email": "ana@example.com", "password": "errada123"})
	s.Equal(http.StatusUnauthorized, bad.Code)
	s.EqualValues(http.StatusUnauthorized, bad.Body["status"])

	login := s.do(http.MethodPost, "/api/login", "", map[string]string{"email": "ana@example.com", "password": "segredo123"})
	s.Require().Equal(http.StatusOK, login.Code)
	fresh := data(login)["token"].(string)

	// Вход отзывает прежние токены.
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/api/logout", token, nil).Code)

	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/logout", fresh, nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/pedidos", fresh, nil).Code)
}

func (s *RouterSuite) TestMalformedJSON() {
	resp := s.do(http.MethodPost, "/api/login", "", "{not json")
	s.Equal(http.StatusBadRequest, resp.Code)
}

func (s *RouterSuite) TestProductCRUD() {
	id := s.createProduct("Caneta", "2.5", 10)

	got := s.do(http.MethodGet, fmt.Sprintf("/api/produtos/%d", id), "", nil)
	s.Require().Equal(http.StatusOK, got.Code)
	s.Equal("2.50", data(got)["preco"])
	s.Equal("Caneta", data(got)["nome"])

	updated := s.do(http.MethodPut, fmt.Sprintf("/api/produtos/%d", id), "", map[string]any{
		"nome": "Caneta azul", "preco": 3, "estoque": 7, "categoria": "Papelaria",
	})
	s.Require().Equal(http.StatusOK, updated.Code)
	s.Equal("Caneta azul", data(updated)["nome"])
	s.Equal(7, s.stock(id))

	list := s.do(http.MethodGet, "/api/produtos?per_page=5", "", nil)
	s.Require().Equal(http.StatusOK, list.Code)
	meta := list.Body["meta"].(map[string]any)
	s.EqualValues(1, meta["current_page"])
	s.EqualValues(5, meta["per_page"])
	s.EqualValues(1, meta["total"])
	s.EqualValues(1, meta["last_page"])
	s.Len(list.Body["data"], 1)

	deleted := s.do(http.MethodDelete, fmt.Sprintf("/api/produtos/%d", id), "", nil)
	s.Equal(http.StatusNoContent, deleted.Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, fmt.Sprintf("/api/produtos/%d", id), "", nil).Code)
}

func (s *RouterSuite) TestProductValidationAndLookup() {
	resp := s.do(http.MethodPost, "/api/produtos", "", map[string]any{"preco": 1, "estoque": 1, "categoria": "X"})
	s.Equal(http.StatusUnprocessableEntity, resp.Code)
	s.Contains(errorsOf(resp), "nome")

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/produtos/abc", "", nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/produtos/999", "", nil).Code)

	page := s.do(http.MethodGet, "/api/produtos?per_page=101", "", nil)
	s.Equal(http.StatusUnprocessableEntity, page.Code)
	s.Contains(errorsOf(page), "per_page")

	s.Equal(http.StatusUnprocessableEntity, s.do(http.MethodGet, "/api/produtos?page=abc", "", nil).Code)
}

func (s *RouterSuite) TestOrdersRequireAuthentication() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/pedidos", "", nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/api/pedidos", "nope", nil).Code)
}

func (s *RouterSuite) TestRegisterRejectsOverlongPassword() {
	password := strings.Repeat("x", 80)
	resp := s.do(http.MethodPost, "/api/register", "", map[string]string{
		"name": "Rui", "email": "rui@example.com", "password": password, "password_confirmation": password,
	})
	s.Equal(http.StatusUnprocessableEntity, resp.Code, string(resp.Raw))
	s.Contains(errorsOf(resp), "password")
}

func (s *RouterSuite) TestCreateProductRejectsOutOfRangeValues() {
	for _, body := range []map[string]any{
		{"nome": "Caro", "preco": "100000000.00", "estoque": 1, "categoria": "Papelaria"},
		{"nome": "Fino", "preco": "1.999", "estoque": 1, "categoria": "Papelaria"},
		{"nome": "Muito", "preco": "1.00", "estoque": 2147483648, "categoria": "Papelaria"},
	} {
		resp := s.do(http.MethodPost, "/api/produtos", "", body)
		s.Equal(http.StatusUnprocessableEntity, resp.Code, string(resp.Raw))
	}
}

type unavailableAccounts struct {
	httpapi.Accounts
}

func (unavailableAccounts) Authenticate(context.Context, string) (domain.User, error) {
	return domain.User{}, errors.New("token store: connection refused")
}

func TestAuthenticationOutageIsServerError(t *testing.T) {
	handler := httpapi.NewRouter(httpapi.Deps{Accounts: unavailableAccounts{}})

	req := httptest.NewRequest(http.MethodGet, "/api/pedidos", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "Internal server error")
}

func (s *RouterSuite) TestOrderLifecycle() {
	token := s.register("bia@example.com")
	pen := s.createProduct("Caneta", "2.00", 10)
	book := s.createProduct("Livro", "30.00", 3)

	created := s.createOrder(token, item(pen, 2), item(book, 1))
	s.Require().Equal(http.StatusCreated, created.Code, string(created.Raw))
	order := data(created)
	s.Equal("pending", order["status"])
	s.Equal("34.00", order["total"])
	s.Len(order["items"], 2)
	s.Equal(8, s.stock(pen))
	s.Equal(2, s.stock(book))

	orderPath := fmt.Sprintf("/api/pedidos/%d", int64(order["id"].(float64)))

	updated := s.do(http.MethodPut, orderPath, token, map[string]any{"items": []map[string]any{item(pen, 5)}})
	s.Require().Equal(http.StatusOK, updated.Code, string(updated.Raw))
	s.Equal("10.00", data(updated)["total"])
	s.Equal(5, s.stock(pen))
	s.Equal(3, s.stock(book))

	cancelled := s.do(http.MethodGet, orderPath+"/cancel", token, nil)
	s.Require().Equal(http.StatusOK, cancelled.Code)
	s.Equal("cancelled", data(cancelled)["status"])
	s.Equal(5, s.stock(pen))

	again := s.do(http.MethodPost, orderPath+"/cancel", token, nil)
	s.Equal(http.StatusOK, again.Code)

	edit := s.do(http.MethodPut, orderPath, token, map[string]any{"items": []map[string]any{item(pen, 1)}})
	s.Equal(http.StatusUnprocessableEntity, edit.Code)
	s.Equal("cancelled", errorsOf(edit)["status_atual"])

	list := s.do(http.MethodGet, "/api/pedidos", token, nil)
	s.Require().Equal(http.StatusOK, list.Code)
	s.Len(list.Body["data"], 1)
}

func (s *RouterSuite) TestInsufficientStockDetails() {
	token := s.register("caio@example.com")
	book := s.createProduct("Livro", "30.00", 1)

	resp := s.createOrder(token, item(book, 3))
	s.Require().Equal(http.StatusUnprocessableEntity, resp.Code)
	details := errorsOf(resp)
	s.EqualValues(book, details["produto_id"])
	s.EqualValues(1, details["quantidade_disponivel"])
	s.EqualValues(3, details["quantidade_solicitada"])
	s.Equal(1, s.stock(book))
}

func (s *RouterSuite) TestItemValidation() {
	token := s.register("duda@example.com")
	pen := s.createProduct("Caneta", "2.00", 10)

	s.Equal(http.StatusUnprocessableEntity, s.createOrder(token).Code)
	s.Equal(http.StatusUnprocessableEntity, s.createOrder(token, item(pen, 0)).Code)
	s.Equal(http.StatusUnprocessableEntity, s.createOrder(token, item(pen, 1), item(pen, 2)).Code)

	unknown := s.createOrder(token, item(pen, 1), item(999, 1))
	s.Equal(http.StatusUnprocessableEntity, unknown.Code)
	s.Contains(errorsOf(unknown), "items.1.produto_id")
	s.Equal(10, s.stock(pen))
}

func (s *RouterSuite) TestForeignOrderIsForbidden() {
	owner := s.register("eva@example.com")
	other := s.register("fabio@example.com")
	pen := s.createProduct("Caneta", "2.00", 10)

	created := s.createOrder(owner, item(pen, 1))
	s.Require().Equal(http.StatusCreated, created.Code)
	path := fmt.Sprintf("/api/pedidos/%d", int64(data(created)["id"].(float64)))

	s.Equal(http.StatusForbidden, s.do(http.MethodGet, path, other, nil).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, path+"/cancel", other, nil).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/api/pedidos/424242", other, nil).Code)
}

func (s *RouterSuite) TestDeleteReferencedProductConflicts() {
	token := s.register("gil@example.com")
	pen := s.createProduct("Caneta", "2.00", 10)
	s.Require().Equal(http.StatusCreated, s.createOrder(token, item(pen, 1)).Code)

	resp := s.do(http.MethodDelete, fmt.Sprintf("/api/produtos/%d", pen), "", nil)
	s.Equal(http.StatusConflict, resp.Code)
	s.EqualValues(pen, errorsOf(resp)["produto_id"])
}

func (s *RouterSuite) TestIdempotentOrderCreation() {
	token := s.register("hugo@example.com")
	pen := s.createProduct("Caneta", "2.00", 10)
	body := map[string]any{"items": []map[string]any{item(pen, 2)}}

	first := s.do(http.MethodPost, "/api/pedidos", token, body, "Idempotency-Key", "order-1")
	s.Require().Equal(http.StatusCreated, first.Code)
	s.Empty(first.Header.Get("Idempotency-Replayed"))

	second := s.do(http.MethodPost, "/api/pedidos", token, body, "Idempotency-Key", "order-1")
	s.Require().Equal(http.StatusCreated, second.Code)
	s.Equal("true", second.Header.Get("Idempotency-Replayed"))
	s.JSONEq(string(first.Raw), string(second.Raw))
	s.Equal(8, s.stock(pen))

	changed := s.do(http.MethodPost, "/api/pedidos", token,
		map[string]any{"items": []map[string]any{item(pen, 3)}}, "Idempotency-Key", "order-1")
	s.Equal(http.StatusUnprocessableEntity, changed.Code)
	s.Equal(8, s.stock(pen))

	// Ключи изолированы по пользователю.
	other := s.register("iris@example.com")
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/api/pedidos", other, body, "Idempotency-Key", "order-1").Code)
	s.Equal(6, s.stock(pen))
}

func (s *RouterSuite) TestIdempotentFailureIsReplayed() {
	token := s.register("joao@example.com")
	book := s.createProduct("Livro", "30.00", 1)
	body := map[string]any{"items": []map[string]any{item(book, 2)}}

	first := s.do(http.MethodPost, "/api/pedidos", token, body, "Idempotency-Key", "k")
	s.Require().Equal(http.StatusUnprocessableEntity, first.Code)

	second := s.do(http.MethodPost, "/api/pedidos", token, body, "Idempotency-Key", "k")
	s.Equal(http.StatusUnprocessableEntity, second.Code)
	s.Equal("true", second.Header.Get("Idempotency-Replayed"))
}

func (s *RouterSuite) TestUnknownRoute() {
	resp := s.do(http.MethodGet, "/api/nada", "", nil)
	s.Equal(http.StatusNotFound, resp.Code)
	s.EqualValues(http.StatusNotFound, resp.Body["status"])
}
