package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"insufficient stock", &domain.InsufficientStockError{ProductID: 1, Available: 0, Requested: 2}, http.StatusUnprocessableEntity},
		{"not editable", fmt.Errorf("update: %w", &domain.NotEditableError{Status: domain.OrderStatusCancelled}), http.StatusUnprocessableEntity},
		{"not cancellable", &domain.NotCancellableError{Status: domain.OrderStatusCompleted}, http.StatusUnprocessableEntity},
		{"access denied", &domain.AccessDeniedError{OrderID: 1, UserID: 2}, http.StatusForbidden},
		{"product in use", &domain.ProductInUseError{ProductID: 3}, http.StatusConflict},
		{"validation", &domain.ValidationError{Field: "items", Err: domain.ErrItemsRequired}, http.StatusUnprocessableEntity},
		{"credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{"unauthenticated", domain.ErrUnauthenticated, http.StatusUnauthorized},
		{"product not found", domain.ErrProductNotFound, http.StatusNotFound},
		{"order not found", domain.ErrOrderNotFound, http.StatusNotFound},
		{"tx aborted", fmt.Errorf("%w: create after 3 attempts", domain.ErrTransactionAborted), http.StatusConflict},
		{"idempotency mismatch", domain.ErrIdempotencyHashMismatch, http.StatusUnprocessableEntity},
		{"idempotency in flight", domain.ErrIdempotencyKeyAlreadyExists, http.StatusConflict},
		{"bad json", errBadJSON, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"canceled", context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := mapError(tt.err)
			require.Equal(t, tt.status, resp.Status)
			require.NotEmpty(t, resp.Message)
		})
	}
}

func TestMapErrorDetails(t *testing.T) {
	resp := mapError(&domain.InsufficientStockError{ProductID: 7, Available: 1, Requested: 4})
	require.Equal(t, map[string]any{
		"produto_id":            int64(7),
		"quantidade_disponivel": 1,
		"quantidade_solicitada": 4,
	}, resp.Errors)

	resp = mapError(&domain.ValidationError{Field: "email", Err: domain.ErrEmailTaken})
	require.Equal(t, domain.ErrEmailTaken.Error(), resp.Message)
	require.Contains(t, resp.Errors, "email")
}

func TestRequestHashDependsOnPathAndBody(t *testing.T) {
	base := requestHash(http.MethodPost, "/api/pedidos", []byte(`{"items":[]}`))
	require.Equal(t, base, requestHash(http.MethodPost, "/api/pedidos", []byte(" {\"items\":[]}\n")))
	require.NotEqual(t, base, requestHash(http.MethodPost, "/api/pedidos/1", []byte(`{"items":[]}`)))
	require.NotEqual(t, base, requestHash(http.MethodPost, "/api/pedidos", []byte(`{"items":[1]}`)))
}
