package httpapi

import (
	"context"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// errorResponse: единый формат ошибки API.
type errorResponse struct {
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Errors  map[string]any `json:"errors,omitempty"`
}

// errBadJSON: тело запроса не разбирается как JSON.
var errBadJSON = errors.New("request body must be valid JSON")

// mapError переводит доменную ошибку в HTTP-ответ.
func mapError(err error) errorResponse {
	var (
		stockErr       *domain.InsufficientStockError
		notEditable    *domain.NotEditableError
		notCancellable *domain.NotCancellableError
		denied         *domain.AccessDeniedError
		inUse          *domain.ProductInUseError
		validation     *domain.ValidationError
	)

	switch {
	case errors.As(err, &stockErr):
		return errorResponse{
			Message: "Insufficient stock for the requested product",
			Status:  http.StatusUnprocessableEntity,
			Errors: map[string]any{
				"produto_id":            stockErr.ProductID,
				"quantidade_disponivel": stockErr.Available,
				"quantidade_solicitada": stockErr.Requested,
			},
		}
	case errors.As(err, &notEditable):
		return errorResponse{
			Message: "Only pending orders can be edited",
			Status:  http.StatusUnprocessableEntity,
			Errors:  map[string]any{"status_atual": notEditable.Status},
		}
	case errors.As(err, &notCancellable):
		return errorResponse{
			Message: "This order can no longer be cancelled",
			Status:  http.StatusUnprocessableEntity,
			Errors:  map[string]any{"status_atual": notCancellable.Status},
		}
	case errors.As(err, &denied):
		return errorResponse{
			Message: "You do not have access to this order",
			Status:  http.StatusForbidden,
			Errors:  map[string]any{"pedido_id": denied.OrderID, "user_id": denied.UserID},
		}
	case errors.As(err, &inUse):
		return errorResponse{
			Message: "Product cannot be deleted because it is referenced by orders",
			Status:  http.StatusConflict,
			Errors:  map[string]any{"produto_id": inUse.ProductID},
		}
	case errors.As(err, &validation):
		return errorResponse{
			Message: validation.Err.Error(),
			Status:  http.StatusUnprocessableEntity,
			Errors:  map[string]any{validation.Field: []string{validation.Err.Error()}},
		}
	case errors.Is(err, errBadJSON):
		return errorResponse{Message: errBadJSON.Error(), Status: http.StatusBadRequest}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return errorResponse{Message: "Invalid credentials", Status: http.StatusUnauthorized}
	case errors.Is(err, domain.ErrUnauthenticated):
		return errorResponse{Message: "Unauthenticated", Status: http.StatusUnauthorized}
	case errors.Is(err, domain.ErrProductNotFound):
		return errorResponse{Message: "Product not found", Status: http.StatusNotFound}
	case errors.Is(err, domain.ErrOrderNotFound):
		return errorResponse{Message: "Order not found", Status: http.StatusNotFound}
	case errors.Is(err, domain.ErrTransactionAborted):
		return errorResponse{Message: "The request conflicted with a concurrent update, please retry", Status: http.StatusConflict}
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return errorResponse{Message: "Idempotency-Key was already used with a different request", Status: http.StatusUnprocessableEntity}
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return errorResponse{Message: "A request with this Idempotency-Key is still being processed", Status: http.StatusConflict}
	default:
		return errorResponse{Message: "Internal server error", Status: http.StatusInternalServerError}
	}
}

// writeError пишет ошибку; 5xx логируются с исходной причиной.
func writeError(w http.ResponseWriter, r *http.Request, logger *log.Entry, err error) {
	resp := mapError(err)
	if resp.Status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
	}
	writeJSON(w, resp.Status, resp)
}
