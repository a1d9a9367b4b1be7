package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (a *api) listOrders(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())

	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	result, err := a.orders.List(r.Context(), user.ID, page, perPage)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	items := make([]orderResponse, 0, len(result.Items))
	for _, o := range result.Items {
		items = append(items, toOrder(o))
	}
	writePage(w, items, result.Page)
}

func (a *api) getOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	id, err := idParam(r, "id", domain.ErrOrderNotFound)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	order, err := a.orders.Get(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, toOrder(order))
}

func (a *api) createOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())

	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	order, err := a.orders.Create(r.Context(), user.ID, req.items())
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeData(w, http.StatusCreated, toOrder(order))
}

func (a *api) updateOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	id, err := idParam(r, "id", domain.ErrOrderNotFound)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	order, err := a.orders.Update(r.Context(), user.ID, id, req.items())
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, toOrder(order))
}

func (a *api) cancelOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := currentUser(r.Context())
	id, err := idParam(r, "id", domain.ErrOrderNotFound)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	order, err := a.orders.Cancel(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, toOrder(order))
}
