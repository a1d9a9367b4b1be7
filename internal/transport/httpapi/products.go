package httpapi

import (
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (a *api) listProducts(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	result, err := a.catalog.List(r.Context(), page, perPage)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	items := make([]productResponse, 0, len(result.Items))
	for _, p := range result.Items {
		items = append(items, toProduct(p))
	}
	writePage(w, items, result.Page)
}

func (a *api) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", domain.ErrProductNotFound)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	product, err := a.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, toProduct(product))
}

func (a *api) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	product, err := a.catalog.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeData(w, http.StatusCreated, toProduct(product))
}

func (a *api) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", domain.ErrProductNotFound)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	product, err := a.catalog.Update(r.Context(), id, req.input())
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	writeData(w, http.StatusOK, toProduct(product))
}

func (a *api) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", domain.ErrProductNotFound)
	if err != nil {
		writeError(w, r, a.logger, err)
		return
	}

	if err := a.catalog.Delete(r.Context(), id); err != nil {
		writeError(w, r, a.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
