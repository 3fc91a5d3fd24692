package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-resilient-orders/internal/inventory"
	"github.com/ariefcatur/go-resilient-orders/internal/stock"
	"github.com/go-chi/chi/v5"
)

// ProductsHandler serves the stock ledger API.
type ProductsHandler struct {
	Service *inventory.Service
	Log     *slog.Logger
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Put("/reduce/{id}", h.reduce)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func productID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *ProductsHandler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, stock.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		writeError(w, r, http.StatusConflict, "INSUFFICIENT_STOCK", err.Error())
	case errors.Is(err, inventory.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	default:
		log := h.Log
		if log == nil {
			log = slog.Default()
		}
		log.Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Service.ListProducts(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid product id")
		return
	}
	p, err := h.Service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in inventory.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid json")
		return
	}
	p, err := h.Service.CreateProduct(r.Context(), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid product id")
		return
	}
	var in inventory.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid json")
		return
	}
	p, err := h.Service.UpdateProduct(r.Context(), id, in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid product id")
		return
	}
	if err := h.Service.DeleteProduct(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) reduce(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid product id")
		return
	}
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "quantity must be an integer")
		return
	}
	p, err := h.Service.ReduceQuantity(r.Context(), id, qty, r.Header.Get(stock.HeaderIdempotencyKey))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
