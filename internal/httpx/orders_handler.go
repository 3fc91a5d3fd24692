package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-resilient-orders/internal/breaker"
	"github.com/ariefcatur/go-resilient-orders/internal/orders"
	"github.com/ariefcatur/go-resilient-orders/internal/redisx"
	"github.com/ariefcatur/go-resilient-orders/internal/stock"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

const headerIdempotencyKey = "Idempotency-Key"

type PlaceOrderReq struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type OrderResp struct {
	OrderID     string      `json:"orderId,omitempty"`
	ProductID   int64       `json:"productId"`
	Quantity    int         `json:"quantity"`
	TotalAmount json.Number `json:"totalAmount"`
	Status      string      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	CreatedAt   *time.Time  `json:"createdAt,omitempty"`
	Timestamp   *time.Time  `json:"timestamp,omitempty"`
	Idempotent  bool        `json:"idempotent,omitempty"`
}

func toOrderResp(o orders.Order) OrderResp {
	resp := OrderResp{
		OrderID:     o.ID,
		ProductID:   o.ProductID,
		Quantity:    o.Quantity,
		TotalAmount: json.Number(o.TotalAmount.String()),
		Status:      string(o.Status),
		Reason:      o.Reason,
	}
	ts := o.CreatedAt
	if o.Degraded() {
		resp.Timestamp = &ts
	} else {
		resp.CreatedAt = &ts
	}
	return resp
}

// OrdersHandler serves the order service API. Redis is optional: without
// it there is no lookup cache and no Idempotency-Key support.
type OrdersHandler struct {
	Service *orders.Service
	Redis   *redis.Client
	Breaker *breaker.Breaker
	// RetryAfter is advertised on degraded responses.
	RetryAfter time.Duration
	Log        *slog.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/debug/breaker", h.breakerState)
}

func (h *OrdersHandler) logger() *slog.Logger {
	if h.Log == nil {
		return slog.Default()
	}
	return h.Log
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid json")
		return
	}
	if req.ProductID <= 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "productId is required")
		return
	}

	ctx := r.Context()
	idemKey := ""
	if k := r.Header.Get(headerIdempotencyKey); k != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemOrderPlace, k)
		done, err := h.claim(ctx, w, r, idemKey)
		if err != nil {
			h.logger().Warn("idempotency lookup failed", "err", err)
			idemKey = ""
		} else if done {
			return
		}
	}

	o, err := h.Service.PlaceOrder(ctx, req.ProductID, req.Quantity)
	if err != nil || o.Degraded() {
		h.release(idemKey)
	}
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	if o.Degraded() {
		secs := int(math.Ceil(h.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusServiceUnavailable, toOrderResp(o))
		return
	}

	resp := toOrderResp(o)
	if h.Redis != nil {
		if idemKey != "" {
			_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
		}
		if b, err := json.Marshal(resp); err == nil {
			_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrder, o.ID), b, redisx.TTLOrderCache).Err()
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// claim reserves idemKey for this request. It reports done=true when a
// response was already written because the key was seen before.
func (h *OrdersHandler) claim(ctx context.Context, w http.ResponseWriter, r *http.Request, idemKey string) (bool, error) {
	ok, err := h.Redis.SetNX(ctx, idemKey, redisx.IdemPending, redisx.TTLIdemPending).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	prev, err := h.Redis.Get(ctx, idemKey).Result()
	if err != nil {
		return false, err
	}
	if prev == redisx.IdemPending {
		writeError(w, r, http.StatusConflict, "REQUEST_IN_PROGRESS", "a request with this Idempotency-Key is still in progress")
		return true, nil
	}
	o, err := h.Service.GetOrder(ctx, prev)
	if err != nil {
		return false, err
	}
	resp := toOrderResp(o)
	resp.Idempotent = true
	writeJSON(w, http.StatusOK, resp)
	return true, nil
}

func (h *OrdersHandler) release(idemKey string) {
	if idemKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = h.Redis.Del(ctx, idemKey).Err()
}

func (h *OrdersHandler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, orders.ErrInvalidQuantity):
		writeError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
	case errors.Is(err, orders.ErrProductNotFound):
		writeError(w, r, http.StatusNotFound, "PRODUCT_NOT_FOUND", err.Error())
	case errors.Is(err, orders.ErrInsufficientStock):
		writeError(w, r, http.StatusConflict, "INSUFFICIENT_STOCK", err.Error())
	case errors.Is(err, orders.ErrDependencyUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", orders.DegradedReason)
	case errors.Is(err, stock.ErrRejected):
		writeError(w, r, http.StatusUnprocessableEntity, "REJECTED", err.Error())
	case errors.Is(err, orders.ErrOrderNotFound):
		writeError(w, r, http.StatusNotFound, "ORDER_NOT_FOUND", err.Error())
	default:
		h.logger().Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx := r.Context()

	key := fmt.Sprintf(redisx.KeyOrder, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Bytes(); err == nil && len(s) > 0 {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Service.GetOrder(ctx, orderID)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	resp := toOrderResp(o)
	if h.Redis != nil {
		if b, err := json.Marshal(resp); err == nil {
			_ = h.Redis.Set(ctx, key, b, redisx.TTLOrderCache).Err()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	all, err := h.Service.ListOrders(r.Context())
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	out := make([]OrderResp, 0, len(all))
	for _, o := range all {
		out = append(out, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) breakerState(w http.ResponseWriter, r *http.Request) {
	if h.Breaker == nil {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no breaker configured")
		return
	}
	writeJSON(w, http.StatusOK, h.Breaker.Snapshot())
}
