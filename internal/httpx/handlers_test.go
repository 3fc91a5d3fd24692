package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-resilient-orders/internal/breaker"
	"github.com/ariefcatur/go-resilient-orders/internal/config"
	"github.com/ariefcatur/go-resilient-orders/internal/gate"
	"github.com/ariefcatur/go-resilient-orders/internal/inventory"
	"github.com/ariefcatur/go-resilient-orders/internal/orders"
	"github.com/ariefcatur/go-resilient-orders/internal/stock"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	ledgerSrv *httptest.Server
	ledger    *inventory.Service
	orderSrv  *httptest.Server
	breaker   *breaker.Breaker
	productID int64
}

// newStack wires both services over real HTTP. chaosRate makes the ledger
// fail that share of requests.
func newStack(t *testing.T, chaosRate float64, rdb *redis.Client) *stack {
	t.Helper()

	ledger := inventory.NewService(inventory.NewMemoryStore(), nil, "inventory", nil)
	p, err := ledger.CreateProduct(context.Background(), inventory.ProductInput{
		Name: "Laptop", Price: decimal.NewFromInt(50000), Quantity: 10,
	})
	require.NoError(t, err)

	lr := NewRouter()
	lr.Group(func(r chi.Router) {
		r.Use(chaos(config.ChaosConfig{ErrorRate: chaosRate}, func() float64 { return 0.5 }))
		(&ProductsHandler{Service: ledger}).Register(r)
	})
	ledgerSrv := httptest.NewServer(lr)
	t.Cleanup(ledgerSrv.Close)

	b := breaker.New(breaker.Settings{
		Name: "stock-ledger", Window: time.Minute, MinCalls: 3, FailureRatio: 0.5,
		Cooldown: time.Minute, HalfOpenProbes: 1, Healthy: stock.IsRejection,
	}, nil)
	g := gate.New(b, gate.Policy{
		MaxAttempts: 3, AttemptTimeout: time.Second,
		InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond,
		IsRejection: stock.IsRejection,
	}, nil)
	gw := stock.NewGateway(g, stock.NewClient(ledgerSrv.URL, ledgerSrv.Client()))
	svc := orders.NewService(gw, orders.NewMemoryRepo(), nil, "order-api", nil)

	or := NewRouter()
	(&OrdersHandler{Service: svc, Redis: rdb, Breaker: b, RetryAfter: 5 * time.Second}).Register(or)
	orderSrv := httptest.NewServer(or)
	t.Cleanup(orderSrv.Close)

	return &stack{ledgerSrv: ledgerSrv, ledger: ledger, orderSrv: orderSrv, breaker: b, productID: p.ID}
}

func do(t *testing.T, method, url, body string, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func (s *stack) place(t *testing.T, qty int, headers ...string) (*http.Response, map[string]any) {
	body := `{"productId":` + jsonInt(s.productID) + `,"quantity":` + jsonInt(int64(qty)) + `}`
	return do(t, http.MethodPost, s.orderSrv.URL+"/orders", body, headers...)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (s *stack) stockLeft(t *testing.T) int {
	p, err := s.ledger.GetProduct(context.Background(), s.productID)
	require.NoError(t, err)
	return p.Quantity
}

func TestPlaceOrderCreated(t *testing.T) {
	s := newStack(t, 0, nil)

	resp, body := s.place(t, 2)

	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "SUCCESS", body["status"])
	assert.EqualValues(t, 100000, body["totalAmount"])
	assert.NotEmpty(t, body["orderId"])
	assert.Equal(t, 8, s.stockLeft(t))

	resp, got := do(t, http.MethodGet, s.orderSrv.URL+"/orders/"+body["orderId"].(string), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, body["orderId"], got["orderId"])
}

func TestPlaceOrderErrors(t *testing.T) {
	s := newStack(t, 0, nil)

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"insufficient stock", `{"productId":1,"quantity":100}`, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"zero quantity", `{"productId":1,"quantity":0}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"unknown product", `{"productId":999,"quantity":1}`, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
		{"missing product", `{"quantity":1}`, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"bad json", `{`, http.StatusBadRequest, "INVALID_ARGUMENT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, s.orderSrv.URL+"/orders", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, tc.code, body["code"])
			assert.Equal(t, "/orders", body["path"])
		})
	}
	assert.Equal(t, 10, s.stockLeft(t))

	resp, list := do(t, http.MethodGet, s.orderSrv.URL+"/orders/"+"00000000-0000-0000-0000-000000000000", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ORDER_NOT_FOUND", list["code"])
}

func TestPlaceOrderUnavailableThenDegraded(t *testing.T) {
	s := newStack(t, 1, nil)

	resp, body := s.place(t, 2)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["code"])
	require.Equal(t, breaker.StateOpen, s.breaker.State())

	resp, body = s.place(t, 2)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
	assert.Equal(t, "FAILED", body["status"])
	assert.EqualValues(t, 0, body["totalAmount"])
	assert.Equal(t, orders.DegradedReason, body["reason"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Nil(t, body["orderId"])
	assert.Equal(t, 10, s.stockLeft(t))

	_, snap := do(t, http.MethodGet, s.orderSrv.URL+"/debug/breaker", "")
	assert.Equal(t, "OPEN", snap["state"])
	assert.NotEmpty(t, snap["openedAt"])
}

func TestListOrders(t *testing.T) {
	s := newStack(t, 0, nil)
	s.place(t, 1)
	s.place(t, 1)

	resp, err := http.Get(s.orderSrv.URL + "/orders")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list []OrderResp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 2)
}

func TestProductsCRUD(t *testing.T) {
	s := newStack(t, 0, nil)
	base := s.ledgerSrv.URL + "/products"

	resp, created := do(t, http.MethodPost, base, `{"name":"Mouse","price":"150.25","quantity":3}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := jsonInt(int64(created["id"].(float64)))

	resp, _ = do(t, http.MethodPost, base, `{"name":"","price":"1","quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, got := do(t, http.MethodGet, base+"/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "150.25", got["price"])

	resp, got = do(t, http.MethodPut, base+"/"+id, `{"name":"Mouse","price":"99","quantity":7}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 7, got["quantity"])

	resp, _ = do(t, http.MethodDelete, base+"/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, got = do(t, http.MethodGet, base+"/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", got["code"])

	resp, _ = do(t, http.MethodGet, base+"/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReduceEndpoint(t *testing.T) {
	s := newStack(t, 0, nil)
	url := s.ledgerSrv.URL + "/products/reduce/" + jsonInt(s.productID)

	resp, got := do(t, http.MethodPut, url+"?quantity=2", "", stock.HeaderIdempotencyKey, "r-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 8, got["quantity"])

	resp, got = do(t, http.MethodPut, url+"?quantity=2", "", stock.HeaderIdempotencyKey, "r-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 8, got["quantity"])

	resp, got = do(t, http.MethodPut, url+"?quantity=100", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, got["message"], "Available: 8, Requested: 100")

	resp, _ = do(t, http.MethodPut, url+"?quantity=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, url+"?quantity=x", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChaosPassThroughWhenDisabled(t *testing.T) {
	called := false
	h := Chaos(config.ChaosConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
}

func TestChaosInjectsDelayAndFailure(t *testing.T) {
	h := chaos(config.ChaosConfig{DelayMin: 20 * time.Millisecond, ErrorRate: 0.6}, func() float64 { return 0.5 })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { t.Fatal("should not be reached") }))

	rec := httptest.NewRecorder()
	start := time.Now()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/1", nil))

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.EqualValues(t, 503, body["status"])
}
