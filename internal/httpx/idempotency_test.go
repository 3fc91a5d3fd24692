package httpx

import (
	"context"
	"net/http"
	"testing"

	"github.com/ariefcatur/go-resilient-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	addr, err := ctr.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)
	rdb := redisx.New(addr)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestPlaceOrderIdempotencyKey(t *testing.T) {
	rdb := startRedis(t)
	s := newStack(t, 0, rdb)

	resp, first := s.place(t, 2, headerIdempotencyKey, "client-req-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, again := s.place(t, 2, headerIdempotencyKey, "client-req-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, first["orderId"], again["orderId"])
	assert.Equal(t, true, again["idempotent"])
	assert.Equal(t, 8, s.stockLeft(t))

	resp, other := s.place(t, 2, headerIdempotencyKey, "client-req-2")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEqual(t, first["orderId"], other["orderId"])
	assert.Equal(t, 6, s.stockLeft(t))
}

func TestFailedPlacementReleasesKey(t *testing.T) {
	rdb := startRedis(t)
	s := newStack(t, 0, rdb)

	resp, _ := s.place(t, 100, headerIdempotencyKey, "client-req-1")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = s.place(t, 2, headerIdempotencyKey, "client-req-1")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestGetOrderServedFromCache(t *testing.T) {
	rdb := startRedis(t)
	s := newStack(t, 0, rdb)

	_, placed := s.place(t, 1)
	id := placed["orderId"].(string)

	n, err := rdb.Exists(context.Background(), "order:"+id).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	resp, got := do(t, http.MethodGet, s.orderSrv.URL+"/orders/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, got["orderId"])
}
