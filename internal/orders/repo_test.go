package orders

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-resilient-orders/internal/postgres"
	"github.com/ariefcatur/go-resilient-orders/internal/postgres/pgtest"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoRoundTrip(t *testing.T) {
	db := pgtest.Start(t, postgres.OrdersSchema...)
	repo := &Repo{DB: db}
	ctx := context.Background()

	o := Order{ProductID: 1, Quantity: 2, TotalAmount: decimal.RequireFromString("100000.00"), Status: StatusSuccess}
	require.NoError(t, repo.Save(ctx, &o))
	require.NotEmpty(t, o.ID)
	require.False(t, o.CreatedAt.IsZero())

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ProductID)
	assert.Equal(t, 2, got.Quantity)
	assert.True(t, o.TotalAmount.Equal(got.TotalAmount))
	assert.Equal(t, StatusSuccess, got.Status)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = repo.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryRepo(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	o := Order{ProductID: 1, Quantity: 1, TotalAmount: decimal.NewFromInt(5), Status: StatusSuccess}
	require.NoError(t, repo.Save(ctx, &o))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o, got)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
