package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-resilient-orders/internal/stock"
	"github.com/shopspring/decimal"
)

var ErrInvalidArgument = errors.New("invalid argument")

type ProductInput struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

func (in ProductInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: product name is required", ErrInvalidArgument)
	case in.Price.IsNegative():
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidArgument)
	case in.Quantity < 0:
		return fmt.Errorf("%w: quantity must be non-negative", ErrInvalidArgument)
	}
	return nil
}

// Store persists products. Reduce must check and decrement atomically and
// report applied=false when the reservation key was already used. A key
// replayed against a different product is rejected with ErrInvalidArgument.
type Store interface {
	List(ctx context.Context) ([]stock.Product, error)
	Get(ctx context.Context, id int64) (stock.Product, error)
	Create(ctx context.Context, in ProductInput) (stock.Product, error)
	Update(ctx context.Context, id int64, in ProductInput) (stock.Product, error)
	Delete(ctx context.Context, id int64) error
	Reduce(ctx context.Context, id int64, qty int, key string) (p stock.Product, applied bool, err error)
}

func notFound(id int64) error {
	return fmt.Errorf("%w with id: %d", stock.ErrNotFound, id)
}

func reservationMismatch(key string, owner, id int64) error {
	return fmt.Errorf("%w: reservation key %q was used for product %d, not %d",
		ErrInvalidArgument, key, owner, id)
}

func insufficient(id int64, available, requested int) error {
	return fmt.Errorf("%w for product id: %d. Available: %d, Requested: %d",
		stock.ErrInsufficientStock, id, available, requested)
}
