package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrRejected covers any other client-side refusal from the ledger.
	ErrRejected = errors.New("rejected by stock ledger")
)

// TransientError is a failure that says nothing about the request itself:
// timeouts, refused connections, 5xx answers.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: stock ledger returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsRejection reports whether err is a definitive answer from the ledger
// that retrying cannot change.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrRejected)
}

// Ledger is the authoritative record of product stock.
type Ledger interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	// ReduceQuantity checks and decrements in one step. Replaying the same
	// reservation key returns the current snapshot without decrementing again.
	ReduceQuantity(ctx context.Context, id int64, amount int, reservationKey string) (Product, error)
}
