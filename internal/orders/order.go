package orders

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	// StatusFailed only appears on degraded responses; it is never stored.
	StatusFailed Status = "FAILED"
)

const DegradedReason = "Product service unavailable. Please try again later."

type Order struct {
	ID          string
	ProductID   int64
	Quantity    int
	TotalAmount decimal.Decimal
	Status      Status
	Reason      string
	CreatedAt   time.Time
}

// Degraded reports whether o is a placeholder returned while the stock
// ledger is short-circuited. Degraded orders have no ID and were not stored.
func (o Order) Degraded() bool { return o.Status == StatusFailed }

var (
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrProductNotFound       = errors.New("product not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrDependencyUnavailable = errors.New("stock ledger unavailable")
	ErrOrderNotFound         = errors.New("order not found")
)
