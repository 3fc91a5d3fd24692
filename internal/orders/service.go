package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-resilient-orders/internal/gate"
	kafkax "github.com/ariefcatur/go-resilient-orders/internal/kafka"
	"github.com/ariefcatur/go-resilient-orders/internal/stock"
	"github.com/ariefcatur/go-resilient-orders/internal/tracing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	TopicOrderPlaced = "order.placed"
	EventOrderPlaced = "OrderPlaced"
)

type OrderPlacedPayload struct {
	OrderID     string          `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// StockGateway is the gated view of the stock ledger.
type StockGateway interface {
	GetProduct(ctx context.Context, id int64) gate.Result[stock.Product]
	ReduceQuantity(ctx context.Context, id int64, amount int, reservationKey string) gate.Result[stock.Product]
}

type Service struct {
	Stock       StockGateway
	Repo        Repository
	Publisher   kafkax.Publisher
	ServiceName string
	Log         *slog.Logger
	// NewReservationKey is overridable in tests.
	NewReservationKey func() string
}

func NewService(gw StockGateway, repo Repository, pub kafkax.Publisher, name string, log *slog.Logger) *Service {
	if pub == nil {
		pub = kafkax.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		Stock:             gw,
		Repo:              repo,
		Publisher:         pub,
		ServiceName:       name,
		Log:               log,
		NewReservationKey: uuid.NewString,
	}
}

// PlaceOrder verifies the product, reserves stock and records the order.
//
// A nil error with a FAILED order means the ledger was short-circuited
// before anything was attempted; nothing was changed anywhere. Every other
// failure is returned as an error and leaves no order row. Stock may still
// have been reduced when ErrDependencyUnavailable comes back from the
// reservation step.
func (s *Service) PlaceOrder(ctx context.Context, productID int64, quantity int) (Order, error) {
	ctx, span := tracing.Tracer().Start(ctx, "orders.PlaceOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", productID), attribute.Int("order.quantity", quantity))

	if quantity <= 0 {
		return Order{}, ErrInvalidQuantity
	}

	pr := s.Stock.GetProduct(ctx, productID)
	switch pr.Outcome {
	case gate.ShortCircuited:
		s.Log.Warn("stock ledger short-circuited, returning degraded order", "product_id", productID)
		return degraded(productID, quantity), nil
	case gate.Unavailable:
		return Order{}, fmt.Errorf("get product %d: %w: %w", productID, ErrDependencyUnavailable, pr.Err)
	case gate.Rejected:
		return Order{}, rejection("get product", productID, pr.Err)
	}
	product := pr.Value

	key := s.NewReservationKey()
	rr := s.Stock.ReduceQuantity(ctx, productID, quantity, key)
	switch {
	case rr.Fallback():
		s.Log.Error("stock reservation outcome unknown", "product_id", productID,
			"quantity", quantity, "reservation_key", key, "err", rr.Err)
		return Order{}, fmt.Errorf("reduce stock for product %d: %w: %w", productID, ErrDependencyUnavailable, rr.Err)
	case rr.Outcome == gate.Rejected:
		return Order{}, rejection("reduce stock", productID, rr.Err)
	}

	o := Order{
		ProductID:   productID,
		Quantity:    quantity,
		TotalAmount: product.Price.Mul(decimal.NewFromInt(int64(quantity))),
		Status:      StatusSuccess,
	}
	if err := s.Repo.Save(ctx, &o); err != nil {
		s.Log.Error("stock reduced but order not stored", "product_id", productID,
			"quantity", quantity, "reservation_key", key, "err", err)
		return Order{}, fmt.Errorf("save order: %w", err)
	}
	span.SetAttributes(attribute.String("order.id", o.ID))

	env := kafkax.NewEnvelope(ctx, EventOrderPlaced, s.ServiceName, o.ID, OrderPlacedPayload{
		OrderID:     o.ID,
		ProductID:   o.ProductID,
		Quantity:    o.Quantity,
		TotalAmount: o.TotalAmount,
	})
	if err := s.Publisher.PublishEvent(ctx, o.ID, env); err != nil {
		s.Log.Warn("publish order placed", "order_id", o.ID, "err", err)
	}

	s.Log.Info("order placed", "order_id", o.ID, "product_id", productID,
		"quantity", quantity, "total", o.TotalAmount.String(), "remaining", rr.Value.Quantity)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	return s.Repo.Get(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context) ([]Order, error) {
	return s.Repo.List(ctx)
}

func rejection(step string, productID int64, err error) error {
	switch {
	case errors.Is(err, stock.ErrNotFound):
		return fmt.Errorf("%s %d: %w", step, productID, ErrProductNotFound)
	case errors.Is(err, stock.ErrInsufficientStock):
		return fmt.Errorf("%s %d: %w: %w", step, productID, ErrInsufficientStock, err)
	}
	return fmt.Errorf("%s %d: %w", step, productID, err)
}

func degraded(productID int64, quantity int) Order {
	return Order{
		ProductID:   productID,
		Quantity:    quantity,
		TotalAmount: decimal.Zero,
		Status:      StatusFailed,
		Reason:      DegradedReason,
		CreatedAt:   time.Now().UTC(),
	}
}
