package inventory

import (
	"context"
	"fmt"
	"log/slog"

	kafkax "github.com/ariefcatur/go-resilient-orders/internal/kafka"
	"github.com/ariefcatur/go-resilient-orders/internal/stock"
)

const (
	TopicStockReduced = "inventory.stock.reduced"
	EventStockReduced = "StockReduced"
)

type StockReducedPayload struct {
	ProductID      int64  `json:"product_id"`
	Quantity       int    `json:"quantity"`
	Remaining      int    `json:"remaining"`
	ReservationKey string `json:"reservation_key,omitempty"`
}

// Service is the stock ledger. It satisfies stock.Ledger so the order
// service can also run against it in-process.
type Service struct {
	Store       Store
	Publisher   kafkax.Publisher
	ServiceName string
	Log         *slog.Logger
}

var _ stock.Ledger = (*Service)(nil)

func NewService(store Store, pub kafkax.Publisher, name string, log *slog.Logger) *Service {
	if pub == nil {
		pub = kafkax.Discard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{Store: store, Publisher: pub, ServiceName: name, Log: log}
}

func (s *Service) ListProducts(ctx context.Context) ([]stock.Product, error) {
	return s.Store.List(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (stock.Product, error) {
	return s.Store.Get(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (stock.Product, error) {
	if err := in.Validate(); err != nil {
		return stock.Product{}, err
	}
	p, err := s.Store.Create(ctx, in)
	if err != nil {
		return stock.Product{}, fmt.Errorf("create product: %w", err)
	}
	s.Log.Info("product created", "product_id", p.ID, "quantity", p.Quantity)
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (stock.Product, error) {
	if err := in.Validate(); err != nil {
		return stock.Product{}, err
	}
	return s.Store.Update(ctx, id, in)
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.Store.Delete(ctx, id)
}

// ReduceQuantity takes amount units out of stock. A replayed reservation
// key returns the current snapshot and publishes nothing.
func (s *Service) ReduceQuantity(ctx context.Context, id int64, amount int, reservationKey string) (stock.Product, error) {
	if amount <= 0 {
		return stock.Product{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
	}
	p, applied, err := s.Store.Reduce(ctx, id, amount, reservationKey)
	if err != nil {
		return stock.Product{}, err
	}
	if !applied {
		s.Log.Info("reservation replayed", "product_id", id, "reservation_key", reservationKey)
		return p, nil
	}

	env := kafkax.NewEnvelope(ctx, EventStockReduced, s.ServiceName, reservationKey, StockReducedPayload{
		ProductID:      id,
		Quantity:       amount,
		Remaining:      p.Quantity,
		ReservationKey: reservationKey,
	})
	if err := s.Publisher.PublishEvent(ctx, fmt.Sprint(id), env); err != nil {
		s.Log.Warn("publish stock reduced", "product_id", id, "err", err)
	}
	return p, nil
}
