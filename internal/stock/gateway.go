package stock

import (
	"context"

	"github.com/ariefcatur/go-resilient-orders/internal/breaker"
	"github.com/ariefcatur/go-resilient-orders/internal/gate"
)

// Gateway applies the gate to every ledger operation. Callers never see
// transport errors, only gate results.
type Gateway struct {
	gate   *gate.Gate
	ledger Ledger
}

func NewGateway(g *gate.Gate, l Ledger) *Gateway {
	return &Gateway{gate: g, ledger: l}
}

func (gw *Gateway) GetProduct(ctx context.Context, id int64) gate.Result[Product] {
	return gate.Do(ctx, gw.gate, "getProduct", func(ctx context.Context) (Product, error) {
		return gw.ledger.GetProduct(ctx, id)
	})
}

func (gw *Gateway) ReduceQuantity(ctx context.Context, id int64, amount int, reservationKey string) gate.Result[Product] {
	return gate.Do(ctx, gw.gate, "reduceQuantity", func(ctx context.Context) (Product, error) {
		return gw.ledger.ReduceQuantity(ctx, id, amount, reservationKey)
	})
}

func (gw *Gateway) Breaker() *breaker.Breaker { return gw.gate.Breaker() }
