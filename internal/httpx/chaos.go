package httpx

import (
	"math/rand"
	"net/http"
	"time"

	"github.com/ariefcatur/go-resilient-orders/internal/config"
	"github.com/ariefcatur/go-resilient-orders/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Chaos delays every request by DelayMin plus up to DelayJitter and fails a
// share of them with 503, to drive callers' breakers in demos and tests.
func Chaos(cfg config.ChaosConfig) func(http.Handler) http.Handler {
	return chaos(cfg, rand.Float64)
}

func chaos(cfg config.ChaosConfig, roll func() float64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.DelayMin <= 0 && cfg.DelayJitter <= 0 && cfg.ErrorRate <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, span := tracing.Tracer().Start(r.Context(), "chaos")
			defer span.End()

			delay := cfg.DelayMin
			if cfg.DelayJitter > 0 {
				delay += time.Duration(roll() * float64(cfg.DelayJitter))
			}
			if delay > 0 {
				span.SetAttributes(attribute.Int64("chaos.delay_ms", delay.Milliseconds()))
				t := time.NewTimer(delay)
				select {
				case <-t.C:
				case <-r.Context().Done():
					t.Stop()
					return
				}
			}
			if roll() < cfg.ErrorRate {
				span.SetStatus(codes.Error, "injected failure")
				Unavailable(w, "Stock ledger is temporarily unavailable. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
