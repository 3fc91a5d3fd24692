package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-resilient-orders/internal/breaker"
	"github.com/ariefcatur/go-resilient-orders/internal/tracing"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Outcome string

const (
	Succeeded      Outcome = "SUCCEEDED"
	Rejected       Outcome = "REJECTED"
	Unavailable    Outcome = "UNAVAILABLE"
	ShortCircuited Outcome = "SHORT_CIRCUITED"
)

// ErrUnavailable wraps the last cause of a call that fell back.
var ErrUnavailable = errors.New("dependency unavailable")

type Policy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// IsRejection marks terminal answers from the dependency. They are
	// returned as-is and never retried.
	IsRejection func(error) bool
}

// Result is the typed outcome of a gated call. Value is only meaningful
// when Outcome is Succeeded.
type Result[T any] struct {
	Value    T
	Outcome  Outcome
	Err      error
	Attempts int
}

func (r Result[T]) OK() bool { return r.Outcome == Succeeded }

// Fallback reports whether the result came from the fallback path.
func (r Result[T]) Fallback() bool {
	return r.Outcome == Unavailable || r.Outcome == ShortCircuited
}

type Gate struct {
	breaker *breaker.Breaker
	policy  Policy
	log     *slog.Logger
}

func New(b *breaker.Breaker, p Policy, log *slog.Logger) *Gate {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = 2 * time.Second
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gate{breaker: b, policy: p, log: log}
}

func (g *Gate) Breaker() *breaker.Breaker { return g.breaker }

func (g *Gate) isRejection(err error) bool {
	return g.policy.IsRejection != nil && g.policy.IsRejection(err)
}

func (g *Gate) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.policy.InitialBackoff
	eb.MaxInterval = g.policy.MaxBackoff
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.policy.MaxAttempts-1)), ctx)
}

// Do runs fn under the gate. Every attempt passes through the breaker and
// gets its own timeout. Transport failures never escape: the result is
// always one of the four outcomes.
func Do[T any](ctx context.Context, g *Gate, op string, fn func(context.Context) (T, error)) Result[T] {
	ctx, span := tracing.Tracer().Start(ctx, "gate."+op)
	defer span.End()

	res := do(ctx, g, op, fn)

	span.SetAttributes(
		attribute.String("gate.outcome", string(res.Outcome)),
		attribute.Int("gate.attempts", res.Attempts),
		attribute.String("gate.breaker", g.breaker.Name()),
	)
	if res.Fallback() {
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func do[T any](ctx context.Context, g *Gate, op string, fn func(context.Context) (T, error)) Result[T] {
	if g.breaker.State() == breaker.StateOpen {
		return fallback[T](g, op, ShortCircuited, breaker.ErrOpen, 0)
	}

	var (
		value    T
		attempts int
	)
	operation := func() error {
		invoked := false
		err := g.breaker.Execute(func() error {
			invoked = true
			actx, cancel := context.WithTimeout(ctx, g.policy.AttemptTimeout)
			defer cancel()
			v, err := fn(actx)
			if err == nil {
				value = v
			}
			return err
		})
		if invoked {
			attempts++
		}
		switch {
		case err == nil:
			return nil
		case g.isRejection(err), breaker.IsShortCircuit(err), ctx.Err() != nil:
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		g.log.Debug("retrying remote call", "op", op, "attempt", attempts, "wait", wait, "err", err)
	}

	err := backoff.RetryNotify(operation, g.newBackOff(ctx), notify)
	switch {
	case err == nil:
		return Result[T]{Value: value, Outcome: Succeeded, Attempts: attempts}
	case g.isRejection(err):
		return Result[T]{Outcome: Rejected, Err: err, Attempts: attempts}
	case attempts == 0 && breaker.IsShortCircuit(err):
		return fallback[T](g, op, ShortCircuited, err, 0)
	}
	return fallback[T](g, op, Unavailable, err, attempts)
}

func fallback[T any](g *Gate, op string, outcome Outcome, cause error, attempts int) Result[T] {
	g.log.Warn("fallback engaged", "op", op, "outcome", outcome, "attempts", attempts, "err", cause)
	return Result[T]{
		Outcome:  outcome,
		Err:      fmt.Errorf("%w: %s: %w", ErrUnavailable, op, cause),
		Attempts: attempts,
	}
}
