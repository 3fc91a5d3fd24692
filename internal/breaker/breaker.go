package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

var (
	// ErrOpen is returned without invoking the call while the breaker is open.
	ErrOpen = gobreaker.ErrOpenState
	// ErrTooManyProbes is returned once all half-open probe slots are taken.
	ErrTooManyProbes = gobreaker.ErrTooManyRequests
)

// IsShortCircuit reports whether err was produced by the breaker itself
// rather than by the protected call.
func IsShortCircuit(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrTooManyProbes)
}

type Settings struct {
	Name string
	// Window is the trailing period over which the failure ratio is computed.
	Window time.Duration
	// MinCalls is the number of calls in a window before the ratio is evaluated.
	MinCalls     uint32
	FailureRatio float64
	// Cooldown is how long the breaker stays open before admitting probes.
	Cooldown       time.Duration
	HalfOpenProbes uint32
	// Healthy marks non-nil errors that must not count as failures,
	// e.g. domain rejections from a responsive dependency.
	Healthy func(error) bool
}

// Snapshot counts cover outcomes recorded in the current state within the
// trailing window. ConsecutiveFailures is the current failure streak.
type Snapshot struct {
	Name                string     `json:"name"`
	State               State      `json:"state"`
	Requests            uint32     `json:"requests"`
	Successes           uint32     `json:"successes"`
	Failures            uint32     `json:"failures"`
	ConsecutiveFailures uint32     `json:"consecutiveFailures"`
	OpenedAt            *time.Time `json:"openedAt,omitempty"`
}

type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	window *rollingWindow
	log    *slog.Logger

	healthy func(error) bool

	mu       sync.Mutex
	openedAt time.Time
	// generation is bumped on every state change. Outcomes of calls admitted
	// in an earlier generation are not recorded.
	generation uint64
	streak     uint32
}

func New(s Settings, log *slog.Logger) *Breaker {
	if log == nil {
		log = slog.Default()
	}
	minCalls := s.MinCalls
	if minCalls == 0 {
		minCalls = 1
	}
	probes := s.HalfOpenProbes
	if probes == 0 {
		probes = 1
	}
	span := s.Window
	if span <= 0 {
		span = 10 * time.Second
	}
	b := &Breaker{log: log, window: newRollingWindow(span, time.Now)}
	b.healthy = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled) || (s.Healthy != nil && s.Healthy(err))
	}
	// gobreaker owns the state machine; tripping is decided on the rolling
	// window, so its own interval counters are never cleared.
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: probes,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(gobreaker.Counts) bool {
			calls, failures := b.window.counts()
			if calls < minCalls {
				return false
			}
			return float64(failures)/float64(calls) >= s.FailureRatio
		},
		IsSuccessful:  b.healthy,
		OnStateChange: b.onStateChange,
	})
	return b
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	b.mu.Lock()
	if to == gobreaker.StateOpen {
		b.openedAt = time.Now()
	} else if to == gobreaker.StateClosed {
		b.openedAt = time.Time{}
	}
	b.generation++
	b.streak = 0
	b.window.reset()
	b.mu.Unlock()

	lvl := slog.LevelInfo
	if to == gobreaker.StateOpen {
		lvl = slog.LevelWarn
	}
	b.log.Log(context.Background(), lvl, "circuit state changed",
		"breaker", name, "from", mapState(from), "to", mapState(to))
}

// Execute runs fn through the breaker. While open, fn is not invoked and
// ErrOpen is returned.
func (b *Breaker) Execute(fn func() error) error {
	b.cb.State() // advance an expired open state before capturing the generation
	gen := b.currentGeneration()
	_, err := b.cb.Execute(func() (interface{}, error) {
		err := fn()
		// Recorded before gobreaker evaluates ReadyToTrip for this call.
		b.record(gen, !b.healthy(err))
		return nil, err
	})
	return err
}

func (b *Breaker) currentGeneration() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation
}

func (b *Breaker) record(gen uint64, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.generation {
		return
	}
	b.window.record(failed)
	if failed {
		b.streak++
	} else {
		b.streak = 0
	}
}

func (b *Breaker) Name() string { return b.cb.Name() }

// State also advances an expired open state to half-open.
func (b *Breaker) State() State { return mapState(b.cb.State()) }

func (b *Breaker) Snapshot() Snapshot {
	st := b.cb.State()

	b.mu.Lock()
	calls, failures := b.window.counts()
	s := Snapshot{
		Name:                b.cb.Name(),
		State:               mapState(st),
		Requests:            calls,
		Successes:           calls - failures,
		Failures:            failures,
		ConsecutiveFailures: b.streak,
	}
	if !b.openedAt.IsZero() {
		t := b.openedAt
		s.OpenedAt = &t
	}
	b.mu.Unlock()
	return s
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
