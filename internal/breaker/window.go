package breaker

import (
	"sync"
	"time"
)

const windowBuckets = 10

type bucket struct {
	start    int64
	calls    uint32
	failures uint32
}

// rollingWindow counts outcomes over the trailing span in fixed buckets.
type rollingWindow struct {
	mu      sync.Mutex
	width   int64
	buckets [windowBuckets]bucket
	now     func() time.Time
}

func newRollingWindow(span time.Duration, now func() time.Time) *rollingWindow {
	width := int64(span) / windowBuckets
	if width <= 0 {
		width = 1
	}
	return &rollingWindow{width: width, now: now}
}

func (w *rollingWindow) record(failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	slot := w.now().UnixNano() / w.width
	b := &w.buckets[slot%windowBuckets]
	if b.start != slot {
		*b = bucket{start: slot}
	}
	b.calls++
	if failed {
		b.failures++
	}
}

func (w *rollingWindow) counts() (calls, failures uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()

	slot := w.now().UnixNano() / w.width
	for _, b := range w.buckets {
		if slot-b.start < windowBuckets {
			calls += b.calls
			failures += b.failures
		}
	}
	return calls, failures
}

func (w *rollingWindow) reset() {
	w.mu.Lock()
	w.buckets = [windowBuckets]bucket{}
	w.mu.Unlock()
}
