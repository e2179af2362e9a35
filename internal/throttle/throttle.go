// Package throttle coalesces a fast stream of values into at most one emission per window.
package throttle

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultWindow is the emission interval used when none is configured
const DefaultWindow = 50 * time.Millisecond

// EmitFunc receives admitted values. It is called with the throttler's lock
// held, so it must hand the value off quickly and must not call back into
// the Throttler.
type EmitFunc[T any] func(T)

// Throttler emits on the leading and trailing edge of a fixed window.
// The first value after a quiet period is emitted immediately. Values
// arriving inside the window replace a single pending slot which is
// emitted when the window expires; superseded values are dropped.
type Throttler[T any] struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	window  time.Duration
	emit    EmitFunc[T]

	pending    T
	hasPending bool
	timer      *time.Timer
	closed     bool
	dropped    uint64
}

// New creates a Throttler with the given window
func New[T any](window time.Duration, emit func(T)) *Throttler[T] {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Throttler[T]{
		limiter: rate.NewLimiter(rate.Every(window), 1),
		window:  window,
		emit:    emit,
	}
}

// Admit offers a value. It never blocks on the emission itself.
func (t *Throttler[T]) Admit(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	// Trailing emission already scheduled: keep only the newest value
	if t.hasPending {
		t.pending = v
		t.dropped++
		return
	}

	now := time.Now()
	if t.limiter.AllowN(now, 1) {
		t.emit(v)
		return
	}

	delay := t.limiter.ReserveN(now, 1).DelayFrom(now)
	t.pending = v
	t.hasPending = true
	t.timer = time.AfterFunc(delay, t.flush)
}

// flush emits the pending value at the end of the window
func (t *Throttler[T]) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || !t.hasPending {
		return
	}

	v := t.pending
	var zero T
	t.pending = zero
	t.hasPending = false
	t.timer = nil

	t.emit(v)
}

// Window returns the emission interval
func (t *Throttler[T]) Window() time.Duration {
	return t.window
}

// Pending reports whether a trailing emission is scheduled
func (t *Throttler[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasPending
}

// Close stops the trailing timer and drops any pending value
func (t *Throttler[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.hasPending {
		t.dropped++
	}
	var zero T
	t.pending = zero
	t.hasPending = false

	if t.dropped > 0 {
		log.Debug().Uint64("dropped", t.dropped).Dur("window", t.window).Msg("Throttler closed")
	}
}
