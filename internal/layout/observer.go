// Package layout derives the compact-layout flag from viewport size changes.
package layout

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultCompactWidth is the widest viewport that still uses the compact layout
const DefaultCompactWidth = 900

// Listener is notified with the new flag whenever it changes
type Listener func(compact bool)

// Observer tracks viewport size and exposes whether the compact layout applies.
type Observer struct {
	mu        sync.Mutex
	threshold int
	width     int
	height    int
	compact   bool
	listeners map[uint64]Listener
	nextID    uint64
}

// NewObserver computes the initial flag from the startup viewport size
func NewObserver(threshold, width, height int) *Observer {
	if threshold <= 0 {
		threshold = DefaultCompactWidth
	}
	return &Observer{
		threshold: threshold,
		width:     width,
		height:    height,
		compact:   width <= threshold,
		listeners: make(map[uint64]Listener),
	}
}

// Compact reports whether the viewport is at or below the threshold
func (o *Observer) Compact() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.compact
}

// Size returns the last reported viewport size
func (o *Observer) Size() (width, height int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.width, o.height
}

// Resize records a new viewport size. Listeners run only when the
// threshold is crossed.
func (o *Observer) Resize(width, height int) {
	o.mu.Lock()
	o.width = width
	o.height = height
	compact := width <= o.threshold
	if compact == o.compact {
		o.mu.Unlock()
		return
	}
	o.compact = compact
	listeners := make([]Listener, 0, len(o.listeners))
	for _, l := range o.listeners {
		listeners = append(listeners, l)
	}
	o.mu.Unlock()

	log.Debug().Int("width", width).Bool("compact", compact).Msg("Layout changed")

	for _, l := range listeners {
		l(compact)
	}
}

// Listen registers a listener and returns its deregistration func
func (o *Observer) Listen(l Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
		})
	}
}

// Close removes every listener
func (o *Observer) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = make(map[uint64]Listener)
}
