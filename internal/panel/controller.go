// Package panel owns the live-control state of a panel session and turns
// user intents into requests against the controller API.
package panel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/trulight/internal/api"
	"github.com/dokzlo13/trulight/internal/command"
	"github.com/dokzlo13/trulight/internal/throttle"
)

// Demo command sent by ExampleCommand
const (
	ExampleAction         = "example_action"
	exampleCommandFailure = " command failed"
)

// ExamplePayload returns the fixed payload of the demo command
func ExamplePayload() map[string]any {
	return map[string]any{"foo": "bar"}
}

// Client is the part of the API client used by the controller
type Client interface {
	Get(ctx context.Context, endpoint api.Endpoint) (any, error)
	Send(ctx context.Context, endpoint api.Endpoint, body any) (any, error)
}

// Dispatch describes one settled request
type Dispatch struct {
	Endpoint api.Endpoint
	Envelope *command.Envelope // nil for health checks
	Body     any
	Err      error
	Elapsed  time.Duration
}

// Recorder receives every settled request
type Recorder interface {
	RecordDispatch(d Dispatch)
}

// Options configures a Controller
type Options struct {
	// ThrottleWindow bounds how often color updates are sent
	ThrottleWindow time.Duration
	// RequestTimeout bounds each request; zero leaves it to the client
	RequestTimeout time.Duration
	// OnChange is called after every state change, outside the state lock
	OnChange func(Change)
	Recorder Recorder
	Logger   *zerolog.Logger
}

// Controller is the only writer of the panel state. Every intent handler
// returns immediately; requests settle on their own goroutines and the last
// one to settle owns the Result (or Status) slot.
type Controller struct {
	client   Client
	throttle *throttle.Throttler[command.Color]
	onChange func(Change)
	recorder Recorder
	timeout  time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	version  uint64
	color    command.Color
	mode     command.Mode
	menuOpen bool
	result   *Result
	status   string
	inflight int
	closed   bool
}

// New creates a Controller with the initial white color and a closed menu
func New(client Client, opts Options) *Controller {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	c := &Controller{
		client:   client,
		onChange: opts.OnChange,
		recorder: opts.Recorder,
		timeout:  opts.RequestTimeout,
		logger:   logger,
		color:    command.White,
	}
	c.cond = sync.NewCond(&c.mu)
	c.throttle = throttle.New(opts.ThrottleWindow, c.dispatchColor)
	return c
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:  c.version,
		Color:    c.color,
		Mode:     c.mode,
		MenuOpen: c.menuOpen,
		Status:   c.status,
	}
	if c.result != nil {
		r := *c.result
		s.Result = &r
	}
	return s
}

// mutate applies fn under the lock and notifies observers.
// Returns false once the controller is closed.
func (c *Controller) mutate(fields Field, fn func()) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	fn()
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(Change{Fields: fields, Snapshot: snap})
	}
	return true
}

// ColorDrag sets the color immediately and sends it through the throttle
func (c *Controller) ColorDrag(color command.Color) {
	if !c.mutate(FieldColor, func() { c.color = color }) {
		return
	}
	c.throttle.Admit(color)
}

// dispatchColor runs under the throttle lock and only starts the request
func (c *Controller) dispatchColor(color command.Color) {
	env := command.EncodeColorUpdate(color)
	c.goRequest(func(ctx context.Context) {
		body, err := c.send(ctx, api.EndpointColor, env)
		if err != nil {
			c.setResult(Result{Err: err.Error()})
			return
		}
		c.setResult(Result{Body: body})
	})
}

// HealthCheck queries /health and stores the outcome as Status
func (c *Controller) HealthCheck() {
	c.goRequest(func(ctx context.Context) {
		start := time.Now()
		body, err := c.client.Get(ctx, api.EndpointHealth)
		c.record(Dispatch{Endpoint: api.EndpointHealth, Body: body, Err: err, Elapsed: time.Since(start)})
		if err != nil {
			c.logger.Warn().Err(err).Msg("Health check failed")
			c.setStatus(StatusError)
			return
		}
		data, err := json.Marshal(body)
		if err != nil {
			c.setStatus(StatusError)
			return
		}
		c.setStatus(string(data))
	})
}

// ExampleCommand sends the demo named command
func (c *Controller) ExampleCommand() {
	env := command.EncodeNamedCommand(ExampleAction, ExamplePayload())
	c.goRequest(func(ctx context.Context) {
		body, err := c.send(ctx, api.EndpointCommand, env)
		if err != nil {
			c.setResult(Result{Err: err.Error() + exampleCommandFailure})
			return
		}
		c.setResult(Result{Body: body})
	})
}

// SelectMode closes the menu and sends the mode change without throttling.
// Unknown modes are ignored.
func (c *Controller) SelectMode(mode command.Mode) {
	if !mode.Valid() {
		// The menu still closes; only the mode change is refused
		c.mutate(FieldMenu, func() { c.menuOpen = false })
		c.logger.Warn().Str("mode", string(mode)).Msg("Ignoring unknown mode")
		return
	}
	if !c.mutate(FieldMode|FieldMenu, func() {
		c.menuOpen = false
		c.mode = mode
	}) {
		return
	}

	env := command.EncodeModeChange(mode)
	c.goRequest(func(ctx context.Context) {
		body, err := c.send(ctx, api.EndpointCommand, env)
		if err != nil {
			c.setResult(Result{Err: err.Error()})
			return
		}
		c.setResult(Result{Body: body})
	})
}

// Reset switches the controller to the off mode
func (c *Controller) Reset() {
	c.SelectMode(command.ModeOff)
}

// ToggleMenu flips the mode menu
func (c *Controller) ToggleMenu() {
	c.mutate(FieldMenu, func() { c.menuOpen = !c.menuOpen })
}

func (c *Controller) send(ctx context.Context, endpoint api.Endpoint, env command.Envelope) (any, error) {
	start := time.Now()
	body, err := c.client.Send(ctx, endpoint, env)
	c.record(Dispatch{Endpoint: endpoint, Envelope: &env, Body: body, Err: err, Elapsed: time.Since(start)})
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", string(endpoint)).Str("action", env.Action).Msg("Request failed")
	}
	return body, err
}

func (c *Controller) record(d Dispatch) {
	if c.recorder != nil {
		c.recorder.RecordDispatch(d)
	}
}

// goRequest starts fn on its own goroutine. Requests are never cancelled,
// not even by Close.
func (c *Controller) goRequest(fn func(ctx context.Context)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inflight++
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.inflight--
			c.cond.Broadcast()
			c.mu.Unlock()
		}()

		ctx := context.Background()
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		fn(ctx)
	}()
}

func (c *Controller) setResult(r Result) {
	c.mutate(FieldResult, func() { c.result = &r })
}

func (c *Controller) setStatus(s string) {
	c.mutate(FieldStatus, func() { c.status = s })
}

// Wait blocks until no color update is pending and every started request
// has settled.
func (c *Controller) Wait() {
	for c.throttle.Pending() {
		time.Sleep(c.throttle.Window() / 4)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inflight > 0 {
		c.cond.Wait()
	}
}

// Close detaches the state sink. Requests already in flight keep running
// but their results are discarded; a pending color update is dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()

	c.throttle.Close()
}
