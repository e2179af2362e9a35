// Package simulator serves a stand-in for the light controller API, so the
// panel can be run and tested without hardware.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/trulight/internal/command"
)

// request is the body accepted by /color and /command
type request struct {
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

// Device is a simulated light strip. It accepts the same envelopes as the
// real controller and remembers the last color and mode.
type Device struct {
	mu    sync.Mutex
	color command.Color
	mode  command.Mode
	count int
}

// NewDevice creates a simulated device that is white and without a mode
func NewDevice() *Device {
	return &Device{color: command.White}
}

// State returns the current simulated color and mode
func (d *Device) State() (command.Color, command.Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.color, d.mode
}

// Requests returns the number of accepted color and command requests
func (d *Device) Requests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Handler returns the HTTP routes of the simulated API
func (d *Device) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("GET /test", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"test": "ok"})
	})
	mux.HandleFunc("POST /color", d.handleColor)
	mux.HandleFunc("POST /command", d.handleCommand)
	return mux
}

func (d *Device) handleColor(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}

	color, err := colorFromPayload(req.Payload)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}

	d.mu.Lock()
	d.color = color
	d.count++
	d.mu.Unlock()

	log.Debug().Int("r", color.R).Int("g", color.G).Int("b", color.B).Msg("Simulated LED color")

	writeJSON(w, http.StatusOK, map[string]any{
		"simulated": true,
		"r":         color.R,
		"g":         color.G,
		"b":         color.B,
	})
}

func (d *Device) handleCommand(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}

	if req.Action == command.ActionSetMode {
		raw, _ := req.Payload["mode"].(string)
		mode, err := command.ParseMode(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": err.Error()})
			return
		}
		d.mu.Lock()
		d.mode = mode
		d.count++
		d.mu.Unlock()

		log.Debug().Str("mode", string(mode)).Msg("Simulated mode change")
	} else {
		d.mu.Lock()
		d.count++
		d.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": req.Action, "payload": req.Payload})
}

func decode(r *http.Request) (*request, error) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid body: %w", err)
	}
	if req.Action == "" {
		return nil, fmt.Errorf("missing action")
	}
	return &req, nil
}

func colorFromPayload(p map[string]any) (command.Color, error) {
	var c command.Color
	for _, ch := range []struct {
		key string
		dst *int
	}{{"r", &c.R}, {"g", &c.G}, {"b", &c.B}} {
		v, ok := p[ch.key].(float64)
		if !ok {
			return c, fmt.Errorf("missing channel %q", ch.key)
		}
		*ch.dst = int(v)
	}
	return c, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Server runs a simulated device over HTTP
type Server struct {
	addr       string
	device     *Device
	httpServer *http.Server
}

// NewServer creates a simulator server for addr
func NewServer(addr string, device *Device) *Server {
	return &Server{addr: addr, device: device}
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.device.Handler(),
	}

	log.Info().Str("addr", s.addr).Msg("Starting device simulator")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Device simulator shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
