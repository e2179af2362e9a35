// Package server exposes panel sessions to the presentation layer over WebSocket.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/trulight/internal/api"
	"github.com/dokzlo13/trulight/internal/eventbus"
	"github.com/dokzlo13/trulight/internal/layout"
	"github.com/dokzlo13/trulight/internal/ledger"
	"github.com/dokzlo13/trulight/internal/panel"
)

// Options configures the panel server
type Options struct {
	Addr           string
	WebDir         string   // Static presentation files; empty disables
	AllowedOrigins []string // Empty = any origin

	// Controller API address resolution. Without APIURL the device is
	// expected on PublicHost, or on the listen host when that is not a
	// wildcard. The request's Host header is never used.
	APIURL     string
	APIScheme  string
	APIPort    int
	PublicHost string
	HTTPClient *http.Client

	ThrottleWindow time.Duration
	RequestTimeout time.Duration
	CompactWidth   int

	Bus         *eventbus.Bus
	Ledger      *ledger.Ledger // Optional
	LedgerLimit int
}

// Server manages WebSocket panel sessions
type Server struct {
	opts       Options
	apiBaseURL string
	bus        *eventbus.Bus
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu       sync.RWMutex
	sessions map[string]*session
}

// New creates a server and subscribes it to session events on the bus
func New(opts Options) *Server {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.LedgerLimit <= 0 {
		opts.LedgerLimit = 100
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.New()
	}

	pageHost := opts.PublicHost
	if pageHost == "" {
		pageHost = listenHost(opts.Addr)
	}

	s := &Server{
		opts:       opts,
		apiBaseURL: api.ResolveBaseURL(opts.APIURL, pageHost, opts.APIScheme, opts.APIPort),
		bus:        opts.Bus,
		sessions:   make(map[string]*session),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	if len(opts.AllowedOrigins) == 0 {
		log.Warn().Msg("WebSocket origin check is disabled")
	}

	// Late events for closed sessions find nothing and are dropped
	s.bus.Subscribe(eventbus.EventTypeState, s.onSessionEvent)
	s.bus.Subscribe(eventbus.EventTypeLayout, s.onSessionEvent)

	return s
}

// APIBaseURL returns the controller API address sessions talk to
func (s *Server) APIBaseURL() string {
	return s.apiBaseURL
}

// listenHost returns the host part of a listen address, or "" for wildcards
func listenHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	switch host {
	case "", "0.0.0.0", "::":
		return ""
	}
	return host
}

// Handler returns the HTTP routes of the panel server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.opts.WebDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.opts.WebDir)))
	}
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/ledger", s.handleLedger)
	return mux
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:    s.opts.Addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", s.opts.Addr).Msg("Starting panel server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Panel server shutdown error")
		}
		s.closeSessions()
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Sessions returns the number of connected sessions
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.opts.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	log.Warn().Str("origin", origin).Msg("WebSocket connection blocked: origin not allowed")
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	sess := s.newSession(conn, r)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	sess.logger.Info().Str("remote", r.RemoteAddr).Msg("Panel session opened")

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		sess.close()
		s.bus.Publish(eventbus.Event{Type: eventbus.EventTypeSessionClosed, Session: sess.id})
		sess.logger.Info().Msg("Panel session closed")
	}()

	sess.push()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
		if err := sess.handle(data); err != nil {
			sess.logger.Warn().Err(err).Msg("Rejected panel message")
			sess.sendError(err.Error())
		}
	}
}

func (s *Server) newSession(conn *websocket.Conn, r *http.Request) *session {
	id := uuid.NewString()
	logger := log.With().Str("session", id).Logger()

	client := api.NewClientWithHTTP(s.apiBaseURL, s.opts.HTTPClient)

	var recorder panel.Recorder
	if s.opts.Ledger != nil {
		recorder = s.opts.Ledger.Recorder(id)
	}

	ctrl := panel.New(client, panel.Options{
		ThrottleWindow: s.opts.ThrottleWindow,
		RequestTimeout: s.opts.RequestTimeout,
		Recorder:       recorder,
		Logger:         &logger,
		OnChange: func(ch panel.Change) {
			s.bus.Publish(eventbus.Event{
				Type:    eventbus.EventTypeState,
				Session: id,
				Data: map[string]any{
					"fields":   uint8(ch.Fields),
					"version":  ch.Snapshot.Version,
					"snapshot": ch.Snapshot,
				},
			})
		},
	})

	width, height := initialViewport(r, s.opts.CompactWidth)
	observer := layout.NewObserver(s.opts.CompactWidth, width, height)

	sess := &session{
		id:     id,
		conn:   conn,
		ctrl:   ctrl,
		layout: observer,
		logger: logger,
	}
	sess.stopListener = observer.Listen(func(compact bool) {
		s.bus.Publish(eventbus.Event{
			Type:    eventbus.EventTypeLayout,
			Session: id,
			Data:    map[string]any{"compact": compact},
		})
	})

	logger.Debug().Str("api", s.apiBaseURL).Int("width", width).Bool("compact", observer.Compact()).Msg("Panel session configured")
	return sess
}

// initialViewport reads the startup viewport from the query string.
// Without it the session starts in the wide layout.
func initialViewport(r *http.Request, threshold int) (int, int) {
	if threshold <= 0 {
		threshold = layout.DefaultCompactWidth
	}
	q := r.URL.Query()
	width, err := strconv.Atoi(q.Get("width"))
	if err != nil {
		width = threshold + 1
	}
	height, _ := strconv.Atoi(q.Get("height"))
	return width, height
}

func (s *Server) onSessionEvent(e eventbus.Event) {
	s.mu.RLock()
	sess, ok := s.sessions[e.Session]
	s.mu.RUnlock()
	if !ok {
		return
	}
	sess.push()
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ledger == nil {
		http.Error(w, "ledger disabled", http.StatusNotFound)
		return
	}

	limit := s.opts.LedgerLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v < limit {
		limit = v
	}

	var entries []*ledger.Entry
	var err error
	if session := r.URL.Query().Get("session"); session != "" {
		entries, err = s.opts.Ledger.BySession(session, limit)
	} else {
		entries, err = s.opts.Ledger.Recent(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read dispatch ledger")
		http.Error(w, "failed to read ledger", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	// Closing the connection ends each read loop, which removes the session
	for _, sess := range sessions {
		sess.conn.Close()
	}
}
