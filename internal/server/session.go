package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dokzlo13/trulight/internal/command"
	"github.com/dokzlo13/trulight/internal/layout"
	"github.com/dokzlo13/trulight/internal/panel"
)

const writeTimeout = 10 * time.Second

// session binds one WebSocket connection to its own controller and layout observer
type session struct {
	id     string
	conn   *websocket.Conn
	ctrl   *panel.Controller
	layout *layout.Observer
	logger zerolog.Logger

	writeMu      sync.Mutex
	written      bool
	lastVersion  uint64
	lastCompact  bool
	stopListener func()
}

// push writes the current view. Each write re-reads state under the write
// lock, so an older view can never overwrite a newer one.
func (s *session) push() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := s.ctrl.Snapshot()
	compact := s.layout.Compact()
	if s.written && snap.Version == s.lastVersion && compact == s.lastCompact {
		return
	}

	if err := s.writeLocked(OutMessage{Type: MsgState, Payload: newView(s.id, snap, compact)}); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to push state")
		return
	}
	s.written = true
	s.lastVersion = snap.Version
	s.lastCompact = compact
}

func (s *session) sendError(text string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writeLocked(OutMessage{Type: MsgError, Payload: map[string]string{"error": text}}); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to send error")
	}
}

func (s *session) writeLocked(msg OutMessage) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

// handle dispatches one inbound message to the controller
func (s *session) handle(data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	switch msg.Type {
	case MsgColor:
		var c command.Color
		if err := json.Unmarshal(msg.Payload, &c); err != nil {
			return fmt.Errorf("invalid color: %w", err)
		}
		if !c.Valid() {
			return fmt.Errorf("color out of range: %+v", c)
		}
		s.ctrl.ColorDrag(c)

	case MsgHealth:
		s.ctrl.HealthCheck()

	case MsgExampleCommand:
		s.ctrl.ExampleCommand()

	case MsgMode:
		var p modePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid mode payload: %w", err)
		}
		mode, err := command.ParseMode(p.Mode)
		if err != nil {
			return err
		}
		s.ctrl.SelectMode(mode)

	case MsgReset:
		s.ctrl.Reset()

	case MsgToggleMenu:
		s.ctrl.ToggleMenu()

	case MsgResize:
		var p resizePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("invalid resize payload: %w", err)
		}
		s.layout.Resize(p.Width, p.Height)

	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

// close tears the session down. Requests in flight keep running and their
// results are dropped by the closed controller.
func (s *session) close() {
	if s.stopListener != nil {
		s.stopListener()
	}
	s.layout.Close()
	s.ctrl.Close()
	s.conn.Close()
}
