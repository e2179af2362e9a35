package server

import (
	"encoding/json"

	"github.com/dokzlo13/trulight/internal/command"
	"github.com/dokzlo13/trulight/internal/panel"
)

// Inbound message types sent by the presentation layer
const (
	MsgColor          = "color"
	MsgHealth         = "health"
	MsgExampleCommand = "example_command"
	MsgMode           = "mode"
	MsgReset          = "reset"
	MsgToggleMenu     = "toggle_menu"
	MsgResize         = "resize"
)

// Outbound message types
const (
	MsgState = "state"
	MsgError = "error"
)

// Message is an inbound intent from a WebSocket client
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutMessage is sent to WebSocket clients
type OutMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type modePayload struct {
	Mode string `json:"mode"`
}

type resizePayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// View is everything the presentation layer needs to render a session
type View struct {
	panel.Snapshot
	Session string         `json:"session"`
	Hex     string         `json:"hex"`
	RGB     string         `json:"rgb"`
	Compact bool           `json:"compact"`
	Modes   []command.Mode `json:"modes"`
}

func newView(session string, snap panel.Snapshot, compact bool) View {
	return View{
		Snapshot: snap,
		Session:  session,
		Hex:      snap.Color.Hex(),
		RGB:      snap.Color.String(),
		Compact:  compact,
		Modes:    command.Modes(),
	}
}
