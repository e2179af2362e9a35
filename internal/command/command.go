// Package command builds the action/payload envelopes sent to the light controller API.
package command

import "fmt"

// Actions understood by the controller API
const (
	ActionSetColor = "set_color"
	ActionSetMode  = "set_mode"
)

// Color is an RGB color with channels in [0, 255]
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// White is the color the panel starts with
var White = Color{R: 255, G: 255, B: 255}

// Valid reports whether every channel is within [0, 255]
func (c Color) Valid() bool {
	return inRange(c.R) && inRange(c.G) && inRange(c.B)
}

// Hex returns the color as #RRGGBB
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", uint8(c.R), uint8(c.G), uint8(c.B))
}

// String returns the CSS rgb() form
func (c Color) String() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

func inRange(v int) bool {
	return v >= 0 && v <= 255
}

// Mode is an animation program of the controller
type Mode string

const (
	ModeOff       Mode = "off"
	ModeFire      Mode = "fire"
	ModeEras      Mode = "eras"
	ModeCinematic Mode = "cinematic"
	ModeWater     Mode = "water"
	ModeAlert     Mode = "alert"
)

var modes = []Mode{ModeOff, ModeFire, ModeEras, ModeCinematic, ModeWater, ModeAlert}

// Modes returns all known modes in menu order
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	for _, known := range modes {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMode converts a string to a known Mode
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// Envelope is a single request body sent to the controller API.
// Payload is encoded as JSON null when nil.
type Envelope struct {
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

// EncodeColorUpdate builds a set_color envelope. Channels are passed through unchanged.
func EncodeColorUpdate(c Color) Envelope {
	return Envelope{Action: ActionSetColor, Payload: c}
}

// EncodeModeChange builds a set_mode envelope
func EncodeModeChange(m Mode) Envelope {
	return Envelope{Action: ActionSetMode, Payload: map[string]any{"mode": string(m)}}
}

// EncodeNamedCommand builds an envelope for an arbitrary action
func EncodeNamedCommand(action string, payload any) Envelope {
	return Envelope{Action: action, Payload: payload}
}
