package panel

import (
	"encoding/json"

	"github.com/dokzlo13/trulight/internal/command"
)

// StatusError is stored as Status when a health check fails
const StatusError = "error"

// Field identifies which part of the panel state changed
type Field uint8

const (
	FieldColor Field = 1 << iota
	FieldMode
	FieldMenu
	FieldResult
	FieldStatus
)

// Has reports whether f includes other
func (f Field) Has(other Field) bool {
	return f&other != 0
}

// Result is the latest response body, or the error that replaced it
type Result struct {
	Body any
	Err  string
}

// IsError reports whether the result describes a failure
func (r Result) IsError() bool {
	return r.Err != ""
}

// MarshalJSON encodes the body as-is, or {"error": ...} for failures
func (r Result) MarshalJSON() ([]byte, error) {
	if r.IsError() {
		return json.Marshal(map[string]string{"error": r.Err})
	}
	return json.Marshal(r.Body)
}

// Snapshot is a copy of the panel state. Version increases with every change,
// so consumers receiving snapshots out of order can discard stale ones.
type Snapshot struct {
	Version  uint64        `json:"version"`
	Color    command.Color `json:"color"`
	Mode     command.Mode  `json:"mode,omitempty"`
	MenuOpen bool          `json:"menu_open"`
	Result   *Result       `json:"result"`
	Status   string        `json:"status,omitempty"`
}

// Change is passed to the change callback after every state mutation
type Change struct {
	Fields   Field
	Snapshot Snapshot
}
