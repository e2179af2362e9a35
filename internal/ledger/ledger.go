// Package ledger keeps an append-only, in-process history of requests sent
// to the controller API, for diagnostics.
package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/trulight/internal/api"
	"github.com/dokzlo13/trulight/internal/panel"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventCommandCompleted EventType = "command_completed"
	EventCommandFailed    EventType = "command_failed"
	EventHealthOK         EventType = "health_ok"
	EventHealthFailed     EventType = "health_failed"
)

// Entry represents a single dispatch in the ledger
type Entry struct {
	ID        int64     `json:"id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session,omitempty"`
	Endpoint  string    `json:"endpoint"`
	Action    string    `json:"action,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Response  any       `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
	Elapsed   int64     `json:"elapsed_ms"`
}

// Ledger provides append-only dispatch logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a dispatch outcome for a session
func (l *Ledger) Append(session string, d panel.Dispatch) error {
	eventType := classify(d)

	var action string
	var payloadJSON, responseJSON []byte
	var err error

	if d.Envelope != nil {
		action = d.Envelope.Action
		payloadJSON, err = json.Marshal(d.Envelope.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}
	if d.Err == nil && d.Body != nil {
		responseJSON, err = json.Marshal(d.Body)
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
	}

	var errText string
	if d.Err != nil {
		errText = d.Err.Error()
		// Keep the cause for diagnostics, unlike the panel display
		if cause := errors.Unwrap(d.Err); cause != nil {
			errText = fmt.Sprintf("%s: %v", errText, cause)
		}
	}

	_, err = l.db.Exec(
		`INSERT INTO dispatch_ledger (event_type, timestamp, session, endpoint, action, payload, response, error, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(eventType), l.now().UTC().UnixMilli(), session, string(d.Endpoint), action,
		nullString(payloadJSON), nullString(responseJSON), errText, d.Elapsed.Milliseconds(),
	)
	return err
}

func classify(d panel.Dispatch) EventType {
	if d.Endpoint == api.EndpointHealth {
		if d.Err != nil {
			return EventHealthFailed
		}
		return EventHealthOK
	}
	if d.Err != nil {
		return EventCommandFailed
	}
	return EventCommandCompleted
}

func nullString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// Recorder returns a panel.Recorder that appends dispatches for one session.
// Write errors are logged, never returned to the panel.
func (l *Ledger) Recorder(session string) panel.Recorder {
	return sessionRecorder{ledger: l, session: session}
}

type sessionRecorder struct {
	ledger  *Ledger
	session string
}

func (r sessionRecorder) RecordDispatch(d panel.Dispatch) {
	if err := r.ledger.Append(r.session, d); err != nil {
		log.Warn().Err(err).Str("session", r.session).Msg("Failed to append to dispatch ledger")
	}
}

// Recent returns the newest entries first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, session, endpoint, action, payload, response, error, elapsed_ms
		FROM dispatch_ledger
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// BySession returns the newest entries of one session first
func (l *Ledger) BySession(session string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, session, endpoint, action, payload, response, error, elapsed_ms
		FROM dispatch_ledger
		WHERE session = ?
		ORDER BY id DESC
		LIMIT ?
	`, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`DELETE FROM dispatch_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var session, action, payload, response, errText sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &session, &entry.Endpoint,
			&action, &payload, &response, &errText, &entry.Elapsed,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		entry.Session = session.String
		entry.Action = action.String
		entry.Error = errText.String

		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		if response.Valid && response.String != "" {
			if err := json.Unmarshal([]byte(response.String), &entry.Response); err != nil {
				return nil, fmt.Errorf("failed to unmarshal response: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
