// Package ledger keeps an append-only history of activity transitions and
// failed ticks. It is an audit trail only; nothing reads it back to restore
// state.
package ledger

import (
	"database/sql"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventTransition  EventType = "transition"
	EventProbeFailed EventType = "probe_failed"
)

// Entry represents a single row in the ledger
type Entry struct {
	ID        int64
	Timestamp time.Time
	EventType EventType
	SessionID string
	Outcome   string
	Device    string
	GroupID   string
	Message   string
	Error     string
}

// Ledger provides append-only event logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds an entry. A zero Timestamp is stamped with the current time.
func (l *Ledger) Append(e Entry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	_, err := l.db.Exec(`
		INSERT INTO transition_ledger (timestamp, event_type, session_id, outcome, device, group_id, message, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ts.UTC().UnixMilli(), string(e.EventType), e.SessionID, e.Outcome, e.Device, e.GroupID, e.Message, e.Error)
	return err
}

// Recent returns the newest entries first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, timestamp, event_type, session_id, outcome, device, group_id, message, error
		FROM transition_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// BySession returns the entries of one activity session, oldest first
func (l *Ledger) BySession(sessionID string) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, timestamp, event_type, session_id, outcome, device, group_id, message, error
		FROM transition_ledger
		WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`DELETE FROM transition_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var session, outcome, device, group, message, errText sql.NullString
		var ts int64

		err := rows.Scan(&entry.ID, &ts, &entry.EventType, &session, &outcome, &device, &group, &message, &errText)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(ts).UTC()
		entry.SessionID = session.String
		entry.Outcome = outcome.String
		entry.Device = device.String
		entry.GroupID = group.String
		entry.Message = message.String
		entry.Error = errText.String

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
