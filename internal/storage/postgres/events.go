// Package postgres holds the PostgreSQL adapters: the quest document
// repository (pgx) and the event log (database/sql with lib/pq).
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Service   string                 `json:"service"`
	SessionID *string                `json:"session_id,omitempty"`
}

// EventLog appends emitted events to the quest_events table.
type EventLog struct {
	db      *sql.DB
	service string
}

// NewEventLog connects with dsn and creates the table if needed.
func NewEventLog(dsn, service string) (*EventLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	l := &EventLog{db: db, service: service}
	if err := l.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}
	return l, nil
}

func (l *EventLog) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS quest_events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			service    TEXT NOT NULL,
			session_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_quest_events_ts ON quest_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_quest_events_session ON quest_events(session_id);
	`
	_, err := l.db.Exec(query)
	return err
}

// Append inserts an event.
func (l *EventLog) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var fieldsJSON []byte
	if fields != nil {
		var err error
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	_, err := l.db.Exec(`
		INSERT INTO quest_events (ts, level, event, msg, fields, service, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ts, level, event, nullString(msg), fieldsJSON, l.service, nullString(sessionID))
	return err
}

// Query returns the last limit events, newest first. A non-empty sessionID
// restricts the result to one simulation run.
func (l *EventLog) Query(limit int, sessionID string) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	rows, err := l.db.Query(`
		SELECT event_id, ts, level, event, msg, fields, service, session_id
		FROM quest_events
		WHERE service = $1 AND ($2 = '' OR session_id = $2)
		ORDER BY ts DESC
		LIMIT $3
	`, l.service, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, session sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Service, &session); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if session.Valid {
			e.SessionID = &session.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping checks the connection.
func (l *EventLog) Ping() error {
	return l.db.Ping()
}

// Close closes the database connection.
func (l *EventLog) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
