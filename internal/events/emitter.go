package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

var buffer = NewRingBuffer(256)

// Persister stores emitted events outside the process.
type Persister interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

// persistence reports the first failure of an outage as a system.error and
// stays quiet until an append succeeds again.
type persistence struct {
	mu      sync.Mutex
	store   Persister
	failing bool
}

var sink persistence

// SetPersister sets the store that emitted events are appended to.
// Passing nil disables persistence.
func SetPersister(p Persister) {
	sink.mu.Lock()
	sink.store = p
	sink.failing = false
	sink.mu.Unlock()
}

func (s *persistence) append(ts time.Time, e Event) {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return
	}

	err := store.Append(ts, e.Level, e.Name, e.Message, e.Fields, SessionOf(e))

	s.mu.Lock()
	report := err != nil && !s.failing
	s.failing = err != nil
	s.mu.Unlock()

	if report {
		// Published directly so a failing store cannot recurse through Emit.
		publish(Event{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Level:     "error",
			Name:      "system.error",
			Message:   "event persistence failed",
			Fields:    map[string]interface{}{"error": err.Error()},
		})
	}
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func publish(e Event) {
	buffer.Add(e)
	broadcast(e)
}

// Emit records a registered event: it is buffered, broadcast to subscribers
// and handed to the persister. The JSON encoding is returned for callers
// that log it.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}
	publish(e)
	sink.append(ts, e)

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", name, err)
	}
	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since start (or the last Clear).
func TotalCount() uint64 {
	return buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
