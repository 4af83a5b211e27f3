package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPersister struct {
	mu       sync.Mutex
	names    []string
	sessions []string
	err      error
}

func (p *recordingPersister) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, event)
	p.sessions = append(p.sessions, sessionID)
	return p.err
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	Clear()

	if _, err := Emit("info", "puzzle.solved", "", nil); err == nil {
		t.Error("expected error for unknown event")
	}
	if len(Snapshot()) != 0 {
		t.Errorf("expected no buffered events, got %d", len(Snapshot()))
	}
}

func TestEmitReturnsJSON(t *testing.T) {
	Clear()

	b, err := Emit("info", "graph.changed", "2 changes", map[string]interface{}{"changes": 2})
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		t.Fatalf("failed to decode emitted event: %v", err)
	}
	if e.Name != "graph.changed" || e.Message != "2 changes" {
		t.Errorf("unexpected event: %+v", e)
	}
	if _, err := time.Parse(time.RFC3339Nano, e.Timestamp); err != nil {
		t.Errorf("expected RFC3339 timestamp, got %s", e.Timestamp)
	}
}

func TestTotalCountSurvivesWrap(t *testing.T) {
	Clear()

	for i := 0; i < 300; i++ {
		Emit("info", "node.completed", "", nil)
	}
	if TotalCount() != 300 {
		t.Errorf("expected total 300, got %d", TotalCount())
	}
	if len(Snapshot()) != 256 {
		t.Errorf("expected buffer capped at 256, got %d", len(Snapshot()))
	}

	Clear()
	if TotalCount() != 0 || len(Snapshot()) != 0 {
		t.Error("expected Clear to reset buffer and counter")
	}
}

func TestPersisterReceivesEvents(t *testing.T) {
	Clear()
	p := &recordingPersister{}
	SetPersister(p)
	defer SetPersister(nil)

	Emit("info", "run.started", "", map[string]interface{}{"session_id": "sim-7"})

	if len(p.names) != 1 || p.names[0] != "run.started" {
		t.Fatalf("expected run.started persisted, got %v", p.names)
	}
	if p.sessions[0] != "sim-7" {
		t.Errorf("expected session sim-7, got %q", p.sessions[0])
	}
}

func TestPersisterFailureLoggedOnce(t *testing.T) {
	Clear()
	SetPersister(&recordingPersister{err: errors.New("connection refused")})
	defer SetPersister(nil)

	Emit("info", "run.started", "", nil)
	Emit("info", "run.completed", "", nil)

	errorsSeen := 0
	for _, e := range Snapshot() {
		if e.Name == "system.error" {
			errorsSeen++
		}
	}
	if errorsSeen != 1 {
		t.Errorf("expected exactly one system.error, got %d", errorsSeen)
	}
}

func TestPersisterFailureReportedAgainAfterRecovery(t *testing.T) {
	Clear()
	p := &recordingPersister{err: errors.New("connection refused")}
	SetPersister(p)
	defer SetPersister(nil)

	setErr := func(err error) {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	}

	Emit("info", "run.started", "", nil) // outage 1
	Emit("info", "node.started", "", nil)
	setErr(nil)
	Emit("info", "node.completed", "", nil) // recovered
	setErr(errors.New("connection reset"))
	Emit("info", "run.completed", "", nil) // outage 2

	var msgs []string
	for _, e := range Snapshot() {
		if e.Name == "system.error" {
			msgs = append(msgs, e.Fields["error"].(string))
		}
	}
	if len(msgs) != 2 || msgs[0] != "connection refused" || msgs[1] != "connection reset" {
		t.Errorf("system.error reports = %v, want one per outage", msgs)
	}
}
