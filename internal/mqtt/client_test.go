package mqtt

import (
	"errors"
	"testing"
)

func TestTimeoutError(t *testing.T) {
	var err error = &TimeoutError{Op: "publish", Target: "questgraph/runs/run.started"}
	if got, want := err.Error(), "mqtt publish timeout: questgraph/runs/run.started"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.Op != "publish" {
		t.Errorf("errors.As failed for %v", err)
	}
}

func TestNotifyStateChange(t *testing.T) {
	var states []bool
	c := NewClient(Options{
		Broker:        "tcp://127.0.0.1:1",
		ClientID:      "questgraph-test",
		OnStateChange: func(connected bool) { states = append(states, connected) },
	})
	if c.IsConnected() {
		t.Fatal("new client should not be connected")
	}

	c.notify(true)
	c.onConnectionLost(nil, errors.New("eof"))
	if len(states) != 2 || !states[0] || states[1] {
		t.Errorf("state changes = %v, want [true false]", states)
	}
}

func TestNotifyWithoutCallback(t *testing.T) {
	c := NewClient(Options{Broker: "tcp://127.0.0.1:1", ClientID: "questgraph-test"})
	c.notify(true)
}
