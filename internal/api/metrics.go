package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/questforge/questgraph/internal/events"
	"github.com/questforge/questgraph/internal/orchestrator"
	"github.com/questforge/questgraph/internal/version"
)

var metricsState = &MetricsState{startTime: time.Now()}

// MetricsState holds process-level values for the /metrics endpoint.
type MetricsState struct {
	mu        sync.RWMutex
	startTime time.Time
}

// InitMetrics resets the uptime clock. Call once at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
}

func uptime() float64 {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return time.Since(metricsState.startTime).Seconds()
}

type metric struct {
	name, kind, help string
	value            any
}

func gauge(name, help string, value any) metric {
	return metric{name: "questgraph_" + name, kind: "gauge", help: help, value: value}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Server) collectMetrics() []metric {
	readiness.mu.RLock()
	mqttUp, pgUp := readiness.mqttConnected, readiness.postgresConnected
	readiness.mu.RUnlock()

	g := s.store.Snapshot()
	run := s.runtime.Result()

	return []metric{
		gauge("uptime_seconds", "Seconds since the service started", uptime()),
		{name: "questgraph_events_total", kind: "counter", help: "Events emitted since startup", value: events.TotalCount()},
		gauge("graph_nodes", "Nodes in the document being edited", len(g.Nodes)),
		gauge("graph_edges", "Edges in the document being edited", len(g.Edges)),
		gauge("run_active", "1 while a simulation run is in progress", boolGauge(run.State == orchestrator.RunStateRunning)),
		gauge("run_trace_entries", "Trace entries of the current or last run", len(run.Trace)),
		gauge("player_level", "Simulated player level of the current or last run", run.Player.Level),
		gauge("mqtt_connected", "1 while the MQTT broker is connected", boolGauge(mqttUp)),
		gauge("postgres_connected", "1 while PostgreSQL is connected", boolGauge(pgUp)),
		gauge("ws_clients", "Live event subscribers", events.SubscriberCount()),
	}
}

// metricsHandler writes the Prometheus text exposition format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	labels := fmt.Sprintf(`service=%q,instance=%q,version=%q`, s.service, hostname, version.Version)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	for _, m := range s.collectMetrics() {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s{%s} %v\n", m.name, m.help, m.name, m.kind, m.name, labels, m.value)
	}
}
