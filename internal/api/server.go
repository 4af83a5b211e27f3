// Package api exposes the quest graph editor backend over HTTP: document
// persistence, structural edits, condition checks, simulation runs and the
// live event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/questforge/questgraph/internal/condition"
	"github.com/questforge/questgraph/internal/graph"
	"github.com/questforge/questgraph/internal/orchestrator"
	"github.com/questforge/questgraph/internal/repository"
	"github.com/questforge/questgraph/internal/storage/postgres"
)

// EventQuerier reads persisted events. postgres.EventLog implements it.
type EventQuerier interface {
	Query(limit int, sessionID string) ([]postgres.EventRow, error)
}

// Deps are the collaborators a Server works with. Store, Runtime and
// Repository are required.
type Deps struct {
	Service    string
	Store      *graph.Store
	Runtime    *orchestrator.Runtime
	Repository repository.Repository
	Evaluator  *condition.Evaluator
	EventLog   EventQuerier
}

// Server routes HTTP requests to the graph store and the simulation runtime.
type Server struct {
	service  string
	store    *graph.Store
	runtime  *orchestrator.Runtime
	repo     repository.Repository
	eval     *condition.Evaluator
	eventLog EventQuerier

	// runs tracks goroutines waiting to record run outputs.
	runs sync.WaitGroup
}

func New(d Deps) *Server {
	if d.Service == "" {
		d.Service = "questgraph"
	}
	if d.Evaluator == nil {
		d.Evaluator = condition.NewEvaluator(0)
	}
	return &Server{
		service:  d.Service,
		store:    d.Store,
		runtime:  d.Runtime,
		repo:     d.Repository,
		eval:     d.Evaluator,
		eventLog: d.EventLog,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ready", readyHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)

	mux.HandleFunc("GET /documents/{id}", RequireEditor(s.loadDocumentHandler))
	mux.HandleFunc("PUT /documents/{id}", RequireEditor(s.saveDocumentHandler))

	mux.HandleFunc("GET /graph", RequireViewer(s.graphHandler))
	mux.HandleFunc("GET /graph/export", RequireViewer(s.exportHandler))
	mux.HandleFunc("POST /graph/import", RequireEditor(s.importHandler))
	mux.HandleFunc("POST /graph/changes", RequireEditor(s.changesHandler))
	mux.HandleFunc("GET /graph/check", RequireViewer(s.checkHandler))

	mux.HandleFunc("POST /conditions/evaluate", RequireViewer(s.evaluateHandler))

	mux.HandleFunc("POST /runs", RequireEditor(s.startRunHandler))
	mux.HandleFunc("GET /runs/current", RequireViewer(s.currentRunHandler))
	mux.HandleFunc("POST /runs/cancel", RequireEditor(s.cancelRunHandler))

	mux.HandleFunc("GET /events", RequireViewer(s.eventsHandler))
	mux.HandleFunc("GET /ws/events", RequireViewer(wsEventsHandler))
	return mux
}

// ListenAndServe serves on port until ctx is done, then shuts down
// gracefully. TLS is used when configured via InitTLS.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg, err := LoadTLSConfig()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			log.Printf("API listening on %s (TLS)", srv.Addr)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("API listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.runs.Wait()
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.service,
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// readinessState tracks the dependencies /ready reports on.
type readinessState struct {
	mu                sync.RWMutex
	orchestratorReady bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

var readiness = &readinessState{mqttOptional: true, postgresOptional: true}

// SetOrchestratorReady marks whether the graph store and runtime are wired.
func SetOrchestratorReady(ready bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.orchestratorReady = ready
}

// SetMQTTState records broker connectivity. Optional dependencies don't
// fail readiness when unavailable.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
}

func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
}

type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

func dependencyCheck(name string, connected, optional bool, reasons *[]string) CheckStatus {
	switch {
	case connected:
		return CheckStatus{Status: "ok", Optional: optional}
	case optional:
		return CheckStatus{Status: "unavailable", Optional: true}
	default:
		*reasons = append(*reasons, name+" not connected")
		return CheckStatus{Status: "not_ready"}
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	st := readinessState{
		orchestratorReady: readiness.orchestratorReady,
		mqttConnected:     readiness.mqttConnected,
		mqttOptional:      readiness.mqttOptional,
		postgresConnected: readiness.postgresConnected,
		postgresOptional:  readiness.postgresOptional,
	}
	readiness.mu.RUnlock()

	var reasons []string
	checks := make(map[string]CheckStatus, 3)
	if st.orchestratorReady {
		checks["orchestrator"] = CheckStatus{Status: "ok"}
	} else {
		checks["orchestrator"] = CheckStatus{Status: "not_ready"}
		reasons = append(reasons, "orchestrator not ready")
	}
	checks["mqtt"] = dependencyCheck("mqtt", st.mqttConnected, st.mqttOptional, &reasons)
	checks["postgres"] = dependencyCheck("postgres", st.postgresConnected, st.postgresOptional, &reasons)

	resp := ReadinessResponse{Ready: len(reasons) == 0, Checks: checks}
	status := http.StatusOK
	if !resp.Ready {
		resp.NotReadyMsg = strings.Join(reasons, "; ")
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
