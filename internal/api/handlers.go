package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/questforge/questgraph/internal/condition"
	"github.com/questforge/questgraph/internal/events"
	"github.com/questforge/questgraph/internal/graph"
	"github.com/questforge/questgraph/internal/orchestrator"
	"github.com/questforge/questgraph/internal/quest"
	"github.com/questforge/questgraph/internal/repository"
)

const maxBodyBytes = 10 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, quest.ErrInvalidFormat),
		errors.Is(err, repository.ErrInvalidID),
		errors.Is(err, graph.ErrInvalidNode),
		errors.Is(err, graph.ErrUnknownChange):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, graph.ErrEdgeNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrRunActive),
		errors.Is(err, graph.ErrInvalidConnection),
		errors.Is(err, graph.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrMissingStartNode),
		errors.Is(err, orchestrator.ErrMultipleStartNodes):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) loadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Load(r.Context(), s.repo, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Document())
}

func (s *Server) saveDocumentHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Save(r.Context(), s.repo, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) graphHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Document())
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.Export()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="quest.json"`)
	_, _ = w.Write(data)
}

type ImportResponse struct {
	Document       *quest.Document `json:"document"`
	DroppedEdgeIDs []string        `json:"droppedEdgeIds,omitempty"`
}

func (s *Server) importHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	res, err := s.store.Import(data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{
		Document:       s.store.Document(),
		DroppedEdgeIDs: res.DroppedEdgeIDs,
	})
}

type ChangesRequest struct {
	Changes []graph.Change `json:"changes"`
}

func (s *Server) changesHandler(w http.ResponseWriter, r *http.Request) {
	var req ChangesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.store.Apply(req.Changes); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Document())
}

type CheckResponse struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (s *Server) checkHandler(w http.ResponseWriter, r *http.Request) {
	resp := CheckResponse{Errors: []string{}, Warnings: []string{}}
	if ie := graph.Check(s.store.Snapshot()); ie != nil {
		resp.Errors = append(resp.Errors, ie.Errors...)
		resp.Warnings = append(resp.Warnings, ie.Warnings...)
	}
	writeJSON(w, http.StatusOK, resp)
}

type EvaluateRequest struct {
	Expression string `json:"expression"`
	Player     any    `json:"player"`
	Quest      any    `json:"quest"`
	Input      any    `json:"input"`
}

// evaluateHandler always answers 200: evaluation failures are reported in
// the result body, never as transport errors.
func (s *Server) evaluateHandler(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res := s.eval.Evaluate(req.Expression, condition.Context{
		Player: req.Player,
		Quest:  req.Quest,
		Input:  req.Input,
	})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) startRunHandler(w http.ResponseWriter, r *http.Request) {
	final, err := s.runtime.StartRun(s.store.Snapshot())
	if err != nil {
		writeError(w, err)
		return
	}
	s.runs.Add(1)
	go s.recordWhenDone(final)
	writeJSON(w, http.StatusAccepted, s.runtime.Result())
}

// recordWhenDone writes each executed node's synthesized output back onto
// the edited graph once the run ends.
func (s *Server) recordWhenDone(final <-chan orchestrator.RunResult) {
	defer s.runs.Done()
	res := <-final
	if len(res.Outputs) == 0 {
		return
	}
	if err := s.store.RecordOutputs(res.Outputs); err != nil {
		log.Printf("api: record outputs for %s: %v", res.SessionID, err)
	}
}

func (s *Server) currentRunHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runtime.Result())
}

type CancelResponse struct {
	Cancelled bool                   `json:"cancelled"`
	Run       orchestrator.RunResult `json:"run"`
}

func (s *Server) cancelRunHandler(w http.ResponseWriter, r *http.Request) {
	cancelled := s.runtime.Cancel()
	writeJSON(w, http.StatusOK, CancelResponse{Cancelled: cancelled, Run: s.runtime.Result()})
}

// eventsHandler serves persisted events when an event log is configured and
// the in-memory ring buffer otherwise. ?session_id= narrows to one run.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if s.eventLog != nil {
		rows, err := s.eventLog.Query(limit, sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
		return
	}

	writeJSON(w, http.StatusOK, events.RecentEvents(limit, events.BySession(sessionID)))
}
