package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/questforge/questgraph/internal/events"
	"github.com/questforge/questgraph/internal/quest"
	"github.com/questforge/questgraph/internal/repository"
)

// Store holds the canonical snapshot of the document being edited. All
// methods are safe for concurrent use; readers always receive copies.
type Store struct {
	mu          sync.RWMutex
	name        string
	description string
	g           quest.Graph
}

// NewStore returns an empty, unnamed store.
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns a deep copy of the current graph.
func (s *Store) Snapshot() quest.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.Clone()
}

// Document returns the current state as a document.
func (s *Store) Document() *quest.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return quest.NewDocument(s.name, s.description, s.g)
}

// HasNode reports whether the current graph contains id.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.HasNode(id)
}

// Replace swaps in doc, dropping edges whose endpoints are missing.
func (s *Store) Replace(doc *quest.Document) ValidationResult {
	g := doc.Graph()
	res := Validate(g.Nodes, g.Edges)
	g.Edges = res.HealedEdges

	s.mu.Lock()
	s.name = doc.Name
	s.description = doc.Description
	s.g = g
	s.mu.Unlock()

	if len(res.DroppedEdgeIDs) > 0 {
		log.Printf("graph: dropped %d dangling edge(s) from %q: %v", len(res.DroppedEdgeIDs), doc.Name, res.DroppedEdgeIDs)
		events.Emit("warn", "graph.edges_dropped", "dangling edges removed", map[string]interface{}{
			"document": doc.Name,
			"edge_ids": res.DroppedEdgeIDs,
		})
	}
	return res
}

// Apply applies a batch of changes atomically to the current graph and
// returns the new snapshot. On error the store is unchanged.
func (s *Store) Apply(changes []Change) (quest.Graph, error) {
	s.mu.Lock()
	next, err := Apply(s.g, changes)
	if err != nil {
		s.mu.Unlock()
		return quest.Graph{}, err
	}
	s.g = next
	out := next.Clone()
	s.mu.Unlock()

	types := make([]string, len(changes))
	for i, c := range changes {
		types[i] = string(c.Type)
	}
	events.Emit("info", "graph.changed", "", map[string]interface{}{
		"changes": len(changes),
		"types":   types,
	})
	return out, nil
}

// RecordOutputs merges synthesized output data back onto the nodes that
// produced it. Nodes that no longer exist are skipped.
func (s *Store) RecordOutputs(outputs map[string]map[string]any) error {
	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s.mu.Lock()
	defer s.mu.Unlock()

	var changes []Change
	for _, id := range ids {
		if !s.g.HasNode(id) {
			continue
		}
		patch, err := json.Marshal(map[string]any{"outputData": outputs[id]})
		if err != nil {
			return fmt.Errorf("encode output for %s: %w", id, err)
		}
		changes = append(changes, MergeData(id, patch))
	}
	next, err := Apply(s.g, changes)
	if err != nil {
		return err
	}
	s.g = next
	return nil
}

// Import replaces the current document with data. Malformed input is
// rejected with quest.ErrInvalidFormat and leaves the store untouched.
func (s *Store) Import(data []byte) (ValidationResult, error) {
	doc, err := quest.Import(data)
	if err != nil {
		return ValidationResult{}, err
	}
	res := s.Replace(doc)
	events.Emit("info", "graph.imported", "", map[string]interface{}{
		"document": doc.Name,
		"nodes":    len(doc.Nodes),
		"edges":    len(res.HealedEdges),
	})
	return res, nil
}

// Export encodes the current document.
func (s *Store) Export() ([]byte, error) {
	return quest.Export(s.Document())
}

// Load replaces the current document with the one stored under id.
func (s *Store) Load(ctx context.Context, repo repository.Repository, id string) error {
	doc, err := repo.Load(ctx, id)
	if err != nil {
		return err
	}
	s.Replace(doc)
	events.Emit("info", "graph.loaded", "", map[string]interface{}{
		"document_id": id,
		"nodes":       len(doc.Nodes),
	})
	return nil
}

// Save writes the current document under id. A document without a name is
// saved, and from then on named, by its id.
func (s *Store) Save(ctx context.Context, repo repository.Repository, id string) error {
	doc := s.Document()
	if doc.Name == "" {
		// An unnamed document would not load back, so it takes the id.
		if id == "" {
			return fmt.Errorf("%w: document has no name", quest.ErrInvalidFormat)
		}
		doc.Name = id
		s.mu.Lock()
		if s.name == "" {
			s.name = id
		}
		s.mu.Unlock()
	}
	if err := repo.Save(ctx, id, doc); err != nil {
		return err
	}
	events.Emit("info", "graph.saved", "", map[string]interface{}{
		"document_id": id,
		"nodes":       len(doc.Nodes),
		"edges":       len(doc.Edges),
	})
	return nil
}
