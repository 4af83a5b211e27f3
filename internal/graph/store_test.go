package graph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/questforge/questgraph/internal/events"
	"github.com/questforge/questgraph/internal/quest"
	"github.com/questforge/questgraph/internal/repository"
)

type memRepo struct {
	docs map[string][]byte
}

func (m *memRepo) Load(ctx context.Context, id string) (*quest.Document, error) {
	data, ok := m.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return quest.Import(data)
}

func (m *memRepo) Save(ctx context.Context, id string, doc *quest.Document) error {
	data, err := quest.Export(doc)
	if err != nil {
		return err
	}
	m.docs[id] = data
	return nil
}

func TestStoreReplaceHealsAndEmits(t *testing.T) {
	events.Clear()
	s := NewStore()

	g := linear()
	g.Edges = append(g.Edges, quest.Edge{ID: "dangling", Source: "task", Target: "gone"})
	res := s.Replace(quest.NewDocument("Herbs", "", g))

	if len(res.DroppedEdgeIDs) != 1 || res.DroppedEdgeIDs[0] != "dangling" {
		t.Errorf("expected dangling dropped, got %v", res.DroppedEdgeIDs)
	}
	if len(s.Snapshot().Edges) != 2 {
		t.Errorf("expected 2 edges in store, got %d", len(s.Snapshot().Edges))
	}

	found := false
	for _, e := range events.Snapshot() {
		if e.Name == "graph.edges_dropped" {
			found = true
		}
	}
	if !found {
		t.Error("expected graph.edges_dropped event")
	}
}

func TestStoreImportRejectsMalformed(t *testing.T) {
	s := NewStore()
	s.Replace(quest.NewDocument("Herbs", "", linear()))

	_, err := s.Import([]byte(`{"name": "", "nodes": [], "edges": []}`))
	if !errors.Is(err, quest.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
	if doc := s.Document(); doc.Name != "Herbs" || len(doc.Nodes) != 3 {
		t.Errorf("expected state untouched, got %s with %d nodes", doc.Name, len(doc.Nodes))
	}
}

func TestStoreExportImportRoundTrip(t *testing.T) {
	s := NewStore()
	s.Replace(quest.NewDocument("Herbs", "Pick herbs", linear()))

	data, err := s.Export()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	other := NewStore()
	if _, err := other.Import(data); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if got, want := other.Document(), s.Document(); got.Description != want.Description || len(got.Nodes) != len(want.Nodes) {
		t.Errorf("expected equal documents, got %+v", got)
	}
}

func TestStoreSnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.Replace(quest.NewDocument("Herbs", "", linear()))

	snap := s.Snapshot()
	if _, err := s.Apply([]Change{RemoveNode("task")}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if !snap.HasNode("task") {
		t.Error("expected earlier snapshot unaffected by later edits")
	}
	if s.HasNode("task") {
		t.Error("expected task removed from store")
	}
}

func TestStoreApplyFailureKeepsState(t *testing.T) {
	s := NewStore()
	s.Replace(quest.NewDocument("Herbs", "", linear()))

	if _, err := s.Apply([]Change{RemoveNode("task"), RemoveEdge("e9")}); !errors.Is(err, ErrEdgeNotFound) {
		t.Fatalf("expected ErrEdgeNotFound, got %v", err)
	}
	if !s.HasNode("task") {
		t.Error("expected store untouched after failed batch")
	}
}

func TestStoreRecordOutputs(t *testing.T) {
	s := NewStore()
	s.Replace(quest.NewDocument("Herbs", "", linear()))

	err := s.RecordOutputs(map[string]map[string]any{
		"task":    {"status": "in-progress", "progress": 40},
		"removed": {"status": "completed"},
	})
	if err != nil {
		t.Fatalf("record outputs failed: %v", err)
	}

	n, _ := s.Snapshot().Node("task")
	task := n.Data.(*quest.TaskData)
	if task.OutputData["status"] != "in-progress" {
		t.Errorf("expected outputData updated, got %v", task.OutputData)
	}
	if task.Objective != "Collect 5 herbs" {
		t.Errorf("expected objective preserved, got %s", task.Objective)
	}
}

func TestStoreLoadSave(t *testing.T) {
	repo := &memRepo{docs: map[string][]byte{}}
	ctx := context.Background()

	s := NewStore()
	s.Replace(quest.NewDocument("Herbs", "", linear()))
	if err := s.Save(ctx, repo, "herbs"); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	other := NewStore()
	if err := other.Load(ctx, repo, "herbs"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(other.Snapshot().Nodes) != 3 {
		t.Errorf("expected 3 nodes after load, got %d", len(other.Snapshot().Nodes))
	}

	if err := other.Load(ctx, repo, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreSaveUnnamedLoadsBack(t *testing.T) {
	dir := t.TempDir()
	repo, err := repository.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	s := NewStore()
	if _, err := s.Apply([]Change{AddNode(quest.Node{ID: "start", Kind: quest.KindStart})}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Save(ctx, repo, "default"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := s.Document().Name; got != "default" {
		t.Errorf("store name = %q after save, want default", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "default.json"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := quest.Import(data); err != nil {
		t.Errorf("saved file does not import: %v", err)
	}

	other := NewStore()
	if err := other.Load(ctx, repo, "default"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !other.HasNode("start") {
		t.Error("start node missing after load")
	}

	if err := NewStore().Save(ctx, repo, ""); !errors.Is(err, quest.ErrInvalidFormat) {
		t.Errorf("save without name or id: got %v, want ErrInvalidFormat", err)
	}
}
