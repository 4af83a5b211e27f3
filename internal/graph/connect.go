package graph

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/questforge/questgraph/internal/quest"
)

// Edge labels derived from the source handle.
const (
	LabelConditionMet    = "condition met"
	LabelConditionNotMet = "condition not met"
	LabelConnect         = "connect"
)

// EdgeType is the rendering hint stored on edges created by Connect.
const EdgeType = "smoothstep"

// Connection describes an edge to be created between two nodes.
type Connection struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// BranchFor maps a source handle to its edge kind and label.
func BranchFor(sourceHandle string) (quest.EdgeKind, string) {
	switch sourceHandle {
	case quest.HandleTrue:
		return quest.EdgeSuccess, LabelConditionMet
	case quest.HandleFalse:
		return quest.EdgeFailure, LabelConditionNotMet
	default:
		return quest.EdgeDefault, LabelConnect
	}
}

// NewEdge builds an edge for c with a fresh id and the derived kind and label.
func NewEdge(c Connection) quest.Edge {
	kind, label := BranchFor(c.SourceHandle)
	return quest.Edge{
		ID:           "e-" + uuid.NewString(),
		Source:       c.Source,
		Target:       c.Target,
		SourceHandle: c.SourceHandle,
		TargetHandle: c.TargetHandle,
		Type:         EdgeType,
		Label:        label,
		Data:         quest.EdgeData{Kind: kind},
	}
}

// connect appends the edge for c to g after checking it keeps the graph
// consistent. Connecting into a condition records the source in the
// condition's input references.
func connect(g *quest.Graph, c Connection) (quest.Edge, error) {
	si, ti := nodeIndex(g, c.Source), nodeIndex(g, c.Target)
	if si < 0 {
		return quest.Edge{}, fmt.Errorf("%w: source %s", ErrNodeNotFound, c.Source)
	}
	if ti < 0 {
		return quest.Edge{}, fmt.Errorf("%w: target %s", ErrNodeNotFound, c.Target)
	}
	source, target := g.Nodes[si], &g.Nodes[ti]

	switch {
	case c.Source == c.Target:
		return quest.Edge{}, fmt.Errorf("%w: self loop on %s", ErrInvalidConnection, c.Source)
	case target.Kind == quest.KindStart:
		return quest.Edge{}, fmt.Errorf("%w: start node %s cannot have incoming edges", ErrInvalidConnection, c.Target)
	case source.Kind == quest.KindEnd:
		return quest.Edge{}, fmt.Errorf("%w: end node %s cannot have outgoing edges", ErrInvalidConnection, c.Source)
	}

	e := NewEdge(c)
	if source.Kind == quest.KindCondition && e.Kind() != quest.EdgeDefault {
		for _, existing := range g.Edges {
			if existing.Source == c.Source && existing.Kind() == e.Kind() {
				return quest.Edge{}, fmt.Errorf("%w: condition %s already has a %s edge", ErrInvalidConnection, c.Source, e.Kind())
			}
		}
	}

	if target.Data == nil {
		target.Data = quest.NewData(target.Kind)
	}
	if ref, ok := target.Data.(quest.InputReferencer); ok {
		ref.SetRef(quest.InputRef{ID: source.ID, Kind: source.Kind, Label: source.Label()})
	}

	g.Edges = append(g.Edges, e)
	return e, nil
}
