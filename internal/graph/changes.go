package graph

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/questforge/questgraph/internal/quest"
)

var (
	ErrNodeNotFound      = errors.New("graph: node not found")
	ErrEdgeNotFound      = errors.New("graph: edge not found")
	ErrDuplicateID       = errors.New("graph: duplicate id")
	ErrInvalidNode       = errors.New("graph: invalid node")
	ErrInvalidConnection = errors.New("graph: invalid connection")
	ErrUnknownChange     = errors.New("graph: unknown change type")
)

// ChangeType selects the edit a Change performs.
type ChangeType string

const (
	ChangePosition   ChangeType = "position"
	ChangeData       ChangeType = "data"
	ChangeAddNode    ChangeType = "add_node"
	ChangeRemoveNode ChangeType = "remove_node"
	ChangeAddEdge    ChangeType = "add_edge"
	ChangeRemoveEdge ChangeType = "remove_edge"
)

// Change is a single structural edit. Which fields are read depends on Type:
// ID names the node (position, data, remove_node) or edge (remove_edge),
// Position carries the new location, Data is a JSON object merged into the
// node payload, Node is the node to add and Connection the edge to create.
type Change struct {
	Type       ChangeType      `json:"type"`
	ID         string          `json:"id,omitempty"`
	Position   *quest.Position `json:"position,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Node       *quest.Node     `json:"node,omitempty"`
	Connection *Connection     `json:"connection,omitempty"`
}

func MovePosition(id string, pos quest.Position) Change {
	return Change{Type: ChangePosition, ID: id, Position: &pos}
}

func MergeData(id string, patch json.RawMessage) Change {
	return Change{Type: ChangeData, ID: id, Data: patch}
}

func AddNode(n quest.Node) Change {
	return Change{Type: ChangeAddNode, Node: &n}
}

func RemoveNode(id string) Change {
	return Change{Type: ChangeRemoveNode, ID: id}
}

func Connect(c Connection) Change {
	return Change{Type: ChangeAddEdge, Connection: &c}
}

func RemoveEdge(id string) Change {
	return Change{Type: ChangeRemoveEdge, ID: id}
}

// Apply applies changes in order to a copy of g. The batch is atomic: if any
// change is invalid, g is returned unchanged together with the error.
func Apply(g quest.Graph, changes []Change) (quest.Graph, error) {
	out := g.Clone()
	for i, c := range changes {
		if err := applyOne(&out, c); err != nil {
			return g, fmt.Errorf("change %d (%s): %w", i, c.Type, err)
		}
	}
	return out, nil
}

func applyOne(g *quest.Graph, c Change) error {
	switch c.Type {
	case ChangePosition:
		i := nodeIndex(g, c.ID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, c.ID)
		}
		if c.Position == nil {
			return fmt.Errorf("%w: position change without position", ErrInvalidNode)
		}
		g.Nodes[i].Position = *c.Position

	case ChangeData:
		i := nodeIndex(g, c.ID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, c.ID)
		}
		n := &g.Nodes[i]
		if n.Data == nil {
			n.Data = quest.NewData(n.Kind)
		}
		merged, err := quest.MergeData(n.Data, c.Data)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidNode, c.ID, err)
		}
		n.Data = merged

	case ChangeAddNode:
		if c.Node == nil || c.Node.ID == "" || c.Node.Kind == "" {
			return fmt.Errorf("%w: node needs an id and a type", ErrInvalidNode)
		}
		if nodeIndex(g, c.Node.ID) >= 0 {
			return fmt.Errorf("%w: node %s", ErrDuplicateID, c.Node.ID)
		}
		n := c.Node.Clone()
		if n.Data == nil {
			n.Data = quest.NewData(n.Kind)
		}
		g.Nodes = append(g.Nodes, n)

	case ChangeRemoveNode:
		if !removeNode(g, c.ID) {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, c.ID)
		}

	case ChangeAddEdge:
		if c.Connection == nil {
			return fmt.Errorf("%w: missing connection", ErrInvalidConnection)
		}
		if _, err := connect(g, *c.Connection); err != nil {
			return err
		}

	case ChangeRemoveEdge:
		for i, e := range g.Edges {
			if e.ID == c.ID {
				g.Edges = append(g.Edges[:i:i], g.Edges[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, c.ID)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownChange, c.Type)
	}
	return nil
}

// removeNode drops the node, every edge touching it, and any weak reference
// to it held by condition nodes.
func removeNode(g *quest.Graph, id string) bool {
	i := nodeIndex(g, id)
	if i < 0 {
		return false
	}
	g.Nodes = append(g.Nodes[:i:i], g.Nodes[i+1:]...)

	kept := g.Edges[:0:0]
	for _, e := range g.Edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	g.Edges = kept

	for _, n := range g.Nodes {
		if ref, ok := n.Data.(quest.InputReferencer); ok {
			ref.DropRef(id)
		}
	}
	return true
}

func nodeIndex(g *quest.Graph, id string) int {
	for i, n := range g.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}
