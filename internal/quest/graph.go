// Package quest defines the quest graph data model: typed nodes, branch-tagged
// edges, and the GraphDocument persistence unit.
package quest

// Kind identifies the step type of a node.
type Kind string

const (
	KindStart     Kind = "start"
	KindTask      Kind = "task"
	KindCondition Kind = "condition"
	KindDialogue  Kind = "dialogue"
	KindReward    Kind = "reward"
	KindEnd       Kind = "end"
)

// Known reports whether k is one of the built-in node kinds.
func (k Kind) Known() bool {
	switch k {
	case KindStart, KindTask, KindCondition, KindDialogue, KindReward, KindEnd:
		return true
	}
	return false
}

// EdgeKind tags an edge with the branch it represents.
type EdgeKind string

const (
	EdgeDefault EdgeKind = "default"
	EdgeSuccess EdgeKind = "success"
	EdgeFailure EdgeKind = "failure"
)

// Branch handles used on condition nodes.
const (
	HandleTrue  = "true"
	HandleFalse = "false"
)

// Position is the editor canvas location of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single step in the quest graph.
type Node struct {
	ID       string
	Kind     Kind
	Position Position
	Data     NodeData
}

// Label returns the node's display label.
func (n Node) Label() string {
	if n.Data == nil {
		return ""
	}
	return n.Data.Common().Label
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	if n.Data != nil {
		n.Data = n.Data.clone()
	}
	return n
}

// Edge is a directed transition between two nodes.
type Edge struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	Target       string   `json:"target"`
	SourceHandle string   `json:"sourceHandle,omitempty"`
	TargetHandle string   `json:"targetHandle,omitempty"`
	Type         string   `json:"type,omitempty"`
	Label        string   `json:"label,omitempty"`
	Data         EdgeData `json:"data,omitzero"`
}

// EdgeData holds the branch kind and the display-only condition annotation.
type EdgeData struct {
	Kind      EdgeKind `json:"type,omitempty"`
	Condition string   `json:"condition,omitempty"`
}

// Kind returns the edge's branch kind, defaulting to EdgeDefault.
func (e Edge) Kind() EdgeKind {
	if e.Data.Kind == "" {
		return EdgeDefault
	}
	return e.Data.Kind
}

// Graph is a snapshot of the node and edge collections.
// Values are treated as immutable; mutation goes through graph.Apply.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// HasNode reports whether a node with the given id exists.
func (g Graph) HasNode(id string) bool {
	_, ok := g.Node(id)
	return ok
}

// Outgoing returns the edges leaving nodeID, in edge order.
func (g Graph) Outgoing(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Incoming returns the edges arriving at nodeID, in edge order.
func (g Graph) Incoming(nodeID string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// NodesOfKind returns every node of kind k, in node order.
func (g Graph) NodesOfKind(k Kind) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: make([]Edge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	copy(out.Edges, g.Edges)
	return out
}
