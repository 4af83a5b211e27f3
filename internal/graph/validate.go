// Package graph keeps quest graphs structurally consistent: it heals
// dangling edges, reports integrity problems, applies incremental edits and
// holds the canonical snapshot.
package graph

import "github.com/questforge/questgraph/internal/quest"

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	HealedEdges    []quest.Edge
	DroppedEdgeIDs []string
}

// Validate removes every edge whose source or target is not in nodes. Edge
// order is preserved. Validating the healed edges again drops nothing.
func Validate(nodes []quest.Node, edges []quest.Edge) ValidationResult {
	ids := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = struct{}{}
	}

	res := ValidationResult{HealedEdges: make([]quest.Edge, 0, len(edges))}
	for _, e := range edges {
		_, okSource := ids[e.Source]
		_, okTarget := ids[e.Target]
		if okSource && okTarget {
			res.HealedEdges = append(res.HealedEdges, e)
			continue
		}
		res.DroppedEdgeIDs = append(res.DroppedEdgeIDs, e.ID)
	}
	return res
}
