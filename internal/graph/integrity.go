package graph

import (
	"fmt"
	"strings"

	"github.com/questforge/questgraph/internal/quest"
)

// IntegrityError aggregates structural findings for a graph. Errors break an
// invariant; warnings flag nodes that will not behave usefully at run time.
type IntegrityError struct {
	Errors   []string
	Warnings []string
}

func (e *IntegrityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "graph integrity: %d error(s)", len(e.Errors))
	for _, msg := range e.Errors {
		b.WriteString("; ")
		b.WriteString(msg)
	}
	return b.String()
}

// HasErrors reports whether any invariant is broken.
func (e *IntegrityError) HasErrors() bool {
	return e != nil && len(e.Errors) > 0
}

// Check inspects g and returns nil when there is nothing to report.
func Check(g quest.Graph) *IntegrityError {
	res := &IntegrityError{}

	kinds := make(map[string]quest.Kind, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := kinds[n.ID]; dup {
			res.Errors = append(res.Errors, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		kinds[n.ID] = n.Kind
	}

	edgeIDs := make(map[string]struct{}, len(g.Edges))
	type branch struct {
		source string
		kind   quest.EdgeKind
	}
	branches := make(map[branch]int)

	for _, e := range g.Edges {
		if _, dup := edgeIDs[e.ID]; dup {
			res.Errors = append(res.Errors, fmt.Sprintf("duplicate edge id %q", e.ID))
		}
		edgeIDs[e.ID] = struct{}{}

		sourceKind, okSource := kinds[e.Source]
		targetKind, okTarget := kinds[e.Target]
		if !okSource || !okTarget {
			res.Errors = append(res.Errors, fmt.Sprintf("edge %q references missing node", e.ID))
			continue
		}
		if targetKind == quest.KindStart {
			res.Errors = append(res.Errors, fmt.Sprintf("edge %q enters start node %q", e.ID, e.Target))
		}
		if sourceKind == quest.KindEnd {
			res.Errors = append(res.Errors, fmt.Sprintf("edge %q leaves end node %q", e.ID, e.Source))
		}
		if sourceKind == quest.KindCondition && e.Kind() != quest.EdgeDefault {
			b := branch{e.Source, e.Kind()}
			branches[b]++
			if branches[b] == 2 {
				res.Errors = append(res.Errors, fmt.Sprintf("condition %q has more than one %s edge", e.Source, e.Kind()))
			}
		}
	}

	for _, n := range g.Nodes {
		cond, ok := n.Data.(*quest.ConditionData)
		if !ok {
			continue
		}
		if strings.TrimSpace(cond.Condition) == "" && !(cond.UseAutoCondition && cond.SourceNodeID != "") {
			res.Warnings = append(res.Warnings, fmt.Sprintf("condition %q has no expression", n.ID))
		}
		if cond.UseAutoCondition && cond.SourceNodeID != "" {
			if _, exists := kinds[cond.SourceNodeID]; !exists {
				res.Warnings = append(res.Warnings, fmt.Sprintf("condition %q reads missing node %q", n.ID, cond.SourceNodeID))
			}
		}
	}

	if len(res.Errors) == 0 && len(res.Warnings) == 0 {
		return nil
	}
	return res
}
