package graph

import "github.com/questforge/questgraph/internal/quest"

// linear returns start -> task -> end.
func linear() quest.Graph {
	return quest.Graph{
		Nodes: []quest.Node{
			{ID: "start", Kind: quest.KindStart, Data: &quest.StartData{Base: quest.Base{Label: "Start"}}},
			{ID: "task", Kind: quest.KindTask, Position: quest.Position{X: 100}, Data: &quest.TaskData{
				Base:      quest.Base{Label: "Gather herbs", OutputData: map[string]any{"status": "completed"}},
				Objective: "Collect 5 herbs", RequiredCount: 5,
			}},
			{ID: "end", Kind: quest.KindEnd, Position: quest.Position{X: 200}, Data: &quest.EndData{}},
		},
		Edges: []quest.Edge{
			{ID: "e1", Source: "start", Target: "task"},
			{ID: "e2", Source: "task", Target: "end"},
		},
	}
}
