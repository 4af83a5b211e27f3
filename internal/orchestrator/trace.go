package orchestrator

import "github.com/questforge/questgraph/internal/quest"

// FlowEnded is the message of the entry that closes a completed run.
const FlowEnded = "flow ended"

// TraceEntry records one executed step.
type TraceEntry struct {
	NodeID          string         `json:"nodeId"`
	NodeKind        quest.Kind     `json:"nodeKind"`
	Label           string         `json:"label"`
	Status          EntryStatus    `json:"status"`
	Message         string         `json:"message,omitempty"`
	OutputData      map[string]any `json:"outputData,omitempty"`
	ConditionResult *bool          `json:"conditionResult,omitempty"`
	Expression      string         `json:"expression,omitempty"`
	ErrorKind       ErrorKind      `json:"errorKind,omitempty"`
}

func (e TraceEntry) clone() TraceEntry {
	e.OutputData = quest.CloneMap(e.OutputData)
	if e.ConditionResult != nil {
		v := *e.ConditionResult
		e.ConditionResult = &v
	}
	return e
}

func entryFor(n quest.Node, status EntryStatus, msg string, output map[string]any) TraceEntry {
	return TraceEntry{
		NodeID:     n.ID,
		NodeKind:   n.Kind,
		Label:      n.Label(),
		Status:     status,
		Message:    msg,
		OutputData: output,
	}
}

func cloneTrace(t []TraceEntry) []TraceEntry {
	out := make([]TraceEntry, len(t))
	for i, e := range t {
		out[i] = e.clone()
	}
	return out
}
