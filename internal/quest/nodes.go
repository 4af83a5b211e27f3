package quest

import (
	"encoding/json"
	"maps"
)

// NodeData is the kind-specific payload of a node. The set of variants is
// closed: StartData, TaskData, ConditionData, DialogueData, RewardData,
// EndData, and UnknownData for kinds this package does not recognise.
type NodeData interface {
	Kind() Kind
	Common() *Base
	clone() NodeData
}

// OutputSynthesizer is implemented by payloads whose node produces output
// data when executed.
type OutputSynthesizer interface {
	NodeData
	SynthesizesOutput()
}

// InputReferencer is implemented by payloads that keep weak references to
// upstream nodes.
type InputReferencer interface {
	NodeData
	Refs() map[string]InputRef
	SetRef(ref InputRef)
	DropRef(nodeID string) bool
}

// Base holds the fields shared by every node kind.
type Base struct {
	Label       string         `json:"label,omitempty"`
	Description string         `json:"description,omitempty"`
	OutputData  map[string]any `json:"outputData,omitempty"`
}

// Common returns the shared fields.
func (b *Base) Common() *Base { return b }

func (b Base) cloneBase() Base {
	b.OutputData = CloneMap(b.OutputData)
	return b
}

// InputRef is a lightweight descriptor of an upstream node. It is a lookup
// aid only; it never owns the referenced node.
type InputRef struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Label string `json:"label,omitempty"`
}

// StartData configures the entry node.
type StartData struct {
	Base
	GameVersion string `json:"gameVersion,omitempty"`
}

func (*StartData) Kind() Kind { return KindStart }

func (d *StartData) clone() NodeData {
	c := *d
	c.Base = d.cloneBase()
	return &c
}

// Task statuses understood by the simulator.
const (
	TaskCompleted  = "completed"
	TaskInProgress = "in-progress"
	TaskFailed     = "failed"
)

// TaskData configures an objective the player has to fulfil.
type TaskData struct {
	Base
	Objective     string `json:"objective,omitempty"`
	RequiredCount int    `json:"requiredCount,omitempty"`
	// CompletionThreshold is the progress percentage at which an in-progress
	// task counts as done for derived conditions. Zero means 100.
	CompletionThreshold int `json:"completionThreshold,omitempty"`
	// SimulatedStatus and SimulatedProgress let a designer replay a task
	// that is not finished. Empty status means completed.
	SimulatedStatus   string `json:"simulatedStatus,omitempty"`
	SimulatedProgress int    `json:"simulatedProgress,omitempty"`
}

func (*TaskData) Kind() Kind         { return KindTask }
func (*TaskData) SynthesizesOutput() {}

// Threshold returns the effective completion threshold.
func (d *TaskData) Threshold() int {
	if d.CompletionThreshold <= 0 {
		return 100
	}
	return d.CompletionThreshold
}

func (d *TaskData) clone() NodeData {
	c := *d
	c.Base = d.cloneBase()
	return &c
}

// ConditionData configures a branching node.
type ConditionData struct {
	Base
	Condition        string              `json:"condition,omitempty"`
	UseAutoCondition bool                `json:"useAutoCondition,omitempty"`
	SourceNodeID     string              `json:"sourceNodeId,omitempty"`
	InputRefs        map[string]InputRef `json:"inputRefs,omitempty"`
}

func (*ConditionData) Kind() Kind { return KindCondition }

// Refs returns the upstream references keyed by node id.
func (d *ConditionData) Refs() map[string]InputRef { return d.InputRefs }

// SetRef adds or overwrites the reference for ref.ID.
func (d *ConditionData) SetRef(ref InputRef) {
	if d.InputRefs == nil {
		d.InputRefs = make(map[string]InputRef)
	}
	d.InputRefs[ref.ID] = ref
}

// DropRef removes the reference to nodeID and reports whether it existed.
func (d *ConditionData) DropRef(nodeID string) bool {
	if _, ok := d.InputRefs[nodeID]; !ok {
		return false
	}
	delete(d.InputRefs, nodeID)
	if d.SourceNodeID == nodeID {
		d.SourceNodeID = ""
	}
	return true
}

func (d *ConditionData) clone() NodeData {
	c := *d
	c.Base = d.cloneBase()
	c.InputRefs = maps.Clone(d.InputRefs)
	return &c
}

// DialogueData configures a conversation beat.
type DialogueData struct {
	Base
	Character      string   `json:"character,omitempty"`
	Text           string   `json:"text,omitempty"`
	Choices        []string `json:"choices,omitempty"`
	SelectedChoice string   `json:"selectedChoice,omitempty"`
}

func (*DialogueData) Kind() Kind         { return KindDialogue }
func (*DialogueData) SynthesizesOutput() {}

func (d *DialogueData) clone() NodeData {
	c := *d
	c.Base = d.cloneBase()
	c.Choices = append([]string(nil), d.Choices...)
	return &c
}

// RewardType selects how a reward changes the player.
type RewardType string

const (
	RewardExperience RewardType = "experience"
	RewardCurrency   RewardType = "currency"
	RewardItem       RewardType = "item"
	RewardFlag       RewardType = "flag"
)

// RewardData configures a reward grant. RewardValue is the amount of
// experience or currency, or the item quantity.
type RewardData struct {
	Base
	RewardType  RewardType `json:"rewardType,omitempty"`
	RewardValue int        `json:"rewardValue,omitempty"`
	ItemID      string     `json:"itemId,omitempty"`
	ItemName    string     `json:"itemName,omitempty"`
	Flag        string     `json:"flag,omitempty"`
}

func (*RewardData) Kind() Kind         { return KindReward }
func (*RewardData) SynthesizesOutput() {}

func (d *RewardData) clone() NodeData {
	c := *d
	c.Base = d.cloneBase()
	return &c
}

// EndData configures a terminal node.
type EndData struct {
	Base
	Outcome string `json:"outcome,omitempty"`
}

func (*EndData) Kind() Kind { return KindEnd }

func (d *EndData) clone() NodeData {
	c := *d
	c.Base = d.cloneBase()
	return &c
}

// UnknownData preserves the payload of a node whose kind is not recognised,
// so that it survives a load/save round trip untouched.
type UnknownData struct {
	Base
	kind  Kind
	Extra map[string]any
}

func (d *UnknownData) Kind() Kind { return d.kind }

func (d *UnknownData) clone() NodeData {
	c := *d
	c.Base = d.cloneBase()
	c.Extra = CloneMap(d.Extra)
	return &c
}

// MarshalJSON writes the shared fields together with every preserved field.
func (d *UnknownData) MarshalJSON() ([]byte, error) {
	out := CloneMap(d.Extra)
	if out == nil {
		out = map[string]any{}
	}
	if d.Label != "" {
		out["label"] = d.Label
	}
	if d.Description != "" {
		out["description"] = d.Description
	}
	if d.OutputData != nil {
		out["outputData"] = d.OutputData
	}
	return json.Marshal(out)
}

// UnmarshalJSON overlays the object onto the payload.
func (d *UnknownData) UnmarshalJSON(b []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &d.Base); err != nil {
		return err
	}
	if d.Extra == nil {
		d.Extra = make(map[string]any)
	}
	for k, v := range fields {
		switch k {
		case "label", "description", "outputData":
			continue
		}
		d.Extra[k] = v
	}
	return nil
}

// NewData returns an empty payload for kind k.
func NewData(k Kind) NodeData {
	switch k {
	case KindStart:
		return &StartData{}
	case KindTask:
		return &TaskData{}
	case KindCondition:
		return &ConditionData{}
	case KindDialogue:
		return &DialogueData{}
	case KindReward:
		return &RewardData{}
	case KindEnd:
		return &EndData{}
	default:
		return &UnknownData{kind: k}
	}
}

// CloneMap deep-copies a JSON-like map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}
