package quest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type wireNode struct {
	ID       string          `json:"id"`
	Type     Kind            `json:"type"`
	Position Position        `json:"position"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the node as {id, type, position, data}.
func (n Node) MarshalJSON() ([]byte, error) {
	w := wireNode{ID: n.ID, Type: n.Kind, Position: n.Position}
	if n.Data != nil {
		b, err := json.Marshal(n.Data)
		if err != nil {
			return nil, fmt.Errorf("node %s: encode data: %w", n.ID, err)
		}
		w.Data = b
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes {id, type, position, data} and selects the payload
// variant from the type field.
func (n *Node) UnmarshalJSON(b []byte) error {
	var w wireNode
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	data := NewData(w.Type)
	if len(w.Data) > 0 && !bytes.Equal(bytes.TrimSpace(w.Data), []byte("null")) {
		if err := json.Unmarshal(w.Data, data); err != nil {
			return fmt.Errorf("node %s: decode %s data: %w", w.ID, w.Type, err)
		}
	}
	n.ID = w.ID
	n.Kind = w.Type
	n.Position = w.Position
	n.Data = data
	return nil
}

// MergeData overlays a JSON object onto a copy of the node's payload.
// Fields absent from patch keep their current values.
func MergeData(d NodeData, patch json.RawMessage) (NodeData, error) {
	trimmed := bytes.TrimSpace(patch)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("data patch must be a JSON object")
	}
	out := d.clone()
	if err := json.Unmarshal(trimmed, out); err != nil {
		return nil, fmt.Errorf("apply data patch: %w", err)
	}
	return out, nil
}
