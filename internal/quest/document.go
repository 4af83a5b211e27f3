package quest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidFormat is returned when an imported document is malformed.
var ErrInvalidFormat = errors.New("quest: invalid document format")

// Document is the serializable unit of persistence, import and export.
type Document struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Nodes       []Node `json:"nodes"`
	Edges       []Edge `json:"edges"`
}

// Graph returns a deep copy of the document's nodes and edges.
func (d *Document) Graph() Graph {
	return Graph{Nodes: d.Nodes, Edges: d.Edges}.Clone()
}

// NewDocument builds a document from a graph snapshot.
func NewDocument(name, description string, g Graph) *Document {
	c := g.Clone()
	doc := &Document{
		Name:        name,
		Description: description,
		Nodes:       c.Nodes,
		Edges:       c.Edges,
	}
	if doc.Nodes == nil {
		doc.Nodes = []Node{}
	}
	if doc.Edges == nil {
		doc.Edges = []Edge{}
	}
	return doc
}

// Import decodes a document. It fails with ErrInvalidFormat unless name is a
// non-empty string and both nodes and edges are present as arrays.
func Import(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	var name string
	raw, ok := top["name"]
	if !ok || json.Unmarshal(raw, &name) != nil || name == "" {
		return nil, fmt.Errorf("%w: name must be a non-empty string", ErrInvalidFormat)
	}
	for _, key := range []string{"nodes", "edges"} {
		raw, ok := top[key]
		if !ok || !isArray(raw) {
			return nil, fmt.Errorf("%w: %s must be an array", ErrInvalidFormat, key)
		}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return &doc, nil
}

// Export encodes the document as indented JSON.
func Export(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// LoadDocument reads and imports a document from a JSON file.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quest document: %w", err)
	}
	return Import(data)
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
