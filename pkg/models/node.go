// Package models defines the core domain models for AI-assisted flow editing.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Container node types. Nodes of these types group other nodes and are
// excluded from prompt context and merge proposals.
const (
	NodeTypeTab     = "tab"
	NodeTypeSubflow = "subflow"
)

// Node is the wire format of a single graph node as exchanged with the
// editor and with AI providers. Beyond the structural fields below, a node
// carries arbitrary type-specific functional fields (an executable body,
// routing rules, a target URL, ...) which are kept opaque in Extra and
// round-tripped untouched.
type Node struct {
	ID    string     `json:"id"`
	Type  string     `json:"type"`
	Name  string     `json:"name,omitempty"`
	Info  string     `json:"info,omitempty"`
	X     *float64   `json:"x,omitempty"`
	Y     *float64   `json:"y,omitempty"`
	Z     string     `json:"z,omitempty"`
	Wires [][]string `json:"wires,omitempty"`

	// Extra holds the opaque functional payload: every JSON member that is
	// not one of the structural fields above.
	Extra map[string]any `json:"-"`
}

// structural JSON members lifted out of Extra.
var structuralFields = map[string]struct{}{
	"id": {}, "type": {}, "name": {}, "info": {},
	"x": {}, "y": {}, "z": {}, "wires": {},
}

// IsContainer reports whether the node is a grouping container (tab or
// subflow definition) rather than a functional node.
func (n *Node) IsContainer() bool {
	return n.Type == NodeTypeTab || n.Type == NodeTypeSubflow
}

// HasPosition reports whether the node carries explicit coordinates.
func (n *Node) HasPosition() bool {
	return n.X != nil && n.Y != nil
}

// SetPosition sets both coordinates.
func (n *Node) SetPosition(x, y float64) {
	n.X = &x
	n.Y = &y
}

// Fingerprint returns a stable hash of the node's functional fields only.
// Structural fields (identity, position, wiring, intent text) do not
// participate, so the fingerprint changes exactly when the node's behavior
// does. encoding/json sorts map keys, which makes the serialization
// canonical.
func (n *Node) Fingerprint() string {
	extra := n.Extra
	if extra == nil {
		extra = map[string]any{}
	}

	data, err := json.Marshal(extra)
	if err != nil {
		// Functional payloads come from JSON and always re-marshal; reaching
		// this means a programmatic caller stored an unmarshalable value.
		data = fmt.Appendf(nil, "unmarshalable:%v", err)
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	clone := &Node{
		ID:   n.ID,
		Type: n.Type,
		Name: n.Name,
		Info: n.Info,
		Z:    n.Z,
	}

	if n.X != nil {
		x := *n.X
		clone.X = &x
	}

	if n.Y != nil {
		y := *n.Y
		clone.Y = &y
	}

	if n.Wires != nil {
		clone.Wires = make([][]string, len(n.Wires))
		for i, port := range n.Wires {
			clone.Wires[i] = append([]string(nil), port...)
		}
	}

	if n.Extra != nil {
		clone.Extra = make(map[string]any, len(n.Extra))
		for k, v := range n.Extra {
			clone.Extra[k] = cloneValue(v)
		}
	}

	return clone
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return val
	}
}

// MarshalJSON flattens Extra back into the node object.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Extra)+8)

	for k, v := range n.Extra {
		if _, structural := structuralFields[k]; structural {
			continue
		}

		out[k] = v
	}

	out["id"] = n.ID
	out["type"] = n.Type

	if n.Name != "" {
		out["name"] = n.Name
	}

	if n.Info != "" {
		out["info"] = n.Info
	}

	if n.X != nil {
		out["x"] = *n.X
	}

	if n.Y != nil {
		out["y"] = *n.Y
	}

	if n.Z != "" {
		out["z"] = n.Z
	}

	if n.Wires != nil {
		out["wires"] = n.Wires
	}

	return json.Marshal(out)
}

// UnmarshalJSON lifts the structural fields and keeps everything else in
// Extra. Malformed wires entries (non-string ids) are dropped rather than
// failing the whole node, since provider output is not trustworthy.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.ID, _ = raw["id"].(string)
	n.Type, _ = raw["type"].(string)
	n.Name, _ = raw["name"].(string)
	n.Info, _ = raw["info"].(string)
	n.Z, _ = raw["z"].(string)

	if x, ok := raw["x"].(float64); ok {
		n.X = &x
	}

	if y, ok := raw["y"].(float64); ok {
		n.Y = &y
	}

	if wires, ok := raw["wires"].([]any); ok {
		n.Wires = decodeWires(wires)
	}

	n.Extra = make(map[string]any)

	for k, v := range raw {
		if _, structural := structuralFields[k]; structural {
			continue
		}

		n.Extra[k] = v
	}

	return nil
}

func decodeWires(raw []any) [][]string {
	wires := make([][]string, 0, len(raw))

	for _, port := range raw {
		targets, ok := port.([]any)
		if !ok {
			wires = append(wires, []string{})

			continue
		}

		ids := make([]string, 0, len(targets))

		for _, target := range targets {
			if id, ok := target.(string); ok {
				ids = append(ids, id)
			}
		}

		wires = append(wires, ids)
	}

	return wires
}
