// Package parser extracts structured payloads from free-form AI provider
// replies, tolerating markdown code fences and bounding how much raw model
// output can leak into error messages.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowmuse/flowmuse/pkg/models"
)

// FlowPayload is the parsed result of a flow-generation reply.
type FlowPayload struct {
	Nodes    []*models.Node
	FlowName string
}

// DescriptionPayload is the parsed result of a description-generation reply.
type DescriptionPayload struct {
	Name        string
	Description string
}

// nodeSchema is the minimal shape every proposed node must satisfy. All
// non-structural members are allowed through as opaque payload.
var nodeSchema = map[string]any{
	"type":     "object",
	"required": []any{"id", "type"},
	"properties": map[string]any{
		"id":   map[string]any{"type": "string", "minLength": 1},
		"type": map[string]any{"type": "string", "minLength": 1},
		"name": map[string]any{"type": "string"},
		"info": map[string]any{"type": "string"},
		"x":    map[string]any{"type": "number"},
		"y":    map[string]any{"type": "number"},
		"z":    map[string]any{"type": "string"},
		"wires": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	},
}

// ParseFlow extracts a proposed node list and optional flow name from a
// flow-generation reply. A reply without a "flow" member yields an empty
// proposal, not an error; each proposed node is validated against the node
// schema.
func ParseFlow(raw string) (*FlowPayload, error) {
	parsed, err := extract(raw)
	if err != nil {
		return nil, err
	}

	payload := &FlowPayload{Nodes: []*models.Node{}}

	object, ok := parsed.(map[string]any)
	if !ok {
		return payload, nil
	}

	if name, ok := object["flowName"].(string); ok {
		payload.FlowName = strings.TrimSpace(name)
	}

	proposed, ok := object["flow"].([]any)
	if !ok {
		return payload, nil
	}

	for i, entry := range proposed {
		if err := validateNode(entry); err != nil {
			return nil, &SemanticError{Message: fmt.Sprintf("invalid node at index %d: %v", i, err)}
		}

		node, err := decodeNode(entry)
		if err != nil {
			return nil, &SemanticError{Message: fmt.Sprintf("invalid node at index %d: %v", i, err)}
		}

		payload.Nodes = append(payload.Nodes, node)
	}

	return payload, nil
}

// ParseNode extracts the updated node from a resync reply: the whole parsed
// object is the node.
func ParseNode(raw string) (*models.Node, error) {
	parsed, err := extract(raw)
	if err != nil {
		return nil, err
	}

	if err := validateNode(parsed); err != nil {
		return nil, &SemanticError{Message: fmt.Sprintf("invalid updated node: %v", err)}
	}

	return decodeNode(parsed)
}

// ParseDescription extracts name and description from a
// description-generation reply. Both must be present and non-empty after
// trimming.
func ParseDescription(raw string) (*DescriptionPayload, error) {
	parsed, err := extract(raw)
	if err != nil {
		return nil, err
	}

	object, ok := parsed.(map[string]any)
	if !ok {
		return nil, &SemanticError{Message: "missing name or description"}
	}

	name, _ := object["name"].(string)
	description, _ := object["description"].(string)

	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)

	if name == "" || description == "" {
		return nil, &SemanticError{Message: "missing name or description"}
	}

	return &DescriptionPayload{Name: name, Description: description}, nil
}

// extract trims the reply, strips a wrapping code fence and parses the
// remainder as JSON. The returned value is the generic decoded document.
func extract(raw string) (any, error) {
	text := stripFence(strings.TrimSpace(raw))

	var parsed any

	err := json.Unmarshal([]byte(text), &parsed)
	if err != nil {
		return nil, newParseError(raw, err)
	}

	return parsed, nil
}

// stripFence removes a wrapping markdown code fence, with or without a
// "json" language tag. Text that is not fully fenced is returned unchanged.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")

	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		tag := strings.TrimSpace(inner[:nl])
		if tag == "" || strings.EqualFold(tag, "json") {
			inner = inner[nl+1:]
		}
	}

	return strings.TrimSpace(inner)
}

func validateNode(entry any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(nodeSchema), gojsonschema.NewGoLoader(entry))
	if err != nil {
		return err
	}

	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, violation := range result.Errors() {
			violations = append(violations, violation.String())
		}

		return fmt.Errorf("%s", strings.Join(violations, "; "))
	}

	return nil
}

func decodeNode(entry any) (*models.Node, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	var node models.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, err
	}

	return &node, nil
}
