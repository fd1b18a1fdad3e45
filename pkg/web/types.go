// Package web provides HTTP request and response types for the AI sync API.
package web

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/flowmuse/flowmuse/pkg/models"
)

// BuildFlowContext is the editor's view of its active tab, sent alongside
// an instruction so generation can reference what already exists.
type BuildFlowContext struct {
	Nodes       []*models.Node             `json:"nodes,omitempty"`
	CustomNodes []models.CustomNodeSummary `json:"customNodes,omitempty"`
}

// BuildFlowRequest represents the request body for generating a flow from
// a natural-language instruction.
type BuildFlowRequest struct {
	Prompt         string            `json:"prompt"                   validate:"required"`
	Context        *BuildFlowContext `json:"context,omitempty"`
	ConfigOverride map[string]any    `json:"configOverride,omitempty"`
}

// ResyncNodeRequest represents the request body for regenerating one node
// from its intent text.
type ResyncNodeRequest struct {
	NodeID         string         `json:"nodeId"                   validate:"required"`
	NodeType       string         `json:"nodeType"`
	NodeName       string         `json:"nodeName,omitempty"`
	Info           string         `json:"info"                     validate:"required"`
	CurrentConfig  map[string]any `json:"currentConfig,omitempty"`
	ConfigOverride map[string]any `json:"configOverride,omitempty"`
}

// DescribeNodeRequest represents the request body for synthesizing a
// node's display name and description.
type DescribeNodeRequest struct {
	NodeID         string         `json:"nodeId"                   validate:"required"`
	NodeType       string         `json:"nodeType"`
	NodeName       string         `json:"nodeName,omitempty"`
	CurrentConfig  map[string]any `json:"currentConfig"            validate:"required"`
	ConfigOverride map[string]any `json:"configOverride,omitempty"`
}

// RegisterCustomNodesRequest carries the custom node table the editor
// reports. Nodes stays raw until the handler has checked the payload is
// actually an array.
type RegisterCustomNodesRequest struct {
	Nodes json.RawMessage `json:"nodes"`
}

var errNodesNotArray = errors.New("nodes must be a JSON array")

// Specs decodes the nodes payload, rejecting anything but a JSON array.
func (r RegisterCustomNodesRequest) Specs() ([]*models.CustomNodeSpec, error) {
	raw := bytes.TrimSpace(r.Nodes)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, errNodesNotArray
	}

	var specs []*models.CustomNodeSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, errNodesNotArray
	}

	return specs, nil
}

// ProviderStatus reports one connector's configuration state. Config masks
// its credential on serialization, so the response is safe to expose.
type ProviderStatus struct {
	Name       string                 `json:"name"`
	Active     bool                   `json:"active"`
	Configured bool                   `json:"configured"`
	Valid      bool                   `json:"valid"`
	Errors     []string               `json:"errors,omitempty"`
	Config     models.ConnectorConfig `json:"config"`
}

// SyncStateResponse is one node's tracker record plus its drift
// classification when the node is present in the graph.
type SyncStateResponse struct {
	models.SyncState
	Drift string `json:"drift,omitempty"`
}
