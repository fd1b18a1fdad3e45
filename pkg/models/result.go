package models

// GenerationKind discriminates what a generation operation produced.
type GenerationKind string

const (
	KindFlow     GenerationKind = "flow"
	KindNode     GenerationKind = "node"
	KindDescribe GenerationKind = "describe"
)

// TokenUsage is the provider-reported token accounting for one exchange.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// GenerationMetadata carries provenance for a generation: which model
// answered, what it cost, and any citations the provider attached.
type GenerationMetadata struct {
	Provider  string      `json:"provider,omitempty"`
	Model     string      `json:"model,omitempty"`
	Usage     *TokenUsage `json:"usage,omitempty"`
	Citations []string    `json:"citations,omitempty"`
}

// GenerationResult is the uniform envelope every generation operation
// returns. Exactly one of the payload fields is populated on success,
// matching Kind; on failure Success is false and Error holds a
// human-readable message.
type GenerationResult struct {
	Success     bool                `json:"success"`
	Kind        GenerationKind      `json:"-"`
	Flow        []*Node             `json:"flow,omitempty"`
	FlowName    string              `json:"flowName,omitempty"`
	UpdatedNode *Node               `json:"updatedNode,omitempty"`
	Name        string              `json:"name,omitempty"`
	Description string              `json:"description,omitempty"`
	Error       string              `json:"error,omitempty"`
	Metadata    *GenerationMetadata `json:"metadata,omitempty"`
}

// Failed builds a failure envelope of the given kind.
func Failed(kind GenerationKind, message string) GenerationResult {
	return GenerationResult{Success: false, Kind: kind, Error: message}
}

// ResyncRequest identifies the node to regenerate and the intent to
// regenerate it from.
type ResyncRequest struct {
	NodeID        string         `json:"nodeId"`
	NodeType      string         `json:"nodeType"`
	NodeName      string         `json:"nodeName,omitempty"`
	Info          string         `json:"info"`
	CurrentConfig map[string]any `json:"currentConfig,omitempty"`
}

// DescribeRequest identifies the node to describe.
type DescribeRequest struct {
	NodeID        string         `json:"nodeId"`
	NodeType      string         `json:"nodeType"`
	NodeName      string         `json:"nodeName,omitempty"`
	CurrentConfig map[string]any `json:"currentConfig,omitempty"`
}
