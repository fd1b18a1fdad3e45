package models

// PromptContext carries the graph context serialized into provider prompts:
// the nodes of the current flow plus summaries of the installed custom node
// types the model may use.
type PromptContext struct {
	Nodes       []*Node             `json:"nodes"`
	CustomNodes []CustomNodeSummary `json:"customNodes,omitempty"`
}

// CustomNodeSummary is the compact description of an installed custom node
// type, as embedded in prompt context.
type CustomNodeSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Fields      []string `json:"fields,omitempty"`
}

// CustomNodeSpec is the full catalog record for a custom node package:
// the node types it registers and the functional fields they expose.
type CustomNodeSpec struct {
	PackageName string   `json:"packageName"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Types       []string `json:"types"`
	Fields      []string `json:"fields,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
}

// Summary folds the catalog record down to the prompt-context shape.
func (s *CustomNodeSpec) Summary() CustomNodeSummary {
	name := s.PackageName
	if len(s.Types) > 0 {
		name = s.Types[0]
	}

	return CustomNodeSummary{
		Name:        name,
		Description: s.Description,
		Fields:      s.Fields,
	}
}
