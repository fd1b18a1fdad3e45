// Package prompt builds the system and user prompts sent to AI providers,
// including the size-bounded serialization of the current graph context.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/flowmuse/flowmuse/pkg/models"
)

// DefaultMaxContextChars bounds the serialized flow context when no budget
// is configured.
const DefaultMaxContextChars = 12000

// truncationNotice is appended to an over-budget context serialization.
// Downstream models condition on this wording; change it and regenerated
// flows start dropping nodes the model was told to preserve.
const truncationNotice = "\n\n[Flow truncated: showing %d of %d nodes. " +
	"Additional nodes exist but are omitted for size; preserve the structure " +
	"and wiring of nodes not shown.]"

const wireFormatBlock = `Nodes are JSON objects with these structural fields:
"id" (string, unique within the graph), "type" (the node type), "name"
(short display label), "info" (markdown describing what the node should do),
"x" and "y" (canvas position), "z" (the owning tab id) and "wires" (an array
of output ports, each port an array of downstream node ids). All other
fields configure the node's behavior and must be complete and valid for the
node's type.`

const flowSystemText = `You are an automation assistant for a node-based flow editor. You design complete flows from natural-language descriptions.

{{.WireFormat}}
{{if .CustomNodes}}
Custom node types available in this editor:
{{.CustomNodes}}
{{end}}
Respond with a single JSON object of the form {"flow": [node, ...], "flowName": "short title"}. Do not include any text outside the JSON object.`

const nodeSystemText = `You are an automation assistant for a node-based flow editor. You regenerate a single node's configuration from its description.

{{.WireFormat}}
{{if .CustomNodes}}
Custom node types available in this editor:
{{.CustomNodes}}
{{end}}
Respond with a single JSON object: the complete updated node, keeping its "id" and "type" unchanged. Do not include any text outside the JSON object.`

const describeSystemText = `You are an automation assistant for a node-based flow editor. You summarize what a node does from its configuration.

Respond with a single JSON object of the form {"name": "short node name", "description": "one or two sentences"}. Do not include any text outside the JSON object.`

const userWithContextText = `{{.Instruction}}

The flow currently contains {{.NodeCount}} node(s):

{{.Serialized}}
{{if .CustomNodes}}
Custom node types available:
{{.CustomNodes}}
{{end}}`

const resyncUserText = `Update the configuration of node "{{.NodeID}}" (type "{{.NodeType}}"{{if .NodeName}}, name "{{.NodeName}}"{{end}}) so that it does the following:

{{.Info}}

Current configuration:
{{.Config}}`

const describeUserText = `Generate a short name and description for node "{{.NodeID}}" (type "{{.NodeType}}"{{if .NodeName}}, name "{{.NodeName}}"{{end}}) based on its configuration:

{{.Config}}`

var (
	flowSystemTmpl   = template.Must(template.New("system_flow").Parse(flowSystemText))
	nodeSystemTmpl   = template.Must(template.New("system_node").Parse(nodeSystemText))
	userContextTmpl  = template.Must(template.New("user_with_context").Parse(userWithContextText))
	resyncUserTmpl   = template.Must(template.New("user_resync").Parse(resyncUserText))
	describeUserTmpl = template.Must(template.New("user_describe").Parse(describeUserText))
)

// Composer renders prompts from the built-in templates.
type Composer struct{}

// NewComposer creates a prompt composer.
func NewComposer() *Composer {
	return &Composer{}
}

type systemData struct {
	WireFormat  string
	CustomNodes string
}

type userData struct {
	Instruction string
	NodeCount   int
	Serialized  string
	CustomNodes string
}

type nodeData struct {
	NodeID   string
	NodeType string
	NodeName string
	Info     string
	Config   string
}

// BuildSystemPrompt renders the system prompt for the given generation kind,
// substituting the shared wire-format block and the custom node summary.
func (c *Composer) BuildSystemPrompt(kind models.GenerationKind, pctx models.PromptContext) (string, error) {
	if kind == models.KindDescribe {
		return describeSystemText, nil
	}

	tmpl := flowSystemTmpl
	if kind == models.KindNode {
		tmpl = nodeSystemTmpl
	}

	return render(tmpl, systemData{
		WireFormat:  wireFormatBlock,
		CustomNodes: summarizeCustomNodes(pctx.CustomNodes),
	})
}

// BuildUserPrompt renders the user prompt for flow generation: the
// with-context template when the graph carries at least one node, the bare
// instruction otherwise.
func (c *Composer) BuildUserPrompt(instruction string, pctx models.PromptContext, maxChars int) (string, error) {
	if len(pctx.Nodes) == 0 {
		return instruction, nil
	}

	serialized, err := SerializeFlowContext(pctx.Nodes, maxChars)
	if err != nil {
		return "", err
	}

	return render(userContextTmpl, userData{
		Instruction: instruction,
		NodeCount:   len(pctx.Nodes),
		Serialized:  serialized,
		CustomNodes: summarizeCustomNodes(pctx.CustomNodes),
	})
}

// BuildResyncPrompt renders the user prompt for single-node
// resynchronization.
func (c *Composer) BuildResyncPrompt(req models.ResyncRequest) (string, error) {
	config, err := marshalConfig(req.CurrentConfig)
	if err != nil {
		return "", err
	}

	return render(resyncUserTmpl, nodeData{
		NodeID:   req.NodeID,
		NodeType: req.NodeType,
		NodeName: req.NodeName,
		Info:     req.Info,
		Config:   config,
	})
}

// BuildDescribePrompt renders the user prompt for description generation.
func (c *Composer) BuildDescribePrompt(req models.DescribeRequest) (string, error) {
	config, err := marshalConfig(req.CurrentConfig)
	if err != nil {
		return "", err
	}

	return render(describeUserTmpl, nodeData{
		NodeID:   req.NodeID,
		NodeType: req.NodeType,
		NodeName: req.NodeName,
		Config:   config,
	})
}

// SerializeFlowContext serializes nodes to a JSON block bounded by maxChars.
// When the full serialization fits, it is returned as-is. Otherwise the
// first max(1, floor(n*maxChars/fullLen)) nodes are kept in order (earlier
// nodes are assumed most relevant) and the truncation notice is appended.
// The arithmetic is deliberately crude linear truncation, not size-aware
// minimization.
func SerializeFlowContext(nodes []*models.Node, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	full, err := json.Marshal(nodes)
	if err != nil {
		return "", fmt.Errorf("failed to serialize flow context: %w", err)
	}

	if len(full) <= maxChars {
		return string(full), nil
	}

	keep := int(float64(len(nodes)) * float64(maxChars) / float64(len(full)))
	if keep < 1 {
		keep = 1
	}

	kept, err := json.Marshal(nodes[:keep])
	if err != nil {
		return "", fmt.Errorf("failed to serialize truncated flow context: %w", err)
	}

	return string(kept) + fmt.Sprintf(truncationNotice, keep, len(nodes)), nil
}

func summarizeCustomNodes(summaries []models.CustomNodeSummary) string {
	if len(summaries) == 0 {
		return ""
	}

	var sb strings.Builder

	for _, summary := range summaries {
		sb.WriteString("- ")
		sb.WriteString(summary.Name)

		if summary.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(summary.Description)
		}

		if len(summary.Fields) > 0 {
			sb.WriteString(" (fields: ")
			sb.WriteString(strings.Join(summary.Fields, ", "))
			sb.WriteString(")")
		}

		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

func marshalConfig(config map[string]any) (string, error) {
	if len(config) == 0 {
		return "{}", nil
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize node configuration: %w", err)
	}

	return string(data), nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf strings.Builder

	err := tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", tmpl.Name(), err)
	}

	return buf.String(), nil
}
