package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmuse/flowmuse/pkg/models"
)

func contextNodes(count int) []*models.Node {
	nodes := make([]*models.Node, 0, count)

	for i := range count {
		nodes = append(nodes, &models.Node{
			ID:   fmt.Sprintf("n%d", i+1),
			Type: "function",
			Name: fmt.Sprintf("step %d", i+1),
			Extra: map[string]any{
				"func": "return msg;",
			},
		})
	}

	return nodes
}

func TestSerializeFlowContext(t *testing.T) {
	t.Parallel()

	t.Run("under budget returns plain serialization", func(t *testing.T) {
		t.Parallel()

		nodes := contextNodes(3)

		out, err := SerializeFlowContext(nodes, 100000)
		require.NoError(t, err)

		expected, err := json.Marshal(nodes)
		require.NoError(t, err)

		assert.Equal(t, string(expected), out)
		assert.NotContains(t, out, "Flow truncated")
	})

	t.Run("over budget keeps proportional prefix", func(t *testing.T) {
		t.Parallel()

		nodes := contextNodes(10)

		full, err := json.Marshal(nodes)
		require.NoError(t, err)

		budget := len(full) / 2

		out, err := SerializeFlowContext(nodes, budget)
		require.NoError(t, err)
		assert.Contains(t, out, "Flow truncated")

		wantKeep := int(float64(len(nodes)) * float64(budget) / float64(len(full)))
		if wantKeep < 1 {
			wantKeep = 1
		}

		assert.Contains(t, out, fmt.Sprintf("showing %d of %d nodes", wantKeep, len(nodes)))

		var kept []*models.Node

		jsonPart := out[:strings.Index(out, "\n\n[Flow truncated")]
		require.NoError(t, json.Unmarshal([]byte(jsonPart), &kept))
		require.Len(t, kept, wantKeep)
		assert.Equal(t, "n1", kept[0].ID, "earliest nodes are kept")
	})

	t.Run("tiny budget still keeps one node", func(t *testing.T) {
		t.Parallel()

		out, err := SerializeFlowContext(contextNodes(5), 10)
		require.NoError(t, err)
		assert.Contains(t, out, "showing 1 of 5 nodes")
	})
}

func TestBuildUserPrompt(t *testing.T) {
	t.Parallel()

	composer := NewComposer()

	t.Run("bare prompt without context", func(t *testing.T) {
		t.Parallel()

		out, err := composer.BuildUserPrompt("create a flow that logs hello", models.PromptContext{}, 0)
		require.NoError(t, err)
		assert.Equal(t, "create a flow that logs hello", out)
	})

	t.Run("with-context prompt interpolates count, nodes and custom summary", func(t *testing.T) {
		t.Parallel()

		pctx := models.PromptContext{
			Nodes: contextNodes(2),
			CustomNodes: []models.CustomNodeSummary{
				{Name: "weather", Description: "fetches a forecast", Fields: []string{"city", "units"}},
			},
		}

		out, err := composer.BuildUserPrompt("add error handling", pctx, 0)
		require.NoError(t, err)
		assert.Contains(t, out, "add error handling")
		assert.Contains(t, out, "contains 2 node(s)")
		assert.Contains(t, out, `"id":"n1"`)
		assert.Contains(t, out, "- weather: fetches a forecast (fields: city, units)")
	})
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Parallel()

	composer := NewComposer()

	tests := []struct {
		name     string
		kind     models.GenerationKind
		contains []string
	}{
		{
			name:     "flow kind",
			kind:     models.KindFlow,
			contains: []string{`"flow"`, `"flowName"`, `"wires"`},
		},
		{
			name:     "node kind",
			kind:     models.KindNode,
			contains: []string{"updated node", `"wires"`},
		},
		{
			name:     "describe kind",
			kind:     models.KindDescribe,
			contains: []string{`"name"`, `"description"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := composer.BuildSystemPrompt(tt.kind, models.PromptContext{})
			require.NoError(t, err)

			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestBuildResyncPrompt(t *testing.T) {
	t.Parallel()

	composer := NewComposer()

	out, err := composer.BuildResyncPrompt(models.ResyncRequest{
		NodeID:   "n7",
		NodeType: "http request",
		NodeName: "fetch users",
		Info:     "GET the user list and keep only active users",
		CurrentConfig: map[string]any{
			"method": "GET",
			"url":    "https://api.example.com/users",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out, `node "n7"`)
	assert.Contains(t, out, `type "http request"`)
	assert.Contains(t, out, `name "fetch users"`)
	assert.Contains(t, out, "keep only active users")
	assert.Contains(t, out, `"url": "https://api.example.com/users"`)
}

func TestBuildDescribePrompt(t *testing.T) {
	t.Parallel()

	composer := NewComposer()

	out, err := composer.BuildDescribePrompt(models.DescribeRequest{
		NodeID:        "n3",
		NodeType:      "function",
		CurrentConfig: map[string]any{"func": "return msg.payload * 2;"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, `node "n3"`)
	assert.Contains(t, out, "return msg.payload * 2;")
	assert.NotContains(t, out, `name ""`, "empty node name is omitted")
}
