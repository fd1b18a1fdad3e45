package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantLen   int
		wantName  string
		wantFirst string
	}{
		{
			name:      "plain json object",
			raw:       `{"flow":[{"id":"n1","type":"debug"}],"flowName":"Hello Logger"}`,
			wantLen:   1,
			wantName:  "Hello Logger",
			wantFirst: "n1",
		},
		{
			name: "fenced with json tag",
			raw: "```json\n" +
				`{"flow":[{"id":"n1","type":"debug"}],"flowName":"Hello Logger"}` +
				"\n```",
			wantLen:   1,
			wantName:  "Hello Logger",
			wantFirst: "n1",
		},
		{
			name: "fenced without tag",
			raw: "```\n" +
				`{"flow":[{"id":"n1","type":"debug"}]}` +
				"\n```",
			wantLen:   1,
			wantFirst: "n1",
		},
		{
			name:    "missing flow member defaults to empty",
			raw:     `{"flowName":"Empty"}`,
			wantLen: 0,
			wantName: "Empty",
		},
		{
			name:    "non-object reply yields empty proposal",
			raw:     `[1,2,3]`,
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payload, err := ParseFlow(tt.raw)
			require.NoError(t, err)
			require.Len(t, payload.Nodes, tt.wantLen)
			assert.Equal(t, tt.wantName, payload.FlowName)

			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, payload.Nodes[0].ID)
			}
		})
	}
}

func TestParseFlowFencedEqualsUnfenced(t *testing.T) {
	t.Parallel()

	body := `{"flow":[{"id":"n1","type":"function","func":"return msg;","wires":[["n2"]]},` +
		`{"id":"n2","type":"debug"}],"flowName":"Doubler"}`

	plain, err := ParseFlow(body)
	require.NoError(t, err)

	fenced, err := ParseFlow("```json\n" + body + "\n```")
	require.NoError(t, err)

	assert.Equal(t, plain, fenced)
}

func TestParseFlowErrors(t *testing.T) {
	t.Parallel()

	t.Run("garbage yields bounded parse error", func(t *testing.T) {
		t.Parallel()

		garbage := "I could not generate a flow because " + strings.Repeat("x", 400)

		_, err := ParseFlow(garbage)

		var parseErr *ParseError

		require.ErrorAs(t, err, &parseErr)
		assert.LessOrEqual(t, len(parseErr.Preview), PreviewLimit)
		assert.True(t, strings.HasPrefix(garbage, parseErr.Preview))
		assert.Contains(t, err.Error(), parseErr.Preview)
	})

	t.Run("node missing id is a semantic violation", func(t *testing.T) {
		t.Parallel()

		_, err := ParseFlow(`{"flow":[{"type":"debug"}]}`)

		var semanticErr *SemanticError

		require.ErrorAs(t, err, &semanticErr)
		assert.Contains(t, semanticErr.Message, "index 0")
	})
}

func TestParseNode(t *testing.T) {
	t.Parallel()

	t.Run("whole object is the node", func(t *testing.T) {
		t.Parallel()

		node, err := ParseNode(`{"id":"n7","type":"http request","method":"GET","url":"https://example.com"}`)
		require.NoError(t, err)
		assert.Equal(t, "n7", node.ID)
		assert.Equal(t, "http request", node.Type)
		assert.Equal(t, "GET", node.Extra["method"])
	})

	t.Run("missing type rejected", func(t *testing.T) {
		t.Parallel()

		_, err := ParseNode(`{"id":"n7"}`)

		var semanticErr *SemanticError

		require.ErrorAs(t, err, &semanticErr)
	})
}

func TestParseDescription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "complete", raw: `{"name":"Doubler","description":"Doubles the payload."}`},
		{name: "missing description", raw: `{"name":"Doubler"}`, wantErr: true},
		{name: "blank name", raw: `{"name":"   ","description":"x"}`, wantErr: true},
		{name: "non-object", raw: `"just text"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payload, err := ParseDescription(tt.raw)

			if tt.wantErr {
				var semanticErr *SemanticError

				require.ErrorAs(t, err, &semanticErr)
				assert.Equal(t, "missing name or description", semanticErr.Message)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "Doubler", payload.Name)
			assert.NotEmpty(t, payload.Description)
		})
	}
}

func TestStripFence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no fence", in: `{"a":1}`, want: `{"a":1}`},
		{name: "json tag", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "uppercase tag", in: "```JSON\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "unterminated fence untouched", in: "```json\n{\"a\":1}", want: "```json\n{\"a\":1}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, stripFence(tt.in))
		})
	}
}
