package openai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmuse/flowmuse/pkg/connector"
	"github.com/flowmuse/flowmuse/pkg/models"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	proto := Protocol{}

	result := proto.Validate(models.ConnectorConfig{})
	require.False(t, result.Valid)
	assert.Equal(t, []string{"apiKey"}, result.Errors)

	result = proto.Validate(models.ConnectorConfig{APIKey: "sk-test"})
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := Protocol{}.Defaults(models.ConnectorConfig{APIKey: "sk-test"})

	assert.Equal(t, Name, cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, "https://api.openai.com", cfg.BaseURL)
	assert.Positive(t, cfg.MaxContextChars)
}

func TestAddTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		model     string
		cfg       models.ConnectorConfig
		wantField string
		wantNone  bool
	}{
		{
			name:      "gpt-4.1 uses new field",
			model:     "gpt-4.1-mini",
			cfg:       models.ConnectorConfig{MaxCompletionTokens: 1024},
			wantField: "max_completion_tokens",
		},
		{
			name:      "gpt-4o uses new field",
			model:     "gpt-4o",
			cfg:       models.ConnectorConfig{MaxCompletionTokens: 1024},
			wantField: "max_completion_tokens",
		},
		{
			name:      "gpt-5 uses new field",
			model:     "gpt-5-nano",
			cfg:       models.ConnectorConfig{MaxCompletionTokens: 1024},
			wantField: "max_completion_tokens",
		},
		{
			name:      "legacy model uses legacy field",
			model:     "gpt-3.5-turbo",
			cfg:       models.ConnectorConfig{MaxCompletionTokens: 1024},
			wantField: "max_tokens",
		},
		{
			name:      "token limit used when completion limit absent",
			model:     "gpt-3.5-turbo",
			cfg:       models.ConnectorConfig{MaxTokens: 512},
			wantField: "max_tokens",
		},
		{
			name:     "no limit writes nothing",
			model:    "gpt-4o",
			cfg:      models.ConnectorConfig{},
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			body := map[string]any{}
			AddTokens(tt.cfg, tt.model, body)

			if tt.wantNone {
				assert.Empty(t, body)

				return
			}

			require.Contains(t, body, tt.wantField)
			assert.Len(t, body, 1, "exactly one token field is written")
		})
	}
}

func TestBuildExchange(t *testing.T) {
	t.Parallel()

	cfg := Protocol{}.Defaults(models.ConnectorConfig{
		APIKey:       "sk-test",
		Organization: "org-42",
		Model:        "gpt-4o",
	})

	exchange, err := Protocol{}.BuildExchange(cfg, "system text", "user text")
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com/v1/chat/completions", exchange.URL)
	assert.Equal(t, "Bearer sk-test", exchange.Headers["Authorization"])
	assert.Equal(t, "org-42", exchange.Headers["OpenAI-Organization"])

	body, ok := exchange.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, map[string]string{"type": "json_object"}, body["response_format"])

	messages, ok := body["messages"].([]map[string]string)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0]["role"])
	assert.Equal(t, "user text", messages[1]["content"])
}

func TestGenerateFlowOverWire(t *testing.T) {
	t.Parallel()

	var captured map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		payload, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(payload, &captured))

		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-2024-08-06",
			"choices": [{"message": {"content": "{\"flow\":[{\"id\":\"n1\",\"type\":\"debug\"}],\"flowName\":\"Hello Logger\"}"}}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 10, "total_tokens": 52}
		}`))
	}))
	defer server.Close()

	client := New(models.ConnectorConfig{
		APIKey:  "sk-test",
		Model:   "gpt-4o",
		BaseURL: server.URL,
	}, connector.NewTransport(slog.Default()), nil, slog.Default())

	result := client.GenerateFlow(context.Background(), "create a flow that logs hello", models.PromptContext{}, nil)

	require.True(t, result.Success, result.Error)
	require.Len(t, result.Flow, 1)
	assert.Equal(t, "n1", result.Flow[0].ID)
	assert.Equal(t, "Hello Logger", result.FlowName)

	require.NotNil(t, result.Metadata)
	assert.Equal(t, "gpt-4o-2024-08-06", result.Metadata.Model)
	require.NotNil(t, result.Metadata.Usage)
	assert.Equal(t, 52, result.Metadata.Usage.Total)

	require.NotNil(t, captured)
	assert.Equal(t, "json_object", captured["response_format"].(map[string]any)["type"])
}
