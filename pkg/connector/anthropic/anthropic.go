// Package anthropic implements the Anthropic messages connector.
package anthropic

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowmuse/flowmuse/pkg/connector"
	"github.com/flowmuse/flowmuse/pkg/models"
	"github.com/flowmuse/flowmuse/pkg/prompt"
	"github.com/flowmuse/flowmuse/pkg/retry"
)

// Name is the provider name used for registry lookups.
const Name = "anthropic"

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-sonnet-4-20250514"
	defaultVersion = "2023-06-01"

	// DefaultMaxTokens fills the required max_tokens field when no limit is
	// configured.
	DefaultMaxTokens = 4096
)

// New builds the Anthropic connector.
func New(cfg models.ConnectorConfig, transport *connector.Transport, sink retry.StatusSink, logger *slog.Logger) *connector.Client {
	return connector.NewClient(Protocol{}, cfg, transport, sink, logger)
}

// Protocol is the Anthropic wire protocol: a top-level system string plus a
// messages array, authenticated with x-api-key and a pinned API version.
type Protocol struct{}

func (Protocol) Name() string {
	return Name
}

func (Protocol) Defaults(cfg models.ConnectorConfig) models.ConnectorConfig {
	cfg.Provider = Name

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	if cfg.AnthropicVersion == "" {
		cfg.AnthropicVersion = defaultVersion
	}

	if cfg.MaxContextChars == 0 {
		cfg.MaxContextChars = prompt.DefaultMaxContextChars
	}

	return cfg
}

func (Protocol) Validate(cfg models.ConnectorConfig) models.ValidationResult {
	var missing []string

	if cfg.APIKey == "" {
		missing = append(missing, "apiKey")
	}

	if len(missing) > 0 {
		return models.Invalid(missing...)
	}

	return models.ValidConfig()
}

func (Protocol) BuildExchange(cfg models.ConnectorConfig, system, user string) (*connector.Exchange, error) {
	body := map[string]any{
		"model":  cfg.Model,
		"system": system,
		"messages": []map[string]string{
			{"role": "user", "content": user},
		},
		// max_tokens is mandatory here; fall back through the configured
		// limits to the package default.
		"max_tokens": maxTokens(cfg),
	}

	return &connector.Exchange{
		Provider: Name,
		URL:      strings.TrimSuffix(cfg.BaseURL, "/") + "/v1/messages",
		Headers: map[string]string{
			"x-api-key":         cfg.APIKey,
			"anthropic-version": cfg.AnthropicVersion,
		},
		Body: body,
	}, nil
}

func maxTokens(cfg models.ConnectorConfig) int {
	if cfg.MaxCompletionTokens > 0 {
		return cfg.MaxCompletionTokens
	}

	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens
	}

	return DefaultMaxTokens
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (Protocol) ExtractReply(body []byte) (*connector.Reply, error) {
	var decoded messagesResponse

	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", Name, err)
	}

	var text strings.Builder

	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("no text content in %s response", Name)
	}

	reply := &connector.Reply{
		Text:  text.String(),
		Model: decoded.Model,
	}

	if total := decoded.Usage.InputTokens + decoded.Usage.OutputTokens; total > 0 {
		reply.Usage = &models.TokenUsage{
			Prompt:     decoded.Usage.InputTokens,
			Completion: decoded.Usage.OutputTokens,
			Total:      total,
		}
	}

	return reply, nil
}
