// Package openai implements the OpenAI chat-completions connector.
package openai

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
const Name = "openai"

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-4o-mini"
)

// newTokenFieldFamilies lists the model-identifier prefixes that require
// the renamed completion-limit field.
var newTokenFieldFamilies = []string{"gpt-4.1", "gpt-4o", "gpt-5"}

// New builds the OpenAI connector.
func New(cfg models.ConnectorConfig, transport *connector.Transport, sink retry.StatusSink, logger *slog.Logger) *connector.Client {
	return connector.NewClient(Protocol{}, cfg, transport, sink, logger)
}

// Protocol is the OpenAI wire protocol: bearer-token chat completions with
// a JSON-object response format hint.
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
		"model": cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	AddTokens(cfg, cfg.Model, body)

	headers := map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
	}

	if cfg.Organization != "" {
		headers["OpenAI-Organization"] = cfg.Organization
	}

	return &connector.Exchange{
		Provider: Name,
		URL:      strings.TrimSuffix(cfg.BaseURL, "/") + "/v1/chat/completions",
		Headers:  headers,
		Body:     body,
	}, nil
}

func (Protocol) ExtractReply(body []byte) (*connector.Reply, error) {
	return ExtractChatReply(Name, body)
}

// AddTokens writes the completion-token limit using the field name the
// given model identifier requires: newer families renamed max_tokens to
// max_completion_tokens. Shared with the Azure connector, which hosts the
// same model families under deployment names.
func AddTokens(cfg models.ConnectorConfig, model string, body map[string]any) {
	limit := cfg.MaxCompletionTokens
	if limit == 0 {
		limit = cfg.MaxTokens
	}

	if limit == 0 {
		return
	}

	for _, family := range newTokenFieldFamilies {
		if strings.HasPrefix(model, family) {
			body["max_completion_tokens"] = limit

			return
		}
	}

	body["max_tokens"] = limit
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ExtractChatReply decodes a chat-completions response body. Shared with
// the Azure connector, whose response shape is identical.
func ExtractChatReply(provider string, body []byte) (*connector.Reply, error) {
	var decoded chatResponse

	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", provider, err)
	}

	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices in %s response", provider)
	}

	reply := &connector.Reply{
		Text:  decoded.Choices[0].Message.Content,
		Model: decoded.Model,
	}

	if decoded.Usage.TotalTokens > 0 {
		reply.Usage = &models.TokenUsage{
			Prompt:     decoded.Usage.PromptTokens,
			Completion: decoded.Usage.CompletionTokens,
			Total:      decoded.Usage.TotalTokens,
		}
	}

	return reply, nil
}
