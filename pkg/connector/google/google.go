// Package google implements the Google Gemini generateContent connector.
package google

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/flowmuse/flowmuse/pkg/connector"
	"github.com/flowmuse/flowmuse/pkg/models"
	"github.com/flowmuse/flowmuse/pkg/prompt"
	"github.com/flowmuse/flowmuse/pkg/retry"
)

// Name is the provider name used for registry lookups.
const Name = "google"

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.0-flash"
)

// New builds the Google connector.
func New(cfg models.ConnectorConfig, transport *connector.Transport, sink retry.StatusSink, logger *slog.Logger) *connector.Client {
	return connector.NewClient(Protocol{}, cfg, transport, sink, logger)
}

// Protocol is the Gemini wire protocol: contents/parts payloads with the
// API key passed as a query parameter.
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
	generationConfig := map[string]any{
		"responseMimeType": "application/json",
	}

	limit := cfg.MaxCompletionTokens
	if limit == 0 {
		limit = cfg.MaxTokens
	}

	if limit > 0 {
		generationConfig["maxOutputTokens"] = limit
	}

	body := map[string]any{
		"systemInstruction": map[string]any{
			"parts": []map[string]string{{"text": system}},
		},
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]string{{"text": user}},
			},
		},
		"generationConfig": generationConfig,
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimSuffix(cfg.BaseURL, "/"), cfg.Model, url.QueryEscape(cfg.APIKey))

	return &connector.Exchange{
		Provider: Name,
		URL:      endpoint,
		Body:     body,
	}, nil
}

type generateResponse struct {
	ModelVersion string `json:"modelVersion"`
	Candidates   []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		CitationMetadata struct {
			CitationSources []struct {
				URI string `json:"uri"`
			} `json:"citationSources"`
		} `json:"citationMetadata"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (Protocol) ExtractReply(body []byte) (*connector.Reply, error) {
	var decoded generateResponse

	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", Name, err)
	}

	if len(decoded.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in %s response", Name)
	}

	candidate := decoded.Candidates[0]

	var text strings.Builder

	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("no text content in %s response", Name)
	}

	reply := &connector.Reply{
		Text:  text.String(),
		Model: decoded.ModelVersion,
	}

	for _, source := range candidate.CitationMetadata.CitationSources {
		if source.URI != "" {
			reply.Citations = append(reply.Citations, source.URI)
		}
	}

	if decoded.UsageMetadata.TotalTokenCount > 0 {
		reply.Usage = &models.TokenUsage{
			Prompt:     decoded.UsageMetadata.PromptTokenCount,
			Completion: decoded.UsageMetadata.CandidatesTokenCount,
			Total:      decoded.UsageMetadata.TotalTokenCount,
		}
	}

	return reply, nil
}
