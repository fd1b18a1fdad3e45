// Package azure implements the Azure-hosted OpenAI connector. The body
// shape matches OpenAI chat completions; endpoint addressing and
// authentication differ.
package azure

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowmuse/flowmuse/pkg/connector"
	"github.com/flowmuse/flowmuse/pkg/connector/openai"
	"github.com/flowmuse/flowmuse/pkg/models"
	"github.com/flowmuse/flowmuse/pkg/prompt"
	"github.com/flowmuse/flowmuse/pkg/retry"
)

// Name is the provider name used for registry lookups.
const Name = "azure"

const defaultAPIVersion = "2024-10-21"

// New builds the Azure OpenAI connector.
func New(cfg models.ConnectorConfig, transport *connector.Transport, sink retry.StatusSink, logger *slog.Logger) *connector.Client {
	return connector.NewClient(Protocol{}, cfg, transport, sink, logger)
}

// Protocol is the Azure OpenAI wire protocol: deployment-addressed chat
// completions authenticated with an api-key header.
type Protocol struct{}

func (Protocol) Name() string {
	return Name
}

func (Protocol) Defaults(cfg models.ConnectorConfig) models.ConnectorConfig {
	cfg.Provider = Name

	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
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

	if cfg.Endpoint == "" {
		missing = append(missing, "endpoint")
	}

	if cfg.Deployment == "" {
		missing = append(missing, "deployment")
	}

	if len(missing) > 0 {
		return models.Invalid(missing...)
	}

	return models.ValidConfig()
}

func (Protocol) BuildExchange(cfg models.ConnectorConfig, system, user string) (*connector.Exchange, error) {
	body := map[string]any{
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	// Deployments name the hosted model; fall back to it for family
	// detection when no explicit model id is configured.
	model := cfg.Model
	if model == "" {
		model = cfg.Deployment
	}

	openai.AddTokens(cfg, model, body)

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Deployment, cfg.APIVersion)

	return &connector.Exchange{
		Provider: Name,
		URL:      url,
		Headers:  map[string]string{"api-key": cfg.APIKey},
		Body:     body,
	}, nil
}

func (Protocol) ExtractReply(body []byte) (*connector.Reply, error) {
	return openai.ExtractChatReply(Name, body)
}
