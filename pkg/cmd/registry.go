// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"log/slog"

	"github.com/flowmuse/flowmuse/pkg/connector"
	"github.com/flowmuse/flowmuse/pkg/connector/anthropic"
	"github.com/flowmuse/flowmuse/pkg/connector/azure"
	"github.com/flowmuse/flowmuse/pkg/connector/google"
	"github.com/flowmuse/flowmuse/pkg/connector/openai"
	"github.com/flowmuse/flowmuse/pkg/models"
	"github.com/flowmuse/flowmuse/pkg/retry"
	"github.com/flowmuse/flowmuse/pkg/settings"
)

// NewConnectorRegistry builds the provider registry with every supported
// connector registered. Credentials come from the resolved settings;
// connectors with missing credentials still register and report their
// gaps through validation.
func NewConnectorRegistry(s *settings.Settings, sink retry.StatusSink, logger *slog.Logger) *connector.Registry {
	transport := connector.NewTransport(logger)
	registry := connector.NewRegistry()

	registry.Register(openai.New(mustConnectorConfig(s, settings.ProviderOpenAI), transport, sink, logger))
	registry.Register(azure.New(mustConnectorConfig(s, settings.ProviderAzure), transport, sink, logger))
	registry.Register(anthropic.New(mustConnectorConfig(s, settings.ProviderAnthropic), transport, sink, logger))
	registry.Register(google.New(mustConnectorConfig(s, settings.ProviderGoogle), transport, sink, logger))

	return registry
}

func mustConnectorConfig(s *settings.Settings, provider string) models.ConnectorConfig {
	cfg, err := s.ConnectorConfig(provider)
	if err != nil {
		panic(err)
	}

	return cfg
}
