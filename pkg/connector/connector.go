// Package connector defines the uniform AI-provider contract and the shared
// machinery behind it: HTTP transport with a typed error taxonomy, retry
// wiring, per-request configuration overrides and a provider registry.
// Provider packages contribute only their wire protocol; everything else is
// provider-agnostic.
package connector

import (
	"context"
	"fmt"
	"sort"

	"github.com/flowmuse/flowmuse/pkg/models"
)

// Connector is the capability contract every AI provider satisfies:
// configuration discovery, configuration validation, flow generation,
// single-node resynchronization and description generation. Generation
// methods never return Go errors; every failure folds into the result
// envelope so callers always receive a well-formed object.
type Connector interface {
	Name() string
	Config() models.ConnectorConfig
	ValidateConfig(cfg models.ConnectorConfig) models.ValidationResult
	GenerateFlow(ctx context.Context, instruction string, pctx models.PromptContext, override map[string]any) models.GenerationResult
	ResyncNode(ctx context.Context, req models.ResyncRequest, override map[string]any) models.GenerationResult
	GenerateDescription(ctx context.Context, req models.DescribeRequest, override map[string]any) models.GenerationResult
}

// Registry holds the configured connectors by provider name. Provider
// selection is a configuration-driven lookup; registering a broken
// connector is a wire-up bug and fails fast at boot, not per-request.
type Registry struct {
	connectors map[string]Connector
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// Register adds a connector under its own name. It panics on nil or
// unnamed connectors: both are contract violations that must surface at
// load time.
func (r *Registry) Register(c Connector) {
	if c == nil {
		panic("connector: Register called with nil connector")
	}

	if c.Name() == "" {
		panic("connector: Register called with unnamed connector")
	}

	r.connectors[c.Name()] = c
}

// Connector returns the connector registered for the provider name.
func (r *Registry) Connector(name string) (Connector, error) {
	c, ok := r.connectors[name]
	if !ok {
		return nil, fmt.Errorf("provider '%s' not registered", name)
	}

	return c, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
