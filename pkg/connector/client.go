package connector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/flowmuse/flowmuse/pkg/models"
	"github.com/flowmuse/flowmuse/pkg/parser"
	"github.com/flowmuse/flowmuse/pkg/prompt"
	"github.com/flowmuse/flowmuse/pkg/retry"
)

// Protocol is the provider-specific slice of a connector: defaults,
// required-field validation, request shaping (including each provider's
// token-limit field naming) and reply extraction. This is the only place
// provider quirks are allowed to leak.
type Protocol interface {
	Name() string
	Defaults(cfg models.ConnectorConfig) models.ConnectorConfig
	Validate(cfg models.ConnectorConfig) models.ValidationResult
	BuildExchange(cfg models.ConnectorConfig, system, user string) (*Exchange, error)
	ExtractReply(body []byte) (*Reply, error)
}

// Reply is the provider-independent shape of a successful model exchange.
type Reply struct {
	Text      string
	Model     string
	Usage     *models.TokenUsage
	Citations []string
}

// Client implements Connector on top of a Protocol: it composes prompts,
// drives the retry controller around the transport, parses replies and
// folds every failure into the uniform result envelope.
type Client struct {
	proto     Protocol
	cfg       models.ConnectorConfig
	composer  *prompt.Composer
	transport *Transport
	retryCtrl *retry.Controller
	logger    *slog.Logger
}

// NewClient builds a connector from a protocol and its ambient
// configuration. A nil protocol panics: the registry must never hold a
// connector without wire behavior.
func NewClient(proto Protocol, cfg models.ConnectorConfig, transport *Transport, sink retry.StatusSink, logger *slog.Logger) *Client {
	if proto == nil {
		panic("connector: NewClient called with nil protocol")
	}

	return &Client{
		proto:     proto,
		cfg:       proto.Defaults(cfg),
		composer:  prompt.NewComposer(),
		transport: transport,
		retryCtrl: retry.NewController(sink),
		logger:    logger.With("module", "connector", "provider", proto.Name()),
	}
}

var _ Connector = (*Client)(nil)

// Name returns the provider name.
func (c *Client) Name() string {
	return c.proto.Name()
}

// Config returns the fully-populated ambient configuration: provider
// defaults applied, required fields left empty when unset.
func (c *Client) Config() models.ConnectorConfig {
	return c.cfg
}

// ValidateConfig reports every missing required field of the given
// configuration, without short-circuiting at the first.
func (c *Client) ValidateConfig(cfg models.ConnectorConfig) models.ValidationResult {
	return c.proto.Validate(cfg)
}

// GenerateFlow issues one provider call and returns a proposed flow.
func (c *Client) GenerateFlow(ctx context.Context, instruction string, pctx models.PromptContext, override map[string]any) models.GenerationResult {
	cfg, result := c.requestConfig(models.KindFlow, override)
	if result != nil {
		return *result
	}

	system, err := c.composer.BuildSystemPrompt(models.KindFlow, pctx)
	if err != nil {
		return models.Failed(models.KindFlow, err.Error())
	}

	user, err := c.composer.BuildUserPrompt(instruction, pctx, cfg.MaxContextChars)
	if err != nil {
		return models.Failed(models.KindFlow, err.Error())
	}

	c.logger.InfoContext(ctx, "Generating flow", "context_nodes", len(pctx.Nodes))

	reply, err := c.complete(ctx, cfg, "", system, user)
	if err != nil {
		return models.Failed(models.KindFlow, err.Error())
	}

	payload, err := parser.ParseFlow(reply.Text)
	if err != nil {
		return models.Failed(models.KindFlow, err.Error())
	}

	return models.GenerationResult{
		Success:  true,
		Kind:     models.KindFlow,
		Flow:     payload.Nodes,
		FlowName: payload.FlowName,
		Metadata: c.metadata(reply),
	}
}

// ResyncNode regenerates one node's configuration from its intent text.
func (c *Client) ResyncNode(ctx context.Context, req models.ResyncRequest, override map[string]any) models.GenerationResult {
	cfg, result := c.requestConfig(models.KindNode, override)
	if result != nil {
		return *result
	}

	system, err := c.composer.BuildSystemPrompt(models.KindNode, models.PromptContext{})
	if err != nil {
		return models.Failed(models.KindNode, err.Error())
	}

	user, err := c.composer.BuildResyncPrompt(req)
	if err != nil {
		return models.Failed(models.KindNode, err.Error())
	}

	c.logger.InfoContext(ctx, "Resyncing node", "node_id", req.NodeID, "node_type", req.NodeType)

	reply, err := c.complete(ctx, cfg, req.NodeID, system, user)
	if err != nil {
		return models.Failed(models.KindNode, err.Error())
	}

	node, err := parser.ParseNode(reply.Text)
	if err != nil {
		return models.Failed(models.KindNode, err.Error())
	}

	// The caller's identity wins over whatever the model returned.
	node.ID = req.NodeID
	if req.NodeType != "" {
		node.Type = req.NodeType
	}

	return models.GenerationResult{
		Success:     true,
		Kind:        models.KindNode,
		UpdatedNode: node,
		Metadata:    c.metadata(reply),
	}
}

// GenerateDescription synthesizes a short name and description from a
// node's functional configuration.
func (c *Client) GenerateDescription(ctx context.Context, req models.DescribeRequest, override map[string]any) models.GenerationResult {
	cfg, result := c.requestConfig(models.KindDescribe, override)
	if result != nil {
		return *result
	}

	system, err := c.composer.BuildSystemPrompt(models.KindDescribe, models.PromptContext{})
	if err != nil {
		return models.Failed(models.KindDescribe, err.Error())
	}

	user, err := c.composer.BuildDescribePrompt(req)
	if err != nil {
		return models.Failed(models.KindDescribe, err.Error())
	}

	c.logger.InfoContext(ctx, "Generating description", "node_id", req.NodeID, "node_type", req.NodeType)

	reply, err := c.complete(ctx, cfg, req.NodeID, system, user)
	if err != nil {
		return models.Failed(models.KindDescribe, err.Error())
	}

	payload, err := parser.ParseDescription(reply.Text)
	if err != nil {
		return models.Failed(models.KindDescribe, err.Error())
	}

	return models.GenerationResult{
		Success:     true,
		Kind:        models.KindDescribe,
		Name:        payload.Name,
		Description: payload.Description,
		Metadata:    c.metadata(reply),
	}
}

// requestConfig resolves the effective configuration for one request:
// ambient config, per-request override applied over it, then validation.
// A non-nil result is the folded failure to return as-is.
func (c *Client) requestConfig(kind models.GenerationKind, override map[string]any) (models.ConnectorConfig, *models.GenerationResult) {
	cfg, err := ApplyOverride(c.cfg, override)
	if err != nil {
		failed := models.Failed(kind, err.Error())

		return cfg, &failed
	}

	if validation := c.proto.Validate(cfg); !validation.Valid {
		failed := models.Failed(kind, c.proto.Name()+" connector not configured: missing "+strings.Join(validation.Errors, ", "))

		return cfg, &failed
	}

	return cfg, nil
}

// complete runs one prompt exchange under the retry controller. nodeID ties
// backoff waits to a node's status indicator; empty for flow generation.
func (c *Client) complete(ctx context.Context, cfg models.ConnectorConfig, nodeID, system, user string) (*Reply, error) {
	return retry.Do(ctx, c.retryCtrl, nodeID, func(ctx context.Context) (*Reply, error) {
		exchange, err := c.proto.BuildExchange(cfg, system, user)
		if err != nil {
			return nil, err
		}

		body, err := c.transport.Do(ctx, *exchange)
		if err != nil {
			return nil, err
		}

		return c.proto.ExtractReply(body)
	})
}

func (c *Client) metadata(reply *Reply) *models.GenerationMetadata {
	return &models.GenerationMetadata{
		Provider:  c.proto.Name(),
		Model:     reply.Model,
		Usage:     reply.Usage,
		Citations: reply.Citations,
	}
}

// ApplyOverride decodes a per-request configuration override over a copy of
// the base configuration. Fields absent from the override keep their base
// values; the base itself is never mutated.
func ApplyOverride(base models.ConnectorConfig, override map[string]any) (models.ConnectorConfig, error) {
	if len(override) == 0 {
		return base, nil
	}

	merged := base

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &merged,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return base, err
	}

	if err := decoder.Decode(override); err != nil {
		return base, fmt.Errorf("invalid config override: %w", err)
	}

	return merged, nil
}
