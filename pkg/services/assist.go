package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/flowmuse/flowmuse/pkg/catalog"
	"github.com/flowmuse/flowmuse/pkg/connector"
	"github.com/flowmuse/flowmuse/pkg/eventbus"
	"github.com/flowmuse/flowmuse/pkg/events"
	"github.com/flowmuse/flowmuse/pkg/graph"
	"github.com/flowmuse/flowmuse/pkg/merge"
	"github.com/flowmuse/flowmuse/pkg/models"
	"github.com/flowmuse/flowmuse/pkg/otelhelper"
	"github.com/flowmuse/flowmuse/pkg/tracker"
)

// BuildFlowRequest carries one build-flow instruction. Nodes and
// CustomNodes are the editor's own view of its active tab; both are
// optional and fall back to server-side state.
type BuildFlowRequest struct {
	Prompt      string
	Nodes       []*models.Node
	CustomNodes []models.CustomNodeSummary
	Override    map[string]any
}

// Assist orchestrates the generation operations: it resolves the
// configured connector, assembles prompt context, routes proposals
// through the merge engine and keeps sync state and events in step.
type Assist struct {
	registry *connector.Registry
	provider string
	store    *graph.Store
	engine   *merge.Engine
	tracker  *tracker.Tracker
	catalog  *catalog.Service
	snapshot *graph.SnapshotFile
	events   eventbus.EventPublisher
	tracer   trace.Tracer
	logger   *slog.Logger

	mu       sync.Mutex
	tabGates map[string]*sync.Mutex
	describe singleflight.Group
}

// NewAssist creates the assist service. Catalog, snapshot, event publisher
// and tracer are optional; registry, store and tracker are not. A nil tracer
// falls back to the global provider.
func NewAssist(
	registry *connector.Registry,
	provider string,
	store *graph.Store,
	syncTracker *tracker.Tracker,
	catalogService *catalog.Service,
	snapshot *graph.SnapshotFile,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Assist {
	if tracer == nil {
		tracer = otel.Tracer("flowmuse/assist")
	}

	return &Assist{
		registry: registry,
		provider: provider,
		store:    store,
		engine:   merge.NewEngine(store, logger),
		tracker:  syncTracker,
		catalog:  catalogService,
		snapshot: snapshot,
		events:   publisher,
		tracer:   tracer,
		logger:   logger.With("module", "assist"),
		tabGates: make(map[string]*sync.Mutex),
	}
}

// Provider returns the configured provider name.
func (a *Assist) Provider() string {
	return a.provider
}

// HealthCheck reports whether the assist pipeline is usable: the
// configured provider must resolve and validate.
func (a *Assist) HealthCheck(ctx context.Context) (string, bool) {
	if _, err := a.activeConnector(); err != nil {
		return "AI provider is not usable: " + err.Error(), false
	}

	tabs, nodes := a.store.Stats()

	return fmt.Sprintf("provider '%s' configured, graph holds %d tabs and %d nodes", a.provider, tabs, nodes), true
}

// BuildFlow turns a natural-language instruction into graph changes:
// a brand-new tab for creation instructions, a reconciling merge into the
// instruction's tab otherwise. The returned result always carries the
// final node list of the affected tab.
func (a *Assist) BuildFlow(ctx context.Context, req BuildFlowRequest) (models.GenerationResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return models.GenerationResult{}, NewValidationError("BuildFlow", "PROMPT_REQUIRED", "prompt is required", ErrPromptRequired)
	}

	conn, err := a.activeConnector()
	if err != nil {
		return models.GenerationResult{}, err
	}

	targetTab := a.targetTab(req.Nodes)
	intent := merge.Classify(req.Prompt)
	pctx := a.promptContext(ctx, targetTab, req)

	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "assist build_flow",
		attribute.String(otelhelper.ProviderKey, conn.Name()),
		attribute.String(otelhelper.TabIDKey, targetTab),
	)
	defer span.End()

	result := conn.GenerateFlow(ctx, req.Prompt, pctx, req.Override)
	if !result.Success {
		a.logger.WarnContext(ctx, "Flow generation failed", "provider", conn.Name(), "error", result.Error)
		otelhelper.SetError(span, errors.New(result.Error))

		return result, nil
	}

	span.SetAttributes(attribute.String(otelhelper.ModelKey, resultModel(result)))

	if intent == merge.IntentCreate || targetTab == "" {
		result, err = a.createFlow(ctx, conn.Name(), result)
	} else {
		result, err = a.mergeFlow(ctx, conn.Name(), targetTab, result)
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return models.GenerationResult{}, err
	}

	span.AddEvent("flow_applied", trace.WithAttributes())

	return result, nil
}

// ResyncNode regenerates one node's configuration from its intent text
// and applies the result. Concurrent resyncs of the same node queue
// behind each other on the tracker's per-node gate.
func (a *Assist) ResyncNode(ctx context.Context, req models.ResyncRequest, override map[string]any) (models.GenerationResult, error) {
	if strings.TrimSpace(req.NodeID) == "" {
		return models.GenerationResult{}, NewValidationError("ResyncNode", "NODE_ID_REQUIRED", "nodeId is required", ErrNodeIDRequired)
	}

	if strings.TrimSpace(req.Info) == "" {
		return models.GenerationResult{}, NewValidationError("ResyncNode", "INFO_REQUIRED", "info is required", ErrInfoRequired)
	}

	conn, err := a.activeConnector()
	if err != nil {
		return models.GenerationResult{}, err
	}

	if err := a.tracker.Begin(ctx, req.NodeID); err != nil {
		return models.GenerationResult{}, err
	}

	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "assist resync_node",
		attribute.String(otelhelper.ProviderKey, conn.Name()),
		attribute.String(otelhelper.NodeIDKey, req.NodeID),
		attribute.String(otelhelper.NodeTypeKey, req.NodeType),
	)
	defer span.End()

	started := time.Now()

	a.publish(ctx, req.NodeID, events.NodeSyncStarted{
		BaseEvent: events.NewBaseEvent(events.NodeSyncStartedEvent),
		NodeID:    req.NodeID,
		NodeType:  req.NodeType,
		Provider:  conn.Name(),
	})

	result := conn.ResyncNode(ctx, req, override)
	if !result.Success || result.UpdatedNode == nil {
		a.tracker.Fail(req.NodeID)
		a.publish(ctx, req.NodeID, events.NodeSyncFailed{
			BaseEvent:  events.NewBaseEvent(events.NodeSyncFailedEvent),
			NodeID:     req.NodeID,
			Error:      result.Error,
			DurationMs: time.Since(started).Milliseconds(),
		})
		a.logger.WarnContext(ctx, "Node resync failed", "node_id", req.NodeID, "error", result.Error)
		otelhelper.SetError(span, errors.New(result.Error))

		return result, nil
	}

	updated := result.UpdatedNode

	// The request's intent text is the source of truth for info; a model
	// reply never overrides it. Writing it through keeps the stored
	// document in step with the baseline recorded below.
	updated.Info = req.Info

	// Nodes the graph holds are updated in place; nodes the editor has not
	// deployed yet only travel back in the result.
	if _, ok := a.store.Node(req.NodeID); ok {
		if err := a.engine.ApplyNodeUpdate(updated); err != nil {
			a.tracker.Fail(req.NodeID)
			otelhelper.SetError(span, err)

			return models.GenerationResult{}, fmt.Errorf("failed to apply resynced node: %w", err)
		}

		if refreshed, ok := a.store.Node(req.NodeID); ok {
			result.UpdatedNode = refreshed
			updated = refreshed
		}

		a.saveSnapshot(ctx)
	}

	a.tracker.Complete(req.NodeID, req.Info, updated.Fingerprint())
	a.publish(ctx, req.NodeID, events.NodeSyncCompleted{
		BaseEvent:  events.NewBaseEvent(events.NodeSyncCompletedEvent),
		NodeID:     req.NodeID,
		DurationMs: time.Since(started).Milliseconds(),
	})

	span.AddEvent("node_resynced", trace.WithAttributes())
	a.logger.InfoContext(ctx, "Node resynced", "node_id", req.NodeID, "duration_ms", time.Since(started).Milliseconds())

	return result, nil
}

// GenerateDescription synthesizes a display name and description for a
// node. Identical concurrent requests share one provider call; later
// callers join the first call's flight, its context included.
func (a *Assist) GenerateDescription(ctx context.Context, req models.DescribeRequest, override map[string]any) (models.GenerationResult, error) {
	if strings.TrimSpace(req.NodeID) == "" {
		return models.GenerationResult{}, NewValidationError("GenerateDescription", "NODE_ID_REQUIRED", "nodeId is required", ErrNodeIDRequired)
	}

	if len(req.CurrentConfig) == 0 {
		return models.GenerationResult{}, NewValidationError("GenerateDescription", "CONFIG_REQUIRED", "currentConfig is required", ErrConfigRequired)
	}

	conn, err := a.activeConnector()
	if err != nil {
		return models.GenerationResult{}, err
	}

	key, err := describeKey(req, override)
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("failed to build coalescing key: %w", err)
	}

	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "assist generate_description",
		attribute.String(otelhelper.ProviderKey, conn.Name()),
		attribute.String(otelhelper.NodeIDKey, req.NodeID),
	)
	defer span.End()

	shared, err, _ := a.describe.Do(key, func() (any, error) {
		return conn.GenerateDescription(ctx, req, override), nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return models.GenerationResult{}, err
	}

	result := shared.(models.GenerationResult)
	if !result.Success {
		otelhelper.SetError(span, errors.New(result.Error))
	}

	return result, nil
}

// Drift reports how far a node's current state is from its last
// synchronized baseline.
func (a *Assist) Drift(nodeID string) (tracker.Drift, error) {
	node, ok := a.store.Node(nodeID)
	if !ok {
		return tracker.DriftNone, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	return a.tracker.Drift(node), nil
}

// activeConnector resolves and validates the configured provider.
func (a *Assist) activeConnector() (connector.Connector, error) {
	conn, err := a.registry.Connector(a.provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, a.provider)
	}

	if validation := conn.ValidateConfig(conn.Config()); !validation.Valid {
		return nil, fmt.Errorf("%w: %s missing %s", ErrProviderNotConfigured, a.provider, strings.Join(validation.Errors, ", "))
	}

	return conn, nil
}

// targetTab resolves the merge target from the editor-supplied context:
// the owning tab of the first context entry the graph actually holds.
func (a *Assist) targetTab(nodes []*models.Node) string {
	for _, node := range nodes {
		if node == nil {
			continue
		}

		tabID := node.Z
		if tabID == "" && node.IsContainer() {
			tabID = node.ID
		}

		if tabID == "" {
			continue
		}

		if _, ok := a.store.Tab(tabID); ok {
			return tabID
		}
	}

	return ""
}

// promptContext assembles the provider's context: the editor's own view
// when supplied, otherwise the target tab's current nodes plus catalog
// summaries.
func (a *Assist) promptContext(ctx context.Context, tabID string, req BuildFlowRequest) models.PromptContext {
	pctx := models.PromptContext{CustomNodes: req.CustomNodes}

	for _, node := range req.Nodes {
		if node == nil || node.IsContainer() {
			continue
		}

		pctx.Nodes = append(pctx.Nodes, node)
	}

	if pctx.Nodes == nil && tabID != "" {
		pctx.Nodes = a.store.NodesInTab(tabID, false)
	}

	if pctx.CustomNodes == nil && a.catalog != nil {
		summaries, err := a.catalog.Summaries(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "Could not load custom node summaries", "error", err)
		} else {
			pctx.CustomNodes = summaries
		}
	}

	return pctx
}

func (a *Assist) createFlow(ctx context.Context, providerName string, result models.GenerationResult) (models.GenerationResult, error) {
	tab, err := a.engine.CreateFlow(result.FlowName, result.Flow)
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("failed to import generated flow: %w", err)
	}

	flow := a.store.NodesInTab(tab.ID, false)
	result.Flow = flow

	if result.FlowName == "" {
		result.FlowName = tab.Label
	}

	a.publish(ctx, tab.ID, events.TabCreated{
		BaseEvent: events.NewBaseEvent(events.TabCreatedEvent),
		TabID:     tab.ID,
		Label:     tab.Label,
		Nodes:     len(flow),
	})
	a.publish(ctx, tab.ID, events.FlowGenerated{
		BaseEvent: events.NewBaseEvent(events.FlowGeneratedEvent),
		TabID:     tab.ID,
		FlowName:  tab.Label,
		Provider:  providerName,
		Model:     resultModel(result),
		Added:     len(flow),
	})

	a.saveSnapshot(ctx)

	a.logger.InfoContext(ctx, "Created flow", "tab_id", tab.ID, "label", tab.Label, "nodes", len(flow))

	return result, nil
}

func (a *Assist) mergeFlow(ctx context.Context, providerName, tabID string, result models.GenerationResult) (models.GenerationResult, error) {
	gate := a.tabGate(tabID)
	gate.Lock()
	defer gate.Unlock()

	plan, err := a.engine.Plan(tabID, result.Flow)
	if err != nil {
		return models.GenerationResult{}, fmt.Errorf("failed to plan merge: %w", err)
	}

	if err := a.engine.Apply(plan); err != nil {
		return models.GenerationResult{}, fmt.Errorf("failed to apply merge: %w", err)
	}

	for _, nodeID := range plan.Removed {
		a.tracker.Drop(nodeID)
		a.publish(ctx, nodeID, events.NodeRemoved{
			BaseEvent: events.NewBaseEvent(events.NodeRemovedEvent),
			NodeID:    nodeID,
			TabID:     tabID,
		})
	}

	a.publish(ctx, tabID, events.FlowGenerated{
		BaseEvent: events.NewBaseEvent(events.FlowGeneratedEvent),
		TabID:     tabID,
		FlowName:  result.FlowName,
		Provider:  providerName,
		Model:     resultModel(result),
		Added:     len(plan.Added),
		Updated:   len(plan.Updated),
		Removed:   len(plan.Removed),
	})

	a.saveSnapshot(ctx)

	result.Flow = a.store.NodesInTab(tabID, false)

	return result, nil
}

// tabGate returns the per-tab merge mutex. Provider calls run
// concurrently; only the reconciliation of one tab is serialized.
func (a *Assist) tabGate(tabID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	gate, ok := a.tabGates[tabID]
	if !ok {
		gate = &sync.Mutex{}
		a.tabGates[tabID] = gate
	}

	return gate
}

// publish is best-effort: delivery problems log and never fail the
// operation that raised the event.
func (a *Assist) publish(ctx context.Context, key string, event eventbus.Event) {
	if a.events == nil {
		return
	}

	if err := a.events.Publish(ctx, key, event); err != nil {
		a.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// saveSnapshot persists the document after a mutation. Best-effort: the
// in-memory graph already changed and the editor holds the result.
func (a *Assist) saveSnapshot(ctx context.Context) {
	if a.snapshot == nil {
		return
	}

	if err := a.snapshot.Save(ctx, a.store.Snapshot()); err != nil {
		a.logger.ErrorContext(ctx, "Failed to save graph snapshot", "error", err)
	}
}

// describeKey derives the coalescing key for a description request from
// its full payload. encoding/json sorts map keys, so equal configurations
// hash equally.
func describeKey(req models.DescribeRequest, override map[string]any) (string, error) {
	payload, err := json.Marshal(struct {
		Req      models.DescribeRequest `json:"req"`
		Override map[string]any         `json:"override,omitempty"`
	}{req, override})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(payload)

	return req.NodeID + ":" + hex.EncodeToString(sum[:]), nil
}

func resultModel(result models.GenerationResult) string {
	if result.Metadata == nil {
		return ""
	}

	return result.Metadata.Model
}
