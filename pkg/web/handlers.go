// Package web provides the HTTP handlers for the AI synchronization API:
// the generation endpoints behind the editor's AI features, the graph and
// sync-state read endpoints, and health.
package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowmuse/flowmuse/pkg/catalog"
	"github.com/flowmuse/flowmuse/pkg/connector"
	"github.com/flowmuse/flowmuse/pkg/graph"
	"github.com/flowmuse/flowmuse/pkg/models"
	"github.com/flowmuse/flowmuse/pkg/services"
	"github.com/flowmuse/flowmuse/pkg/tracker"
)

type APIHandlers struct {
	assist    *services.Assist
	registry  *connector.Registry
	store     *graph.Store
	tracker   *tracker.Tracker
	catalog   *catalog.Service
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	assist *services.Assist,
	registry *connector.Registry,
	store *graph.Store,
	syncTracker *tracker.Tracker,
	catalogService *catalog.Service,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		assist:    assist,
		registry:  registry,
		store:     store,
		tracker:   syncTracker,
		catalog:   catalogService,
		validator: validator,
		logger:    logger.With("module", "web"),
	}
}

// BuildFlow turns a natural-language instruction into graph changes. The
// response is always the uniform result envelope; the status code carries
// the failure class.
func (h *APIHandlers) BuildFlow(c fiber.Ctx) error {
	var req BuildFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return envelopeError(c, fiber.StatusBadRequest, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return envelopeError(c, fiber.StatusBadRequest, err.Error())
	}

	serviceReq := services.BuildFlowRequest{
		Prompt:   req.Prompt,
		Override: req.ConfigOverride,
	}

	if req.Context != nil {
		serviceReq.Nodes = req.Context.Nodes
		serviceReq.CustomNodes = req.Context.CustomNodes
	}

	result, err := h.assist.BuildFlow(c.Context(), serviceReq)
	if err != nil {
		return h.handleAIError(c, err)
	}

	return c.JSON(result)
}

// ResyncNode regenerates one node's configuration from its intent text.
func (h *APIHandlers) ResyncNode(c fiber.Ctx) error {
	var req ResyncNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return envelopeError(c, fiber.StatusBadRequest, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return envelopeError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.assist.ResyncNode(c.Context(), models.ResyncRequest{
		NodeID:        req.NodeID,
		NodeType:      req.NodeType,
		NodeName:      req.NodeName,
		Info:          req.Info,
		CurrentConfig: req.CurrentConfig,
	}, req.ConfigOverride)
	if err != nil {
		return h.handleAIError(c, err)
	}

	return c.JSON(result)
}

// GenerateDescription synthesizes a display name and description for a
// node from its functional configuration.
func (h *APIHandlers) GenerateDescription(c fiber.Ctx) error {
	var req DescribeNodeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return envelopeError(c, fiber.StatusBadRequest, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return envelopeError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.assist.GenerateDescription(c.Context(), models.DescribeRequest{
		NodeID:        req.NodeID,
		NodeType:      req.NodeType,
		NodeName:      req.NodeName,
		CurrentConfig: req.CurrentConfig,
	}, req.ConfigOverride)
	if err != nil {
		return h.handleAIError(c, err)
	}

	return c.JSON(result)
}

// RegisterCustomNodes stores the editor's custom node table so later
// generations can reference the installed palette.
func (h *APIHandlers) RegisterCustomNodes(c fiber.Ctx) error {
	var req RegisterCustomNodesRequest
	if err := c.Bind().JSON(&req); err != nil {
		return envelopeError(c, fiber.StatusBadRequest, "Invalid JSON format")
	}

	specs, err := req.Specs()
	if err != nil {
		return envelopeError(c, fiber.StatusBadRequest, err.Error())
	}

	registered, err := h.catalog.Register(c.Context(), specs)
	if err != nil {
		return h.handleAIError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"registered": registered,
	})
}

// GetProviders reports every registered connector's configuration state,
// with the active provider flagged.
func (h *APIHandlers) GetProviders(c fiber.Ctx) error {
	names := h.registry.Names()
	statuses := make([]ProviderStatus, 0, len(names))

	for _, name := range names {
		conn, err := h.registry.Connector(name)
		if err != nil {
			continue
		}

		cfg := conn.Config()
		validation := conn.ValidateConfig(cfg)

		statuses = append(statuses, ProviderStatus{
			Name:       name,
			Active:     name == h.assist.Provider(),
			Configured: cfg.Configured(),
			Valid:      validation.Valid,
			Errors:     validation.Errors,
			Config:     cfg,
		})
	}

	return c.JSON(fiber.Map{
		"provider":  h.assist.Provider(),
		"providers": statuses,
	})
}

// ListSyncStates returns the tracker's full snapshot for the editor's
// indicator overlay.
func (h *APIHandlers) ListSyncStates(c fiber.Ctx) error {
	states := h.tracker.Snapshot()

	return c.JSON(fiber.Map{
		"states": states,
		"count":  len(states),
	})
}

// GetSyncState returns one node's tracker record plus its drift
// classification. Nodes the graph holds but the tracker has never seen
// report as idle.
func (h *APIHandlers) GetSyncState(c fiber.Ctx) error {
	nodeID := c.Params("nodeId")

	state, tracked := h.tracker.Get(nodeID)
	drift, driftErr := h.assist.Drift(nodeID)

	if !tracked && driftErr != nil {
		return notFound(c, "Node '"+nodeID+"' has no sync record")
	}

	if !tracked {
		state = models.SyncState{NodeID: nodeID, Status: models.SyncIdle}
	}

	resp := SyncStateResponse{SyncState: state}
	if driftErr == nil {
		resp.Drift = string(drift)
	}

	return c.JSON(resp)
}

// GetFlows lists the flow tabs the graph currently holds.
func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	tabs := h.store.Tabs()

	return c.JSON(fiber.Map{
		"flows": tabs,
		"count": len(tabs),
	})
}

// GetFlow returns one tab and its nodes. Subflow definitions assigned to
// the tab are excluded unless include_containers is set.
func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	id := c.Params("id")

	includeContainers := false

	if v := c.Query("include_containers"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "Invalid query parameters: "+err.Error())
		}

		includeContainers = parsed
	}

	tab, ok := h.store.Tab(id)
	if !ok {
		return notFound(c, "Flow not found")
	}

	return c.JSON(fiber.Map{
		"tab":   tab,
		"nodes": h.store.NodesInTab(id, includeContainers),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	assistCheck, assistOK := h.assist.HealthCheck(c.Context())
	catalogCheck, catalogOK := h.catalog.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowmuse API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if assistOK && catalogOK {
		status = "healthy"
		message = "Flowmuse API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"assist":  assistCheck,
			"catalog": catalogCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
