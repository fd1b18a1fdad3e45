package main

import (
	"context"
	"log/slog"

	"github.com/flowmuse/flowmuse/pkg/eventbus"
	"github.com/flowmuse/flowmuse/pkg/events"
)

// registerAuditLog attaches a handler for every sync lifecycle event so
// the process keeps an auditable trail of what the AI changed and when.
func registerAuditLog(bus eventbus.EventBus, logger *slog.Logger) {
	handler := auditHandler(logger)

	for _, eventType := range []events.EventType{
		events.TabCreatedEvent,
		events.FlowGeneratedEvent,
		events.NodeSyncStartedEvent,
		events.NodeSyncWaitingEvent,
		events.NodeSyncResumedEvent,
		events.NodeSyncCompletedEvent,
		events.NodeSyncFailedEvent,
		events.NodeRemovedEvent,
	} {
		_ = bus.Handle(eventType, handler)
	}
}

func auditHandler(logger *slog.Logger) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		switch e := event.(type) {
		case *events.TabCreated:
			logger.InfoContext(ctx, "Tab created", "tab_id", e.TabID, "label", e.Label, "nodes", e.Nodes)
		case *events.FlowGenerated:
			logger.InfoContext(ctx, "Flow generated", "tab_id", e.TabID, "flow_name", e.FlowName, "provider", e.Provider, "added", e.Added, "updated", e.Updated, "removed", e.Removed)
		case *events.NodeSyncStarted:
			logger.InfoContext(ctx, "Node sync started", "node_id", e.NodeID, "provider", e.Provider)
		case *events.NodeSyncWaiting:
			logger.InfoContext(ctx, "Node sync waiting on rate limit", "node_id", e.NodeID, "attempt", e.Attempt, "wait_ms", e.WaitMs)
		case *events.NodeSyncResumed:
			logger.InfoContext(ctx, "Node sync resumed", "node_id", e.NodeID, "attempt", e.Attempt)
		case *events.NodeSyncCompleted:
			logger.InfoContext(ctx, "Node sync completed", "node_id", e.NodeID, "duration_ms", e.DurationMs)
		case *events.NodeSyncFailed:
			logger.WarnContext(ctx, "Node sync failed", "node_id", e.NodeID, "error", e.Error, "duration_ms", e.DurationMs)
		case *events.NodeRemoved:
			logger.InfoContext(ctx, "Node removed by merge", "node_id", e.NodeID, "tab_id", e.TabID)
		}

		return nil
	}
}
