package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowmuse/flowmuse/pkg/eventbus"
	"github.com/flowmuse/flowmuse/pkg/events"
	"github.com/flowmuse/flowmuse/pkg/retry"
	"github.com/flowmuse/flowmuse/pkg/tracker"
)

// SyncNotifier fans backoff status changes out to the sync tracker and the
// event bus. It is the status sink wired into every connector, so a
// rate-limited node shows up as waiting in sync state and on the bus.
type SyncNotifier struct {
	tracker *tracker.Tracker
	events  eventbus.EventPublisher
	logger  *slog.Logger
}

// NewSyncNotifier creates a notifier over the tracker and an optional
// event publisher.
func NewSyncNotifier(tr *tracker.Tracker, publisher eventbus.EventPublisher, logger *slog.Logger) *SyncNotifier {
	return &SyncNotifier{
		tracker: tr,
		events:  publisher,
		logger:  logger.With("module", "sync_notifier"),
	}
}

var _ retry.StatusSink = (*SyncNotifier)(nil)

// MarkWaiting records the node entering backoff and announces it.
func (n *SyncNotifier) MarkWaiting(nodeID string, attempt int, wait time.Duration) {
	n.tracker.MarkWaiting(nodeID, attempt, wait)

	n.publish(nodeID, events.NodeSyncWaiting{
		BaseEvent: events.NewBaseEvent(events.NodeSyncWaitingEvent),
		NodeID:    nodeID,
		Attempt:   attempt,
		WaitMs:    wait.Milliseconds(),
	})
}

// MarkSyncing records the backoff elapsing and the next attempt going out.
func (n *SyncNotifier) MarkSyncing(nodeID string) {
	n.tracker.MarkSyncing(nodeID)

	attempt := 0
	if state, ok := n.tracker.Get(nodeID); ok {
		attempt = state.Attempt
	}

	n.publish(nodeID, events.NodeSyncResumed{
		BaseEvent: events.NewBaseEvent(events.NodeSyncResumedEvent),
		NodeID:    nodeID,
		Attempt:   attempt,
	})
}

// publish is best-effort: the sink runs inside a backoff wait, so delivery
// problems log and never disturb the retry machine.
func (n *SyncNotifier) publish(key string, event eventbus.Event) {
	if n.events == nil {
		return
	}

	if err := n.events.Publish(context.Background(), key, event); err != nil {
		n.logger.Error("Failed to publish sync status event", "event_type", event.GetType(), "error", err)
	}
}
