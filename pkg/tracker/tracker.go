// Package tracker keeps the per-node synchronization record: current
// status for the editor's indicator, plus the last-synchronized intent
// text and functional fingerprint used to detect drift in either
// direction. It also serializes synchronization per node id, so a second
// resync for a node queues behind the one in flight.
package tracker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flowmuse/flowmuse/pkg/models"
	"github.com/flowmuse/flowmuse/pkg/retry"
)

// Drift describes which side of a node diverged from its last sync.
type Drift string

const (
	DriftNone   Drift = "none"
	DriftIntent Drift = "intent-changed"
	DriftConfig Drift = "config-changed"
	DriftBoth   Drift = "both"
)

// Tracker is the session-scoped store keyed by node id. Entries are
// created when a node first begins synchronizing, updated on every
// successful sync, and dropped when the node leaves the graph.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*models.SyncState
	gates  map[string]chan struct{}
	logger *slog.Logger
}

var _ retry.StatusSink = (*Tracker)(nil)

func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		states: make(map[string]*models.SyncState),
		gates:  make(map[string]chan struct{}),
		logger: logger.With("module", "tracker"),
	}
}

// gate returns the node's mutex channel, creating it on first use.
func (t *Tracker) gate(nodeID string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, ok := t.gates[nodeID]
	if !ok {
		ch = make(chan struct{}, 1)
		t.gates[nodeID] = ch
	}

	return ch
}

// state returns the node's record, creating an idle one on first use.
// Callers hold t.mu.
func (t *Tracker) state(nodeID string) *models.SyncState {
	s, ok := t.states[nodeID]
	if !ok {
		s = &models.SyncState{NodeID: nodeID, Status: models.SyncIdle}
		t.states[nodeID] = s
	}

	return s
}

// Begin acquires the node's gate and flips it to syncing. A second Begin
// for the same id blocks until the first operation completes or fails;
// operations on distinct ids proceed concurrently. The wait is abandoned
// when ctx is done.
func (t *Tracker) Begin(ctx context.Context, nodeID string) error {
	select {
	case t.gate(nodeID) <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(nodeID)
	s.Status = models.SyncSyncing
	s.Attempt = 0

	return nil
}

// MarkWaiting records a scheduled backoff: the node shows waiting until
// the retry controller resumes it.
func (t *Tracker) MarkWaiting(nodeID string, attempt int, wait time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(nodeID)
	s.Status = models.SyncWaiting
	s.Attempt = attempt

	t.logger.Debug("Node waiting on rate limit", "node_id", nodeID, "attempt", attempt, "wait", wait)
}

// MarkSyncing resumes a waiting node: the backoff elapsed and the next
// attempt is in flight.
func (t *Tracker) MarkSyncing(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state(nodeID).Status = models.SyncSyncing
}

// Complete records a successful sync: the node's intent text and
// functional fingerprint become the new drift baseline, the status
// returns to idle and the gate is released.
func (t *Tracker) Complete(nodeID, info, fingerprint string) {
	t.mu.Lock()

	now := time.Now()
	s := t.state(nodeID)
	s.Status = models.SyncIdle
	s.LastSyncedInfo = info
	s.Fingerprint = fingerprint
	s.LastSyncedAt = &now
	s.Attempt = 0

	t.mu.Unlock()

	t.release(nodeID)
}

// Fail returns the node to idle without touching the drift baseline and
// releases the gate.
func (t *Tracker) Fail(nodeID string) {
	t.mu.Lock()

	t.state(nodeID).Status = models.SyncIdle

	t.mu.Unlock()

	t.release(nodeID)
}

// Drop removes the node's record, for nodes removed from the graph. The
// gate channel stays: an operation queued on it would otherwise block on
// a channel nothing ever releases. A later Begin for a reused id simply
// recreates the record.
func (t *Tracker) Drop(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.states, nodeID)
}

// release empties the gate without blocking when it was never held.
func (t *Tracker) release(nodeID string) {
	select {
	case <-t.gate(nodeID):
	default:
	}
}

// Get returns a copy of the node's record.
func (t *Tracker) Get(nodeID string) (models.SyncState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[nodeID]
	if !ok {
		return models.SyncState{}, false
	}

	return *s, true
}

// Snapshot returns copies of every record, ordered by node id.
func (t *Tracker) Snapshot() []models.SyncState {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.SyncState, 0, len(t.states))
	for _, s := range t.states {
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })

	return out
}

// Drift compares a live node against its last-synchronized baseline. A
// node that never completed a sync has no baseline and reports no drift.
func (t *Tracker) Drift(node *models.Node) Drift {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[node.ID]
	if !ok || s.LastSyncedAt == nil {
		return DriftNone
	}

	intentChanged := s.LastSyncedInfo != node.Info
	configChanged := s.Fingerprint != node.Fingerprint()

	switch {
	case intentChanged && configChanged:
		return DriftBoth
	case intentChanged:
		return DriftIntent
	case configChanged:
		return DriftConfig
	default:
		return DriftNone
	}
}
