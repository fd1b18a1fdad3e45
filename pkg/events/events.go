// Package events defines the synchronization lifecycle notifications the
// core publishes for editor indicators and audit consumers.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every synchronization event.
const Topic = "flowmuse.sync"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Flow-level events.
	FlowGeneratedEvent EventType = "flow.generated"
	TabCreatedEvent    EventType = "tab.created"

	// Per-node synchronization lifecycle.
	NodeSyncStartedEvent   EventType = "node.sync.started"
	NodeSyncWaitingEvent   EventType = "node.sync.waiting"
	NodeSyncResumedEvent   EventType = "node.sync.resumed"
	NodeSyncCompletedEvent EventType = "node.sync.completed"
	NodeSyncFailedEvent    EventType = "node.sync.failed"
	NodeRemovedEvent       EventType = "node.removed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// FlowGenerated reports a completed build-flow request, whichever path
// (create or merge) it took.
type FlowGenerated struct {
	BaseEvent

	TabID    string `json:"tab_id"`
	FlowName string `json:"flow_name,omitempty"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Added    int    `json:"added"`
	Updated  int    `json:"updated"`
	Removed  int    `json:"removed"`
}

func (e FlowGenerated) GetType() EventType {
	return FlowGeneratedEvent
}

// TabCreated reports a brand-new tab imported via the create path.
type TabCreated struct {
	BaseEvent

	TabID string `json:"tab_id"`
	Label string `json:"label"`
	Nodes int    `json:"nodes"`
}

func (e TabCreated) GetType() EventType {
	return TabCreatedEvent
}

type NodeSyncStarted struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type,omitempty"`
	Provider string `json:"provider"`
}

func (e NodeSyncStarted) GetType() EventType {
	return NodeSyncStartedEvent
}

// NodeSyncWaiting reports a rate-limited node entering backoff.
type NodeSyncWaiting struct {
	BaseEvent

	NodeID  string `json:"node_id"`
	Attempt int    `json:"attempt"`
	WaitMs  int64  `json:"wait_ms"`
}

func (e NodeSyncWaiting) GetType() EventType {
	return NodeSyncWaitingEvent
}

// NodeSyncResumed reports the backoff elapsed and the next attempt going
// out.
type NodeSyncResumed struct {
	BaseEvent

	NodeID  string `json:"node_id"`
	Attempt int    `json:"attempt"`
}

func (e NodeSyncResumed) GetType() EventType {
	return NodeSyncResumedEvent
}

type NodeSyncCompleted struct {
	BaseEvent

	NodeID     string `json:"node_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (e NodeSyncCompleted) GetType() EventType {
	return NodeSyncCompletedEvent
}

type NodeSyncFailed struct {
	BaseEvent

	NodeID     string `json:"node_id"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (e NodeSyncFailed) GetType() EventType {
	return NodeSyncFailedEvent
}

// NodeRemoved reports a node dropped by the merge engine's removal phase.
type NodeRemoved struct {
	BaseEvent

	NodeID string `json:"node_id"`
	TabID  string `json:"tab_id"`
}

func (e NodeRemoved) GetType() EventType {
	return NodeRemovedEvent
}
