package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(NodeSyncStartedEvent)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, NodeSyncStartedEvent, event.Type)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	other := NewBaseEvent(NodeSyncStartedEvent)
	assert.NotEqual(t, event.ID, other.ID)
}

func TestEventTypes(t *testing.T) {
	assert.Equal(t, FlowGeneratedEvent, FlowGenerated{}.GetType())
	assert.Equal(t, TabCreatedEvent, TabCreated{}.GetType())
	assert.Equal(t, NodeSyncStartedEvent, NodeSyncStarted{}.GetType())
	assert.Equal(t, NodeSyncWaitingEvent, NodeSyncWaiting{}.GetType())
	assert.Equal(t, NodeSyncResumedEvent, NodeSyncResumed{}.GetType())
	assert.Equal(t, NodeSyncCompletedEvent, NodeSyncCompleted{}.GetType())
	assert.Equal(t, NodeSyncFailedEvent, NodeSyncFailed{}.GetType())
	assert.Equal(t, NodeRemovedEvent, NodeRemoved{}.GetType())
}

func TestFlowGeneratedJSONSerialization(t *testing.T) {
	original := &FlowGenerated{
		BaseEvent: NewBaseEvent(FlowGeneratedEvent),
		TabID:     "tab-1",
		FlowName:  "Hello Logger",
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		Added:     2,
		Updated:   1,
		Removed:   3,
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"flow.generated"`)
	assert.Contains(t, string(raw), `"tab_id":"tab-1"`)
	assert.Contains(t, string(raw), `"flow_name":"Hello Logger"`)

	var decoded FlowGenerated
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original.TabID, decoded.TabID)
	assert.Equal(t, original.Added, decoded.Added)
	assert.Equal(t, original.Removed, decoded.Removed)
}

func TestNodeSyncWaitingJSONSerialization(t *testing.T) {
	original := &NodeSyncWaiting{
		BaseEvent: NewBaseEvent(NodeSyncWaitingEvent),
		NodeID:    "n1",
		Attempt:   3,
		WaitMs:    4000,
	}

	raw, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"node.sync.waiting"`)
	assert.Contains(t, string(raw), `"wait_ms":4000`)

	var decoded NodeSyncWaiting
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, original.NodeID, decoded.NodeID)
	assert.Equal(t, original.Attempt, decoded.Attempt)
}
