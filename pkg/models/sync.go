package models

import "time"

// SyncStatus is the lifecycle state of a node's AI synchronization.
type SyncStatus string

const (
	// SyncIdle means no synchronization is running or pending.
	SyncIdle SyncStatus = "idle"
	// SyncSyncing means a provider exchange is in flight.
	SyncSyncing SyncStatus = "syncing"
	// SyncWaiting means the node is rate limited and a retry is scheduled.
	SyncWaiting SyncStatus = "waiting"
)

// SyncState is the tracked synchronization record for one node.
type SyncState struct {
	NodeID         string     `json:"nodeId"`
	Status         SyncStatus `json:"status"`
	LastSyncedInfo string     `json:"lastSyncedInfo,omitempty"`
	Fingerprint    string     `json:"fingerprint,omitempty"`
	LastSyncedAt   *time.Time `json:"lastSyncedAt,omitempty"`
	Attempt        int        `json:"attempt,omitempty"`
}

// Dirty reports whether the node's intent has drifted from what was last
// synchronized.
func (s *SyncState) Dirty(info, fingerprint string) bool {
	return s.LastSyncedInfo != info || s.Fingerprint != fingerprint
}
