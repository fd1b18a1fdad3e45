package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowmuse/flowmuse/pkg/graph"
)

// NewGraphStore builds the host graph store and, when a snapshot URL is
// configured, restores the previous document from it. An empty URL
// disables persistence: the graph lives in memory only.
func NewGraphStore(ctx context.Context, snapshotURL string, logger *slog.Logger) (*graph.Store, *graph.SnapshotFile) {
	store := graph.NewStore()

	if snapshotURL == "" {
		return store, nil
	}

	snapshot := graph.NewSnapshotFile(snapshotURL)

	flat, err := snapshot.Load(ctx)
	if err != nil {
		panic(fmt.Errorf("failed to load graph snapshot: %w", err))
	}

	if err := store.Restore(flat); err != nil {
		panic(fmt.Errorf("failed to restore graph snapshot: %w", err))
	}

	tabs, nodes := store.Stats()
	logger.InfoContext(ctx, "Restored graph snapshot", "tabs", tabs, "nodes", nodes)

	return store, snapshot
}
