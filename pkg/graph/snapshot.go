package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowmuse/flowmuse/pkg/models"
)

// SnapshotFile loads and saves the graph document as a flat JSON node array
// on disk. This is the host document's own load/save mechanism, used at
// boot and after each applied merge.
type SnapshotFile struct {
	path string
}

// NewSnapshotFile creates a snapshot backed by the given file path.
func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: strings.Replace(path, "file://", "", 1)}
}

// Load reads the snapshot. A missing file is not an error: it returns an
// empty document, as on first boot.
func (sf *SnapshotFile) Load(_ context.Context) ([]*models.Node, error) {
	body, err := os.ReadFile(filepath.Clean(sf.path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read graph snapshot %s: %w", sf.path, err)
	}

	var flat []*models.Node

	err = json.Unmarshal(body, &flat)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph snapshot %s: %w", sf.path, err)
	}

	return flat, nil
}

// Save writes the snapshot, creating parent directories as needed.
func (sf *SnapshotFile) Save(_ context.Context, flat []*models.Node) error {
	dir := filepath.Dir(sf.path)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph snapshot: %w", err)
	}

	return os.WriteFile(sf.path, data, 0600)
}
