// Package graph owns the host editor's document model: the tabs, nodes and
// wiring that AI-proposed changes are merged into. The store is the single
// writer for graph state; merge operations mutate it through the primitives
// below and readers always receive copies.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/flowmuse/flowmuse/pkg/models"
)

var (
	// ErrNodeNotFound is returned when an operation references an unknown node id.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNodeExists is returned when adding a node whose id is already present.
	ErrNodeExists = errors.New("node already exists")
	// ErrTabNotFound is returned when an operation references an unknown tab id.
	ErrTabNotFound = errors.New("tab not found")
	// ErrTabExists is returned when adding a tab whose id is already present.
	ErrTabExists = errors.New("tab already exists")
	// ErrMissingID is returned when a node or tab arrives without an id.
	ErrMissingID = errors.New("missing id")
)

// Store is the in-memory host graph document. All methods are safe for
// concurrent use; nodes returned from lookups are deep copies, so callers
// can never mutate graph state except through the store's own primitives.
type Store struct {
	mu        sync.RWMutex
	tabs      []*models.Tab
	nodes     []*models.Node
	tabIndex  map[string]*models.Tab
	nodeIndex map[string]*models.Node
}

// NewStore creates an empty graph store.
func NewStore() *Store {
	return &Store{
		tabIndex:  make(map[string]*models.Tab),
		nodeIndex: make(map[string]*models.Node),
	}
}

// AddTab registers a new tab.
func (s *Store) AddTab(tab *models.Tab) error {
	if tab.ID == "" {
		return fmt.Errorf("%w: tab", ErrMissingID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tabIndex[tab.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTabExists, tab.ID)
	}

	copied := *tab
	s.tabs = append(s.tabs, &copied)
	s.tabIndex[tab.ID] = &copied

	return nil
}

// AddNode inserts a node. Insertion order is preserved, which keeps
// serialized context stable across calls.
func (s *Store) AddNode(node *models.Node) error {
	if node.ID == "" {
		return fmt.Errorf("%w: node", ErrMissingID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodeIndex[node.ID]; exists {
		return fmt.Errorf("%w: %s", ErrNodeExists, node.ID)
	}

	copied := node.Clone()
	s.nodes = append(s.nodes, copied)
	s.nodeIndex[node.ID] = copied

	return nil
}

// UpdateNodeFields copies the proposal's mutable fields onto the stored
// node: name, intent text and the functional payload are assigned key-wise,
// so fields the proposal omits keep their current values. Identity,
// position, tab membership and wiring are untouched; those change through
// MoveNode, ClearWires and AddWire.
func (s *Store) UpdateNodeFields(id string, proposal *models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodeIndex[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	if proposal.Name != "" {
		node.Name = proposal.Name
	}

	if proposal.Info != "" {
		node.Info = proposal.Info
	}

	incoming := proposal.Clone().Extra
	if len(incoming) > 0 && node.Extra == nil {
		node.Extra = make(map[string]any, len(incoming))
	}

	for k, v := range incoming {
		node.Extra[k] = v
	}

	return nil
}

// MoveNode sets the node's position.
func (s *Store) MoveNode(id string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodeIndex[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	node.SetPosition(x, y)

	return nil
}

// ClearWires removes every outgoing connection of the node.
func (s *Store) ClearWires(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodeIndex[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	node.Wires = nil

	return nil
}

// AddWire connects sourceID's given output port to targetID. Ports between
// the current count and the requested index are created empty.
func (s *Store) AddWire(sourceID, targetID string, port int) error {
	if port < 0 {
		return fmt.Errorf("invalid output port %d", port)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	source, exists := s.nodeIndex[sourceID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, sourceID)
	}

	if _, exists := s.nodeIndex[targetID]; !exists {
		return fmt.Errorf("%w: wire target %s", ErrNodeNotFound, targetID)
	}

	for len(source.Wires) <= port {
		source.Wires = append(source.Wires, []string{})
	}

	for _, existing := range source.Wires[port] {
		if existing == targetID {
			return nil
		}
	}

	source.Wires[port] = append(source.Wires[port], targetID)

	return nil
}

// RemoveNode deletes the node and strips every wire in the remaining graph
// that referenced it, so removal never leaves dangling connections.
func (s *Store) RemoveNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodeIndex[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	delete(s.nodeIndex, id)

	for i, node := range s.nodes {
		if node.ID == id {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)

			break
		}
	}

	for _, node := range s.nodes {
		for port, targets := range node.Wires {
			kept := targets[:0]

			for _, target := range targets {
				if target != id {
					kept = append(kept, target)
				}
			}

			node.Wires[port] = kept
		}
	}

	return nil
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (*models.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, exists := s.nodeIndex[id]
	if !exists {
		return nil, false
	}

	return node.Clone(), true
}

// Tab returns the tab with the given id.
func (s *Store) Tab(id string) (*models.Tab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tab, exists := s.tabIndex[id]
	if !exists {
		return nil, false
	}

	copied := *tab

	return &copied, true
}

// Tabs returns all tabs in insertion order.
func (s *Store) Tabs() []*models.Tab {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tabs := make([]*models.Tab, 0, len(s.tabs))

	for _, tab := range s.tabs {
		copied := *tab
		tabs = append(tabs, &copied)
	}

	return tabs
}

// Nodes returns copies of all nodes in insertion order.
func (s *Store) Nodes() []*models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*models.Node, 0, len(s.nodes))

	for _, node := range s.nodes {
		nodes = append(nodes, node.Clone())
	}

	return nodes
}

// NodesInTab returns copies of the nodes owned by the given tab, in
// insertion order. Container nodes (subflow definitions) are excluded
// unless includeContainers is set; tabs themselves are never node entries.
func (s *Store) NodesInTab(tabID string, includeContainers bool) []*models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []*models.Node

	for _, node := range s.nodes {
		if node.Z != tabID {
			continue
		}

		if node.IsContainer() && !includeContainers {
			continue
		}

		nodes = append(nodes, node.Clone())
	}

	return nodes
}

// Stats returns the current tab and node counts.
func (s *Store) Stats() (tabs, nodes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tabs), len(s.nodes)
}

// Snapshot renders the whole document as a flat node array in editor wire
// format: tabs first, then nodes, each a copy.
func (s *Store) Snapshot() []*models.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flat := make([]*models.Node, 0, len(s.tabs)+len(s.nodes))

	for _, tab := range s.tabs {
		flat = append(flat, tab.AsNode())
	}

	for _, node := range s.nodes {
		flat = append(flat, node.Clone())
	}

	return flat
}

// Restore replaces the whole document from a flat node array, partitioning
// tab entries from functional nodes. Used at boot to reload a snapshot.
func (s *Store) Restore(flat []*models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tabs := make([]*models.Tab, 0)
	nodes := make([]*models.Node, 0, len(flat))
	tabIndex := make(map[string]*models.Tab)
	nodeIndex := make(map[string]*models.Node)

	for _, entry := range flat {
		if entry.ID == "" {
			return fmt.Errorf("%w: snapshot entry", ErrMissingID)
		}

		if entry.Type == models.NodeTypeTab {
			if _, exists := tabIndex[entry.ID]; exists {
				return fmt.Errorf("%w: %s", ErrTabExists, entry.ID)
			}

			tab := tabFromNode(entry)
			tabs = append(tabs, tab)
			tabIndex[tab.ID] = tab

			continue
		}

		if _, exists := nodeIndex[entry.ID]; exists {
			return fmt.Errorf("%w: %s", ErrNodeExists, entry.ID)
		}

		node := entry.Clone()
		nodes = append(nodes, node)
		nodeIndex[node.ID] = node
	}

	s.tabs = tabs
	s.nodes = nodes
	s.tabIndex = tabIndex
	s.nodeIndex = nodeIndex

	return nil
}

func tabFromNode(node *models.Node) *models.Tab {
	tab := &models.Tab{ID: node.ID, Info: node.Info}

	if label, ok := node.Extra["label"].(string); ok {
		tab.Label = label
	}

	if disabled, ok := node.Extra["disabled"].(bool); ok {
		tab.Disabled = disabled
	}

	return tab
}
