// Package merge reconciles AI-proposed node lists against the live graph.
// A proposal either becomes a brand-new tab (create path) or is applied to
// an existing tab as an explicit, strictly ordered patch (merge path).
package merge

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/flowmuse/flowmuse/pkg/graph"
	"github.com/flowmuse/flowmuse/pkg/models"
)

// Intent routes an instruction to the create path or the merge path.
type Intent string

const (
	IntentCreate Intent = "create"
	IntentMerge  Intent = "merge"
)

// DefaultFlowLabel names tabs created from a proposal that carries no
// flow name.
const DefaultFlowLabel = "AI Generated Flow"

var createVerbs = map[string]struct{}{
	"create":   {},
	"build":    {},
	"make":     {},
	"generate": {},
	"new":      {},
}

var updateVerbs = map[string]struct{}{
	"add":    {},
	"update": {},
	"modify": {},
	"change": {},
	"append": {},
	"insert": {},
}

// Classify routes an instruction by case-insensitive whole-word matching.
// Update verbs win when both classes match, and an instruction matching
// neither class takes the merge path. Both rules are deliberate defaults:
// there is no confidence scoring behind them.
func Classify(instruction string) Intent {
	words := strings.FieldsFunc(strings.ToLower(instruction), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var creates, updates bool
	for _, word := range words {
		if _, ok := createVerbs[word]; ok {
			creates = true
		}
		if _, ok := updateVerbs[word]; ok {
			updates = true
		}
	}

	if creates && !updates {
		return IntentCreate
	}

	return IntentMerge
}

// OpKind identifies one discrete mutation in a merge plan.
type OpKind string

const (
	OpAddNode    OpKind = "add-node"
	OpSetWires   OpKind = "set-wires"
	OpSetFields  OpKind = "set-fields"
	OpMoveNode   OpKind = "move-node"
	OpRemoveNode OpKind = "remove-node"
)

// Op is one graph mutation. The populated fields depend on Kind: add-node
// carries Node, set-wires carries Wires, set-fields carries Fields and
// move-node carries X/Y.
type Op struct {
	Kind   OpKind
	Phase  int
	NodeID string
	Node   *models.Node
	Fields *models.Node
	Wires  [][]string
	X, Y   float64
}

// Plan is the ordered patch produced for one tab. Ops are grouped into
// four phases: additions, wiring for additions, updates to existing
// nodes, removals. Later phases reference identifiers introduced by
// earlier ones, so the order within Ops must never change.
type Plan struct {
	TabID   string
	Ops     []Op
	Added   []string
	Updated []string
	Removed []string
}

// Engine plans and applies proposals against a graph store. It does not
// serialize callers: the owner is expected to hold the tab's merge gate
// around Plan+Apply.
type Engine struct {
	store  *graph.Store
	logger *slog.Logger
}

func NewEngine(store *graph.Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger.With("module", "merge"),
	}
}

// Plan partitions a proposal into additions (id unseen in the tab) and
// updates (id already present) and emits the patch that reconciles the
// tab with the proposal. Nodes present in the tab but absent from the
// proposal are scheduled for removal in the final phase.
func (e *Engine) Plan(tabID string, proposal []*models.Node) (*Plan, error) {
	if _, ok := e.store.Tab(tabID); !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrTabNotFound, tabID)
	}

	existing := e.store.NodesInTab(tabID, false)
	existingIDs := make(map[string]struct{}, len(existing))
	for _, node := range existing {
		existingIDs[node.ID] = struct{}{}
	}

	plan := &Plan{TabID: tabID}
	proposed := make(map[string]struct{}, len(proposal))

	var adds, updates []*models.Node
	for _, p := range proposal {
		// Providers sometimes echo the tab object inside the flow array;
		// containers describe the tab, not its content.
		if p.IsContainer() {
			continue
		}

		node := p.Clone()
		if node.ID == "" {
			node.ID = uuid.NewString()
		}
		proposed[node.ID] = struct{}{}
		if _, ok := existingIDs[node.ID]; ok {
			updates = append(updates, node)
		} else {
			adds = append(adds, node)
		}
	}

	// Phase 1: insert additions first so later wiring and field updates
	// can resolve their identifiers.
	for _, node := range adds {
		insert := node.Clone()
		insert.Z = tabID
		insert.Wires = nil
		plan.Ops = append(plan.Ops, Op{Kind: OpAddNode, Phase: 1, NodeID: insert.ID, Node: insert})
		plan.Added = append(plan.Added, insert.ID)
	}

	// Phase 2: wiring for additions, connection by connection, so the
	// final wiring matches the proposal exactly.
	for _, node := range adds {
		if node.Wires == nil {
			continue
		}
		plan.Ops = append(plan.Ops, Op{Kind: OpSetWires, Phase: 2, NodeID: node.ID, Wires: node.Wires})
	}

	// Phase 3: updates to existing nodes. Position moves only when the
	// proposal carries coordinates; wiring rebuilds only when the
	// proposal carries a wire list.
	for _, node := range updates {
		plan.Ops = append(plan.Ops, Op{Kind: OpSetFields, Phase: 3, NodeID: node.ID, Fields: node})
		if node.HasPosition() {
			plan.Ops = append(plan.Ops, Op{Kind: OpMoveNode, Phase: 3, NodeID: node.ID, X: *node.X, Y: *node.Y})
		}
		if node.Wires != nil {
			plan.Ops = append(plan.Ops, Op{Kind: OpSetWires, Phase: 3, NodeID: node.ID, Wires: node.Wires})
		}
		plan.Updated = append(plan.Updated, node.ID)
	}

	// Phase 4: removals last. This is the only destructive phase, and it
	// must not run before every identifier lookup above has settled.
	for _, node := range existing {
		if _, ok := proposed[node.ID]; !ok {
			plan.Ops = append(plan.Ops, Op{Kind: OpRemoveNode, Phase: 4, NodeID: node.ID})
			plan.Removed = append(plan.Removed, node.ID)
		}
	}

	return plan, nil
}

// Apply executes a plan's operations in order through the graph store
// primitives. Re-applying a proposal to its own result is a no-op.
func (e *Engine) Apply(plan *Plan) error {
	for _, op := range plan.Ops {
		var err error

		switch op.Kind {
		case OpAddNode:
			err = e.store.AddNode(op.Node)
		case OpSetWires:
			err = e.rebuildWires(op.NodeID, op.Wires)
		case OpSetFields:
			err = e.store.UpdateNodeFields(op.NodeID, op.Fields)
		case OpMoveNode:
			err = e.store.MoveNode(op.NodeID, op.X, op.Y)
		case OpRemoveNode:
			err = e.store.RemoveNode(op.NodeID)
		default:
			err = fmt.Errorf("unknown merge operation '%s'", op.Kind)
		}

		if err != nil {
			return fmt.Errorf("merge phase %d (%s) on node '%s': %w", op.Phase, op.Kind, op.NodeID, err)
		}
	}

	e.logger.Info("Applied merge plan",
		"tab_id", plan.TabID,
		"added", len(plan.Added),
		"updated", len(plan.Updated),
		"removed", len(plan.Removed))

	return nil
}

// ApplyNodeUpdate applies one resynchronized node outside a full merge:
// fields always, position and wiring only when the proposal carries them.
// Same semantics as an update inside a plan, without the surrounding
// phases.
func (e *Engine) ApplyNodeUpdate(node *models.Node) error {
	if node == nil || node.ID == "" {
		return graph.ErrMissingID
	}

	if err := e.store.UpdateNodeFields(node.ID, node); err != nil {
		return fmt.Errorf("updating node '%s': %w", node.ID, err)
	}

	if node.HasPosition() {
		if err := e.store.MoveNode(node.ID, *node.X, *node.Y); err != nil {
			return fmt.Errorf("moving node '%s': %w", node.ID, err)
		}
	}

	if node.Wires != nil {
		if err := e.rebuildWires(node.ID, node.Wires); err != nil {
			return fmt.Errorf("rewiring node '%s': %w", node.ID, err)
		}
	}

	return nil
}

// rebuildWires clears a node's wiring and recreates it from the proposed
// wire list. Targets the proposal references but the graph does not hold
// are skipped rather than failing the merge.
func (e *Engine) rebuildWires(nodeID string, wires [][]string) error {
	if err := e.store.ClearWires(nodeID); err != nil {
		return err
	}

	for port, targets := range wires {
		for _, target := range targets {
			if _, ok := e.store.Node(target); !ok {
				e.logger.Warn("Skipping wire to unknown node", "source", nodeID, "target", target)
				continue
			}
			if err := e.store.AddWire(nodeID, target, port); err != nil {
				return err
			}
		}
	}

	return nil
}

// CreateFlow imports a proposal as a brand-new tab. No merge phases
// apply: there is no pre-existing content to reconcile. Proposal ids that
// collide with nodes elsewhere in the graph are remapped to fresh ids,
// with wire references rewritten to follow.
func (e *Engine) CreateFlow(flowName string, proposal []*models.Node) (*models.Tab, error) {
	label := strings.TrimSpace(flowName)
	if label == "" {
		label = DefaultFlowLabel
	}

	tab := &models.Tab{ID: uuid.NewString(), Label: label}

	nodes := make([]*models.Node, 0, len(proposal))
	seen := make(map[string]struct{}, len(proposal))
	remap := make(map[string]string)

	for i, p := range proposal {
		if p.IsContainer() {
			continue
		}

		node := p.Clone()
		node.Z = tab.ID

		if node.ID == "" {
			node.ID = uuid.NewString()
		} else if _, dup := seen[node.ID]; dup {
			return nil, fmt.Errorf("duplicate node id '%s' at index %d in proposal", node.ID, i)
		} else if _, taken := e.store.Node(node.ID); taken {
			fresh := uuid.NewString()
			remap[node.ID] = fresh
			node.ID = fresh
		}

		seen[node.ID] = struct{}{}
		nodes = append(nodes, node)
	}

	if len(remap) > 0 {
		for _, node := range nodes {
			for port, targets := range node.Wires {
				for i, target := range targets {
					if fresh, ok := remap[target]; ok {
						node.Wires[port][i] = fresh
					}
				}
			}
		}
	}

	if err := e.store.AddTab(tab); err != nil {
		return nil, err
	}

	for _, node := range nodes {
		if err := e.store.AddNode(node); err != nil {
			return nil, fmt.Errorf("importing node '%s': %w", node.ID, err)
		}
	}

	e.logger.Info("Created flow", "tab_id", tab.ID, "label", tab.Label, "nodes", len(nodes))

	return tab, nil
}
