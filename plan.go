package procflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionType names an edit in an action plan.
type ActionType string

const (
	ActionAddNode      ActionType = "ADD_NODE"
	ActionConnectNodes ActionType = "CONNECT_NODES"
	ActionUpdateConfig ActionType = "UPDATE_CONFIG"
	ActionDeleteNode   ActionType = "DELETE_NODE"
)

// Action is one edit of an action plan, usually proposed by the AI assistant.
//
// TempID is a batch-scoped key for ADD_NODE; Source and Target of a
// CONNECT_NODES may name either a TempID of the same batch or the durable id
// of a node already in the graph. TempIDs are never persisted.
type Action struct {
	Type ActionType `json:"type"`

	// ADD_NODE
	TempID   string   `json:"tempId,omitempty"`
	NodeType NodeType `json:"nodeType,omitempty"`
	Label    string   `json:"label,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`

	// CONNECT_NODES
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`

	// UPDATE_CONFIG, DELETE_NODE
	NodeID string `json:"nodeId,omitempty"`

	// ADD_NODE, UPDATE_CONFIG
	Config map[string]any `json:"config,omitempty"`
}

// ParsePlan decodes a JSON array of actions and validates it.
func ParsePlan(b []byte) ([]Action, error) {
	var plan []Action
	if err := json.Unmarshal(b, &plan); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ValidatePlan checks that every action is well formed. It does not check
// whether referenced nodes exist; unresolved references are handled by Apply.
func ValidatePlan(plan []Action) error {
	temps := make(map[string]bool)
	for i, a := range plan {
		switch a.Type {
		case ActionAddNode:
			if !a.NodeType.Valid() {
				return fmt.Errorf("%w: action %d: %w: %q", ErrInvalidPlan, i, ErrUnknownNodeType, a.NodeType)
			}
			if a.TempID != "" {
				if temps[a.TempID] {
					return fmt.Errorf("%w: action %d: duplicate tempId %q", ErrInvalidPlan, i, a.TempID)
				}
				temps[a.TempID] = true
			}
		case ActionConnectNodes:
		case ActionUpdateConfig, ActionDeleteNode:
			if a.NodeID == "" {
				return fmt.Errorf("%w: action %d: %s without nodeId", ErrInvalidPlan, i, a.Type)
			}
		default:
			return fmt.Errorf("%w: action %d: unknown type %q", ErrInvalidPlan, i, a.Type)
		}
	}
	return nil
}

// ApplyResult describes what a batch did to the graph.
type ApplyResult struct {
	// NodeIDs maps each tempId of the batch to the durable id it received.
	NodeIDs map[string]string `json:"nodeIds"`
	// AddedNodes and AddedEdges list durable ids in creation order.
	AddedNodes []string `json:"addedNodes"`
	AddedEdges []string `json:"addedEdges"`
	// Dropped holds the CONNECT_NODES actions whose endpoints did not resolve.
	Dropped []Action `json:"dropped,omitempty"`
	// Skipped holds UPDATE_CONFIG and DELETE_NODE actions naming no node.
	Skipped []Action `json:"skipped,omitempty"`
	// DeletedNodes lists nodes removed by DELETE_NODE.
	DeletedNodes []string `json:"deletedNodes,omitempty"`
	UpdatedNodes []string `json:"updatedNodes,omitempty"`
}

// Applier applies action plans to a Graph.
//
// A plan runs in two phases under one graph lock. Phase 1 creates every new
// node, recording tempId → durable id, and then runs config updates and
// deletions in plan order. Phase 2 creates the edges. Any action may
// reference a node added later in the same plan.
type Applier struct {
	// Strict rejects the whole batch with ErrUnresolvedRef, before touching
	// the graph, when a connection cannot be resolved. Otherwise the
	// connection is dropped and reported in ApplyResult.Dropped.
	Strict bool

	// Now and Suffix generate durable ids; they default to time.Now and a
	// short random hex string.
	Now    func() time.Time
	Suffix func() string
}

// NewApplier returns an Applier with the default id generators.
func NewApplier(strict bool) *Applier {
	return &Applier{Strict: strict}
}

// NodeID returns a durable id for a new node of type t.
func (a *Applier) NodeID(t NodeType) string {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	suffix := shortSuffix
	if a.Suffix != nil {
		suffix = a.Suffix
	}
	return fmt.Sprintf("%s-%d-%s", t, now().UnixMilli(), suffix())
}

func shortSuffix() string {
	return uuid.NewString()[:8]
}

// batch is the transient state of one Apply call. It is discarded when the
// call returns.
type batch struct {
	g       *Graph
	temp    map[string]string
	added   map[string]bool
	deleted map[string]bool
}

func (b *batch) resolve(ref string) string {
	if id, ok := b.temp[ref]; ok {
		return id
	}
	return ref
}

// exists answers for the graph as it will look after phase 1.
func (b *batch) exists(id string) bool {
	if id == "" || b.deleted[id] {
		return false
	}
	if b.added[id] {
		return true
	}
	_, ok := b.g.index[id]
	return ok
}

// Apply validates plan and applies it to g.
func (a *Applier) Apply(g *Graph, plan []Action) (ApplyResult, error) {
	if err := ValidatePlan(plan); err != nil {
		return ApplyResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	b := &batch{
		g:       g,
		temp:    make(map[string]string),
		added:   make(map[string]bool),
		deleted: make(map[string]bool),
	}
	res := ApplyResult{NodeIDs: make(map[string]string)}

	ids := make([]string, len(plan))
	for i, act := range plan {
		if act.Type != ActionAddNode {
			continue
		}
		ids[i] = a.NodeID(act.NodeType)
		b.added[ids[i]] = true
		if act.TempID != "" {
			b.temp[act.TempID] = ids[i]
			res.NodeIDs[act.TempID] = ids[i]
		}
	}

	if a.Strict {
		if err := a.check(b, plan); err != nil {
			return ApplyResult{}, err
		}
	}
	b.deleted = make(map[string]bool)

	// Phase 1: nodes, then config updates and deletions.
	added := 0
	for i, act := range plan {
		if act.Type != ActionAddNode {
			continue
		}
		g.addNodeLocked(Node{
			ID:       ids[i],
			Type:     act.NodeType,
			Position: defaultPosition(act, added),
			Data:     NodeData{Label: act.Label, Config: act.Config},
		})
		res.AddedNodes = append(res.AddedNodes, ids[i])
		added++
	}
	for _, act := range plan {
		switch act.Type {
		case ActionUpdateConfig:
			id := b.resolve(act.NodeID)
			if !g.mergeConfigLocked(id, act.Config) {
				res.Skipped = append(res.Skipped, act)
				continue
			}
			res.UpdatedNodes = append(res.UpdatedNodes, id)
		case ActionDeleteNode:
			id := b.resolve(act.NodeID)
			if _, ok := g.deleteNodeLocked(id); !ok {
				res.Skipped = append(res.Skipped, act)
				continue
			}
			b.deleted[id] = true
			res.DeletedNodes = append(res.DeletedNodes, id)
		}
	}

	// Phase 2: edges.
	for _, act := range plan {
		if act.Type != ActionConnectNodes {
			continue
		}
		src, dst := b.resolve(act.Source), b.resolve(act.Target)
		if !b.exists(src) || !b.exists(dst) {
			res.Dropped = append(res.Dropped, act)
			continue
		}
		if e, created := g.connectLocked(Connection{Source: src, Target: dst, Label: act.Label}); created {
			res.AddedEdges = append(res.AddedEdges, e.ID)
		}
	}

	return res, nil
}

// check walks the plan without mutating the graph and fails on the first
// connection that would not resolve. It leaves simulated deletions in
// b.deleted; the caller resets them before phase 1.
func (a *Applier) check(b *batch, plan []Action) error {
	for _, act := range plan {
		if act.Type == ActionDeleteNode {
			b.deleted[b.resolve(act.NodeID)] = true
		}
	}
	for i, act := range plan {
		if act.Type != ActionConnectNodes {
			continue
		}
		for _, ref := range []string{act.Source, act.Target} {
			if !b.exists(b.resolve(ref)) {
				return fmt.Errorf("%w: action %d: %q", ErrUnresolvedRef, i, ref)
			}
		}
	}
	return nil
}

func defaultPosition(act Action, n int) Position {
	pos := Position{X: 250, Y: 100 + float64(n)*120}
	if act.X != nil {
		pos.X = *act.X
	}
	if act.Y != nil {
		pos.Y = *act.Y
	}
	return pos
}
