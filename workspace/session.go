// Package workspace owns the editing sessions of the console: each session
// holds one process graph and routes plans, compilation and saves through it.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/meikuraledutech/procflow"
	"github.com/meikuraledutech/procflow/bpmn"
	"github.com/meikuraledutech/procflow/version"
	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("workspace: session not found")
	ErrNameRequired    = errors.New("workspace: workflow name required")
)

// Session is one editing session. Graph edits apply immediately; plans and
// saves are serialised per session so overlapping requests queue.
type Session struct {
	id      string
	graph   *procflow.Graph
	applier *procflow.Applier
	deps    *deps

	planMu sync.Mutex
	saveMu sync.Mutex
}

func newSession(id string, d *deps) *Session {
	return &Session{
		id:      id,
		graph:   procflow.NewGraph(),
		applier: procflow.NewApplier(d.opts.StrictPlan),
		deps:    d,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Graph returns the graph for read access. Edits made directly on it are
// not mirrored until the next session command.
func (s *Session) Graph() *procflow.Graph { return s.graph }

// Snapshot returns a copy of the current graph state.
func (s *Session) Snapshot() procflow.Snapshot { return s.graph.Snapshot() }

func (s *Session) mirror(ctx context.Context) {
	if err := s.deps.mirror.Save(ctx, s.id, s.graph.Snapshot()); err != nil {
		s.deps.logger.Warn("mirror snapshot failed", zap.String("session", s.id), zap.Error(err))
	}
}

// AddNode creates a node of type t with a freshly generated durable id.
func (s *Session) AddNode(ctx context.Context, t procflow.NodeType, pos procflow.Position, data procflow.NodeData) (procflow.Node, error) {
	if !t.Valid() {
		return procflow.Node{}, fmt.Errorf("%w: %q", procflow.ErrUnknownNodeType, t)
	}
	n := procflow.Node{ID: s.applier.NodeID(t), Type: t, Position: pos, Data: data}
	s.graph.AddNode(n)
	s.mirror(ctx)
	return n, nil
}

// UpdateNode merges patch into the node's data and optionally moves it.
func (s *Session) UpdateNode(ctx context.Context, id string, patch procflow.NodeDataPatch, pos *procflow.Position) error {
	if !s.graph.UpdateNodeData(id, patch) {
		return procflow.ErrNodeNotFound
	}
	if pos != nil {
		s.graph.SetPosition(id, *pos)
	}
	s.mirror(ctx)
	return nil
}

// RemoveNode deletes a node. With cascade its edges go too; without, they
// are left dangling.
func (s *Session) RemoveNode(ctx context.Context, id string, cascade bool) error {
	var ok bool
	if cascade {
		_, ok = s.graph.DeleteNode(id)
	} else {
		ok = s.graph.RemoveNode(id)
	}
	if !ok {
		return procflow.ErrNodeNotFound
	}
	s.mirror(ctx)
	return nil
}

// Connect adds an edge between two existing nodes.
func (s *Session) Connect(ctx context.Context, c procflow.Connection) (procflow.Edge, error) {
	if !s.graph.HasNode(c.Source) || !s.graph.HasNode(c.Target) {
		return procflow.Edge{}, procflow.ErrNodeNotFound
	}
	e, _ := s.graph.Connect(c)
	s.mirror(ctx)
	return e, nil
}

// UpdateEdge changes an edge's label or condition.
func (s *Session) UpdateEdge(ctx context.Context, id string, patch procflow.EdgePatch) error {
	if !s.graph.UpdateEdge(id, patch) {
		return procflow.ErrEdgeNotFound
	}
	s.mirror(ctx)
	return nil
}

// RemoveEdge deletes an edge.
func (s *Session) RemoveEdge(ctx context.Context, id string) error {
	if !s.graph.RemoveEdge(id) {
		return procflow.ErrEdgeNotFound
	}
	s.mirror(ctx)
	return nil
}

// Select selects a node or an edge; both empty clears the selection.
func (s *Session) Select(nodeID, edgeID string) error {
	switch {
	case nodeID != "":
		if !s.graph.SelectNode(nodeID) {
			return procflow.ErrNodeNotFound
		}
	case edgeID != "":
		if !s.graph.SelectEdge(edgeID) {
			return procflow.ErrEdgeNotFound
		}
	default:
		s.graph.SelectNode("")
		s.graph.SelectEdge("")
	}
	return nil
}

// Reset empties the graph and forgets the saved workflow identity.
func (s *Session) Reset(ctx context.Context) {
	s.graph.Reset()
	s.mirror(ctx)
}

// ApplyPlan applies an action plan. Only one plan runs per session at a time.
func (s *Session) ApplyPlan(ctx context.Context, plan []procflow.Action) (procflow.ApplyResult, error) {
	s.planMu.Lock()
	defer s.planMu.Unlock()

	res, err := s.applier.Apply(s.graph, plan)
	if err != nil {
		s.deps.recorder.PlanRejected()
		return res, err
	}
	s.deps.recorder.PlanApplied(len(res.AddedNodes), len(res.AddedEdges), len(res.Dropped))
	if len(res.Dropped) > 0 {
		s.deps.logger.Info("plan connections dropped", zap.String("session", s.id), zap.Int("dropped", len(res.Dropped)))
	}
	s.mirror(ctx)
	return res, nil
}

// Compile lowers the current graph into a process definition named name.
func (s *Session) Compile(name string) (*bpmn.Result, error) {
	snap := s.graph.Snapshot()
	return s.compile(snap, name)
}

func (s *Session) compile(snap procflow.Snapshot, name string) (*bpmn.Result, error) {
	res, err := bpmn.Compile(snap.Nodes, snap.Edges, name, s.deps.opts.Compile)
	if err != nil {
		s.deps.recorder.Compiled(false, 0, 0, 0)
		return nil, err
	}
	s.deps.recorder.Compiled(true, len(res.OmittedNodes), len(res.OmittedFlows), len(res.DroppedConditions))
	if !res.Lossless() {
		s.deps.logger.Warn("compiled document is incomplete",
			zap.String("session", s.id),
			zap.Strings("omitted_nodes", res.OmittedNodes),
			zap.Strings("omitted_flows", res.OmittedFlows),
			zap.Strings("dropped_conditions", res.DroppedConditions),
		)
	}
	return res, nil
}

// Save compiles the graph and stores it as the next version of name. An
// empty name reuses the name of the saved workflow. The graph is captured
// when Save is called; edits made while the save is in flight are not part
// of the stored document.
func (s *Session) Save(ctx context.Context, name string) (*procflow.Document, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap := s.graph.Snapshot()
	if name == "" {
		if !snap.Metadata.Saved() {
			return nil, ErrNameRequired
		}
		name = *snap.Metadata.Name
	}

	compiled, err := s.compile(snap, name)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("workspace: encode graph: %w", err)
	}

	doc, meta, err := s.deps.versions.Save(ctx, snap.Metadata, name, procflow.Document{JSON: body, XML: compiled.XML})
	if err != nil {
		return nil, err
	}
	s.graph.SetMetadata(meta)
	s.mirror(ctx)
	return doc, nil
}

// Load replaces the graph with a persisted document. The workflow identity
// is taken from the document's versioned name.
func (s *Session) Load(ctx context.Context, docID string) (procflow.Snapshot, error) {
	doc, err := s.deps.gateway.GetWorkflow(ctx, docID)
	if err != nil {
		return procflow.Snapshot{}, err
	}
	if doc == nil {
		return procflow.Snapshot{}, procflow.ErrWorkflowNotFound
	}

	var snap procflow.Snapshot
	if err := json.Unmarshal(doc.JSON, &snap); err != nil {
		return procflow.Snapshot{}, fmt.Errorf("workspace: decode document %s: %w", docID, err)
	}
	base, v, ok := version.ParseName(doc.Name)
	if !ok {
		base, v = doc.Name, 1
	}
	id := doc.ID
	snap.Metadata = procflow.Metadata{Name: &base, Version: v, ID: &id}

	s.graph.Restore(snap)
	s.mirror(ctx)
	return s.graph.Snapshot(), nil
}
