package procflow

import (
	"maps"
	"sync"
)

// NodeDataPatch is a partial update of NodeData. Nil fields are left as they
// are; a non-nil Config replaces the whole config map.
type NodeDataPatch struct {
	Label       *string        `json:"label,omitempty"`
	Description *string        `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// EdgePatch is a partial update of an edge's label and condition.
type EdgePatch struct {
	Label     *string `json:"label,omitempty"`
	Condition *string `json:"condition,omitempty"`
}

// Graph is the in-memory process graph being edited: nodes, edges, the
// current selection and the identity of the saved workflow it came from.
//
// Nodes live in an arena ordered by insertion and indexed by id. Mutations
// never fail: commands addressing an unknown id are ignored and report false.
// A Graph is safe for concurrent use.
type Graph struct {
	mu sync.RWMutex

	nodes []Node
	index map[string]int
	edges []Edge

	selectedNode string
	selectedEdge string

	meta Metadata
}

// NewGraph returns an empty graph for an unsaved workflow.
func NewGraph() *Graph {
	return &Graph{
		index: make(map[string]int),
		meta:  NewMetadata(),
	}
}

// AddNode appends n. The caller guarantees the id is unique.
func (g *Graph) AddNode(n Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(n)
}

func (g *Graph) addNodeLocked(n Node) {
	g.nodes = append(g.nodes, cloneNode(n))
	g.index[n.ID] = len(g.nodes) - 1
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return cloneNode(g.nodes[i]), true
}

// HasNode reports whether a node with the given id exists.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[id]
	return ok
}

// Nodes returns a copy of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = cloneNode(n)
	}
	return out
}

// Edges returns a copy of all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge{}, g.edges...)
}

// UpdateNodeData merges patch into the data of node id. The selected node is
// read live from the graph, so a selected node reflects the update at once.
func (g *Graph) UpdateNodeData(id string, patch NodeDataPatch) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	i, ok := g.index[id]
	if !ok {
		return false
	}
	d := &g.nodes[i].Data
	if patch.Label != nil {
		d.Label = *patch.Label
	}
	if patch.Description != nil {
		d.Description = *patch.Description
	}
	if patch.Config != nil {
		d.Config = maps.Clone(patch.Config)
	}
	return true
}

// MergeNodeConfig sets every key of cfg in the config of node id, keeping
// keys cfg does not mention.
func (g *Graph) MergeNodeConfig(id string, cfg map[string]any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mergeConfigLocked(id, cfg)
}

func (g *Graph) mergeConfigLocked(id string, cfg map[string]any) bool {
	i, ok := g.index[id]
	if !ok {
		return false
	}
	d := &g.nodes[i].Data
	if d.Config == nil {
		d.Config = make(map[string]any, len(cfg))
	}
	maps.Copy(d.Config, cfg)
	return true
}

// SetPosition moves node id on the canvas.
func (g *Graph) SetPosition(id string, pos Position) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	i, ok := g.index[id]
	if !ok {
		return false
	}
	g.nodes[i].Position = pos
	return true
}

// RemoveNode deletes node id and nothing else. Edges that reference it stay
// in the graph; DanglingEdges reports them.
func (g *Graph) RemoveNode(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeNodeLocked(id)
}

// DeleteNode deletes node id together with every edge that starts or ends at
// it. It returns the number of edges removed.
func (g *Graph) DeleteNode(id string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deleteNodeLocked(id)
}

func (g *Graph) deleteNodeLocked(id string) (int, bool) {
	if !g.removeNodeLocked(id) {
		return 0, false
	}
	kept := g.edges[:0]
	removed := 0
	for _, e := range g.edges {
		if e.Source == id || e.Target == id {
			if g.selectedEdge == e.ID {
				g.selectedEdge = ""
			}
			removed++
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
	return removed, true
}

func (g *Graph) removeNodeLocked(id string) bool {
	i, ok := g.index[id]
	if !ok {
		return false
	}
	g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
	delete(g.index, id)
	for j := i; j < len(g.nodes); j++ {
		g.index[g.nodes[j].ID] = j
	}
	if g.selectedNode == id {
		g.selectedNode = ""
	}
	return true
}

// Connect appends an edge for c. Connecting a pair that is already
// connected is a no-op and returns the existing edge with false.
func (g *Graph) Connect(c Connection) (Edge, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectLocked(c)
}

func (g *Graph) connectLocked(c Connection) (Edge, bool) {
	for _, e := range g.edges {
		if e.Source == c.Source && e.Target == c.Target {
			return e, false
		}
	}
	e := Edge{
		ID:     EdgeID(c.Source, c.Target),
		Source: c.Source,
		Target: c.Target,
		Type:   "smoothstep",
		Label:  c.Label,
	}
	g.edges = append(g.edges, e)
	return e, true
}

// UpdateEdge applies patch to edge id.
func (g *Graph) UpdateEdge(id string, patch EdgePatch) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.edges {
		if g.edges[i].ID != id {
			continue
		}
		if patch.Label != nil {
			g.edges[i].Label = *patch.Label
		}
		if patch.Condition != nil {
			g.edges[i].Data.Condition = *patch.Condition
		}
		return true
	}
	return false
}

// RemoveEdge deletes edge id.
func (g *Graph) RemoveEdge(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.edges {
		if e.ID == id {
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			if g.selectedEdge == id {
				g.selectedEdge = ""
			}
			return true
		}
	}
	return false
}

// DanglingEdges returns the edges whose source or target no longer exists.
func (g *Graph) DanglingEdges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for _, e := range g.edges {
		_, src := g.index[e.Source]
		_, dst := g.index[e.Target]
		if !src || !dst {
			out = append(out, e)
		}
	}
	return out
}

// SelectNode selects node id and clears any selected edge. An empty id
// clears the node selection.
func (g *Graph) SelectNode(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == "" {
		g.selectedNode = ""
		return true
	}
	if _, ok := g.index[id]; !ok {
		return false
	}
	g.selectedNode = id
	g.selectedEdge = ""
	return true
}

// SelectEdge selects edge id and clears any selected node. An empty id
// clears the edge selection.
func (g *Graph) SelectEdge(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == "" {
		g.selectedEdge = ""
		return true
	}
	for _, e := range g.edges {
		if e.ID == id {
			g.selectedEdge = id
			g.selectedNode = ""
			return true
		}
	}
	return false
}

// SelectedNode returns the currently selected node.
func (g *Graph) SelectedNode() (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.index[g.selectedNode]
	if g.selectedNode == "" || !ok {
		return Node{}, false
	}
	return cloneNode(g.nodes[i]), true
}

// SelectedEdge returns the currently selected edge.
func (g *Graph) SelectedEdge() (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.selectedEdge == "" {
		return Edge{}, false
	}
	for _, e := range g.edges {
		if e.ID == g.selectedEdge {
			return e, true
		}
	}
	return Edge{}, false
}

// Metadata returns the identity of the workflow being edited.
func (g *Graph) Metadata() Metadata {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.meta
}

// SetMetadata replaces the workflow identity, typically after a save.
func (g *Graph) SetMetadata(m Metadata) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.meta = m
}

// Reset empties the graph and marks the workflow as unsaved.
func (g *Graph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nil
	g.edges = nil
	g.index = make(map[string]int)
	g.selectedNode = ""
	g.selectedEdge = ""
	g.meta = NewMetadata()
}

// Snapshot returns a copy of the graph state.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Snapshot{
		Nodes:    make([]Node, len(g.nodes)),
		Edges:    append([]Edge{}, g.edges...),
		Metadata: g.meta,
	}
	for i, n := range g.nodes {
		s.Nodes[i] = cloneNode(n)
	}
	return s
}

// Restore replaces the whole graph with s and clears the selection.
func (g *Graph) Restore(s Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nil
	g.index = make(map[string]int, len(s.Nodes))
	for _, n := range s.Nodes {
		g.addNodeLocked(n)
	}
	g.edges = append([]Edge{}, s.Edges...)
	g.selectedNode = ""
	g.selectedEdge = ""
	g.meta = s.Metadata
	if g.meta.Version < 1 {
		g.meta.Version = 1
	}
}

func cloneNode(n Node) Node {
	n.Data.Config = maps.Clone(n.Data.Config)
	return n
}
