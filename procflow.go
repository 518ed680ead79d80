package procflow

import (
	"encoding/json"
	"fmt"
)

// NodeType identifies the kind of step a node represents.
type NodeType string

const (
	NodeStart         NodeType = "start"
	NodeEnd           NodeType = "end"
	NodeUserTask      NodeType = "userTask"
	NodeServiceTask   NodeType = "serviceTask"
	NodeGateway       NodeType = "gateway"
	NodeAIAgent       NodeType = "aiAgent"
	NodeEmail         NodeType = "email"
	NodeTimer         NodeType = "timer"
	NodeRulesEngine   NodeType = "rulesEngine"
	NodeDynamicRouter NodeType = "dynamicRouter"
	NodeTask          NodeType = "task"
)

// NodeTypes lists every known node type in palette order.
var NodeTypes = []NodeType{
	NodeStart, NodeEnd, NodeUserTask, NodeServiceTask, NodeGateway, NodeAIAgent,
	NodeEmail, NodeTimer, NodeRulesEngine, NodeDynamicRouter, NodeTask,
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseNodeType converts s into a NodeType, rejecting unknown values.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownNodeType, s)
	}
	return t, nil
}

// UnmarshalJSON rejects node types outside the closed set.
func (t *NodeType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseNodeType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Position is the canvas location of a node. Presentation only.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData holds the editable payload of a node.
// Config is type-specific and opaque to the graph; only the compiler reads it.
type NodeData struct {
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

// Node is a step in the process graph.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// ConfigString returns the string value stored under key in the node config,
// or "" when it is absent or not a string.
func (n Node) ConfigString(key string) string {
	s, _ := n.Data.Config[key].(string)
	return s
}

// EdgeData carries the branch condition evaluated by the runtime engine.
type EdgeData struct {
	Condition string `json:"condition,omitempty"`
}

// Edge is a directed connection between two nodes.
// Type is the visual routing style and carries no meaning for compilation.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   string   `json:"type,omitempty"`
	Label  string   `json:"label,omitempty"`
	Data   EdgeData `json:"data"`
}

// Connection is a source/target pair as produced by the editor when the
// user drags a new edge.
type Connection struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// EdgeID derives the edge id for a connection from its endpoints.
func EdgeID(source, target string) string {
	return "edge-" + source + "-" + target
}

// Metadata identifies the saved workflow the graph belongs to.
// A nil Name marks a workflow that has never been saved.
type Metadata struct {
	Name    *string `json:"name"`
	Version int     `json:"version"`
	ID      *string `json:"id"`
}

// NewMetadata returns the metadata of an unsaved workflow.
func NewMetadata() Metadata {
	return Metadata{Version: 1}
}

// Saved reports whether the workflow has been persisted at least once.
func (m Metadata) Saved() bool {
	return m.Name != nil
}

// Snapshot is the serialisable state of a graph: what gets mirrored into the
// snapshot slot and stored as the JSON body of a persisted document.
type Snapshot struct {
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Metadata Metadata `json:"workflowMetadata"`
}
