package procflow

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testApplier(strict bool) *Applier {
	seq := 0
	return &Applier{
		Strict: strict,
		Now:    func() time.Time { return time.UnixMilli(1700000000000) },
		Suffix: func() string {
			seq++
			return fmt.Sprintf("s%03d", seq)
		},
	}
}

func TestApplier_NodeIDFormat(t *testing.T) {
	a := testApplier(false)
	assert.Equal(t, "userTask-1700000000000-s001", a.NodeID(NodeUserTask))

	id := NewApplier(false).NodeID(NodeGateway)
	parts := strings.Split(id, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "gateway", parts[0])
	assert.Len(t, parts[2], 8)
}

func TestApplier_ForwardReferences(t *testing.T) {
	g := NewGraph()
	plan := []Action{
		{Type: ActionConnectNodes, Source: "t1", Target: "t2"},
		{Type: ActionAddNode, TempID: "t1", NodeType: NodeStart, Label: "Start"},
		{Type: ActionConnectNodes, Source: "t2", Target: "t3"},
		{Type: ActionAddNode, TempID: "t2", NodeType: NodeUserTask, Label: "Review"},
		{Type: ActionAddNode, TempID: "t3", NodeType: NodeEnd, Label: "End"},
	}

	res, err := testApplier(false).Apply(g, plan)
	require.NoError(t, err)

	assert.Len(t, res.AddedNodes, 3)
	assert.Len(t, res.AddedEdges, 2)
	assert.Empty(t, res.Dropped)

	edges := g.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, res.NodeIDs["t1"], edges[0].Source)
	assert.Equal(t, res.NodeIDs["t2"], edges[0].Target)
	assert.Equal(t, res.NodeIDs["t3"], edges[1].Target)
	assert.Equal(t, "start-1700000000000-s001", res.NodeIDs["t1"])
}

func TestApplier_ConnectsToExistingNodes(t *testing.T) {
	g := seedGraph(t)
	plan := []Action{
		{Type: ActionAddNode, TempID: "mail", NodeType: NodeEmail, Label: "Notify"},
		{Type: ActionConnectNodes, Source: "task-1", Target: "mail"},
	}

	res, err := testApplier(false).Apply(g, plan)
	require.NoError(t, err)
	require.Len(t, res.AddedEdges, 1)

	edges := g.Edges()
	last := edges[len(edges)-1]
	assert.Equal(t, "task-1", last.Source)
	assert.Equal(t, res.NodeIDs["mail"], last.Target)
}

func TestApplier_DropsUnresolvedConnection(t *testing.T) {
	g := NewGraph()
	plan := []Action{
		{Type: ActionAddNode, TempID: "a", NodeType: NodeStart},
		{Type: ActionAddNode, TempID: "b", NodeType: NodeEnd},
		{Type: ActionConnectNodes, Source: "a", Target: "b"},
		{Type: ActionConnectNodes, Source: "a", Target: "ghost"},
		{Type: ActionConnectNodes, Source: "", Target: "b"},
	}

	res, err := testApplier(false).Apply(g, plan)
	require.NoError(t, err)

	assert.Len(t, g.Edges(), 1)
	assert.Len(t, res.Dropped, 2)
	assert.Equal(t, "ghost", res.Dropped[0].Target)
}

func TestApplier_StrictRejectsBatchUntouched(t *testing.T) {
	g := seedGraph(t)
	before := g.Snapshot()
	plan := []Action{
		{Type: ActionAddNode, TempID: "a", NodeType: NodeTimer},
		{Type: ActionConnectNodes, Source: "a", Target: "ghost"},
	}

	_, err := testApplier(true).Apply(g, plan)
	require.ErrorIs(t, err, ErrUnresolvedRef)
	assert.Equal(t, before, g.Snapshot())
}

func TestApplier_StrictSeesDeletionsInBatch(t *testing.T) {
	g := seedGraph(t)
	plan := []Action{
		{Type: ActionDeleteNode, NodeID: "end-1"},
		{Type: ActionConnectNodes, Source: "start-1", Target: "end-1"},
	}

	_, err := testApplier(true).Apply(g, plan)
	require.ErrorIs(t, err, ErrUnresolvedRef)
	assert.True(t, g.HasNode("end-1"))

	res, err := testApplier(false).Apply(g, plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"end-1"}, res.DeletedNodes)
	assert.Len(t, res.Dropped, 1)
}

func TestApplier_UpdateConfigAndDelete(t *testing.T) {
	g := seedGraph(t)
	plan := []Action{
		{Type: ActionAddNode, TempID: "ai", NodeType: NodeAIAgent, Label: "Summarise", Config: map[string]any{"systemPrompt": "be brief"}},
		{Type: ActionUpdateConfig, NodeID: "ai", Config: map[string]any{"outputVariableName": "summary"}},
		{Type: ActionUpdateConfig, NodeID: "task-1", Config: map[string]any{"formKey": "leave"}},
		{Type: ActionUpdateConfig, NodeID: "missing", Config: map[string]any{"x": 1}},
		{Type: ActionDeleteNode, NodeID: "end-1"},
	}

	res, err := testApplier(false).Apply(g, plan)
	require.NoError(t, err)

	ai, ok := g.Node(res.NodeIDs["ai"])
	require.True(t, ok)
	assert.Equal(t, "be brief", ai.ConfigString("systemPrompt"))
	assert.Equal(t, "summary", ai.ConfigString("outputVariableName"))

	task, _ := g.Node("task-1")
	assert.Equal(t, "bob", task.ConfigString("assignee"))
	assert.Equal(t, "leave", task.ConfigString("formKey"))

	assert.Len(t, res.Skipped, 1)
	assert.False(t, g.HasNode("end-1"))
	assert.Len(t, g.Edges(), 1, "edge into the deleted node is removed")
}

func TestApplier_ActionsBeforeTheirNode(t *testing.T) {
	g := NewGraph()
	plan := []Action{
		{Type: ActionUpdateConfig, NodeID: "a", Config: map[string]any{"assignee": "bob"}},
		{Type: ActionDeleteNode, NodeID: "b"},
		{Type: ActionAddNode, TempID: "a", NodeType: NodeUserTask, Label: "Approve"},
		{Type: ActionAddNode, TempID: "b", NodeType: NodeEnd, Label: "End"},
	}

	res, err := testApplier(false).Apply(g, plan)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, []string{res.NodeIDs["a"]}, res.UpdatedNodes)
	assert.Equal(t, []string{res.NodeIDs["b"]}, res.DeletedNodes)

	a, ok := g.Node(res.NodeIDs["a"])
	require.True(t, ok)
	assert.Equal(t, "bob", a.ConfigString("assignee"))
	assert.False(t, g.HasNode(res.NodeIDs["b"]))
}

func TestApplier_PositionDefaults(t *testing.T) {
	g := NewGraph()
	x, y := 10.0, 20.0
	res, err := testApplier(false).Apply(g, []Action{
		{Type: ActionAddNode, TempID: "a", NodeType: NodeStart, X: &x, Y: &y},
		{Type: ActionAddNode, TempID: "b", NodeType: NodeEnd},
	})
	require.NoError(t, err)

	a, _ := g.Node(res.NodeIDs["a"])
	assert.Equal(t, Position{X: 10, Y: 20}, a.Position)
	b, _ := g.Node(res.NodeIDs["b"])
	assert.Equal(t, Position{X: 250, Y: 220}, b.Position)
}

func TestParsePlan(t *testing.T) {
	plan, err := ParsePlan([]byte(`[
		{"type":"ADD_NODE","tempId":"n1","nodeType":"userTask","label":"Review","x":100,"y":50},
		{"type":"CONNECT_NODES","source":"n1","target":"start-1"},
		{"type":"UPDATE_CONFIG","nodeId":"n1","config":{"assignee":"bob"}},
		{"type":"DELETE_NODE","nodeId":"old"}
	]`))
	require.NoError(t, err)
	require.Len(t, plan, 4)
	assert.Equal(t, NodeUserTask, plan[0].NodeType)
	assert.Equal(t, 100.0, *plan[0].X)
	assert.Equal(t, "bob", plan[2].Config["assignee"])

	cases := map[string]string{
		"not json":         `{"type":`,
		"unknown action":   `[{"type":"RENAME"}]`,
		"unknown nodeType": `[{"type":"ADD_NODE","nodeType":"subprocess"}]`,
		"missing nodeId":   `[{"type":"DELETE_NODE"}]`,
		"duplicate tempId": `[{"type":"ADD_NODE","tempId":"a","nodeType":"end"},{"type":"ADD_NODE","tempId":"a","nodeType":"end"}]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlan([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidPlan)
		})
	}
}

func TestApplier_InvalidPlanLeavesGraph(t *testing.T) {
	g := seedGraph(t)
	before := g.Snapshot()

	_, err := NewApplier(false).Apply(g, []Action{
		{Type: ActionAddNode, TempID: "a", NodeType: NodeStart},
		{Type: "MOVE_NODE"},
	})
	require.ErrorIs(t, err, ErrInvalidPlan)
	assert.Equal(t, before, g.Snapshot())
}

// N ADD_NODE, M CONNECT_NODES and some UPDATE_CONFIG actions over those temp
// ids yield N nodes, M edges drawn from the new ids and every config applied,
// however the actions are ordered.
func TestApplier_PropertyBatchShape(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "nodes")
		g := NewGraph()

		var plan []Action
		for i := 0; i < n; i++ {
			plan = append(plan, Action{Type: ActionAddNode, TempID: fmt.Sprintf("t%d", i), NodeType: rapid.SampledFrom(NodeTypes).Draw(rt, "type")})
		}

		seen := make(map[[2]int]bool)
		m := rapid.IntRange(0, n*n).Draw(rt, "edges")
		for i := 0; i < m; i++ {
			pair := [2]int{rapid.IntRange(0, n-1).Draw(rt, "src"), rapid.IntRange(0, n-1).Draw(rt, "dst")}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			plan = append(plan, Action{Type: ActionConnectNodes, Source: fmt.Sprintf("t%d", pair[0]), Target: fmt.Sprintf("t%d", pair[1])})
		}
		updated := make(map[int]bool)
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(rt, "update") {
				updated[i] = true
				plan = append(plan, Action{Type: ActionUpdateConfig, NodeID: fmt.Sprintf("t%d", i), Config: map[string]any{"seq": i}})
			}
		}
		plan = rapid.Permutation(plan).Draw(rt, "order")

		res, err := NewApplier(false).Apply(g, plan)
		if err != nil {
			rt.Fatalf("apply: %v", err)
		}

		if got := len(g.Nodes()); got != n {
			rt.Fatalf("want %d nodes, got %d", n, got)
		}
		if got := len(g.Edges()); got != len(seen) {
			rt.Fatalf("want %d edges, got %d", len(seen), got)
		}
		if len(res.Skipped) != 0 || len(res.UpdatedNodes) != len(updated) {
			rt.Fatalf("want %d updates and none skipped, got %d updated, %d skipped", len(updated), len(res.UpdatedNodes), len(res.Skipped))
		}
		for i := range updated {
			node, _ := g.Node(res.NodeIDs[fmt.Sprintf("t%d", i)])
			if node.Data.Config["seq"] != i {
				rt.Fatalf("node t%d config not applied: %v", i, node.Data.Config)
			}
		}
		durable := make(map[string]bool)
		for _, id := range res.NodeIDs {
			durable[id] = true
		}
		for _, e := range g.Edges() {
			if !durable[e.Source] || !durable[e.Target] {
				rt.Fatalf("edge %s references a node outside the batch", e.ID)
			}
		}
	})
}
