package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/procflow"
	"github.com/meikuraledutech/procflow/memory"
	"github.com/meikuraledutech/procflow/metrics"
	"github.com/meikuraledutech/procflow/version"
	"github.com/meikuraledutech/procflow/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newApp(t *testing.T) (*fiber.App, *memory.Store) {
	t.Helper()
	logger := zap.NewNop()
	gw := memory.New()
	m := metrics.NewCollector("procflow_test")
	versions := version.NewController(gw, logger).WithRecorder(m)
	reg := workspace.NewRegistry(gw, versions, nil, logger, workspace.Options{}).WithRecorder(m)
	return New(Deps{Registry: reg, Gateway: gw, Metrics: m.Handler(), Logger: logger}), gw
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func createSession(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, body := do(t, app, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var v struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &v))
	require.NotEmpty(t, v.ID)
	return v.ID
}

const leaveRequest = `[
	{"type":"ADD_NODE","tempId":"s","nodeType":"start","label":"Start"},
	{"type":"ADD_NODE","tempId":"t","nodeType":"userTask","label":"Approve","config":{"assignee":"bob"}},
	{"type":"ADD_NODE","tempId":"e","nodeType":"end","label":"End"},
	{"type":"CONNECT_NODES","source":"s","target":"t"},
	{"type":"CONNECT_NODES","source":"t","target":"e"}
]`

func TestAPI_PlanCompileSave(t *testing.T) {
	app, gw := newApp(t)
	id := createSession(t, app)

	resp, body := do(t, app, http.MethodPost, "/sessions/"+id+"/plan", leaveRequest)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res procflow.ApplyResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Len(t, res.AddedNodes, 3)
	assert.Len(t, res.AddedEdges, 2)

	resp, body = do(t, app, http.MethodGet, "/sessions/"+id+"/bpmn", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))

	resp, body = do(t, app, http.MethodGet, "/sessions/"+id+"/bpmn?name=Leave%20Request", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/xml")
	assert.Contains(t, string(body), `<userTask id="`)
	assert.Contains(t, string(body), `flowable:assignee="bob"`)

	resp, body = do(t, app, http.MethodPost, "/sessions/"+id+"/save", `{"name":"Leave Request"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var saved struct {
		Document procflow.Document `json:"document"`
		Meta     procflow.Metadata `json:"workflowMetadata"`
	}
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.Equal(t, "Leave Request v1", saved.Document.Name)
	assert.Equal(t, 1, saved.Meta.Version)

	// The saved name is reused when the body is empty.
	resp, body = do(t, app, http.MethodPost, "/sessions/"+id+"/save", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	docs, err := gw.ListWorkflows(t.Context())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Leave Request v2", docs[1].Name)

	resp, body = do(t, app, http.MethodGet, "/workflows", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []procflow.Document
	require.NoError(t, json.Unmarshal(body, &listed))
	assert.Len(t, listed, 2)

	resp, _ = do(t, app, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_InvalidPlan(t *testing.T) {
	app, _ := newApp(t)
	id := createSession(t, app)

	resp, body := do(t, app, http.MethodPost, "/sessions/"+id+"/plan", `[{"type":"EXPLODE"}]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "error")

	resp, _ = do(t, app, http.MethodPost, "/sessions/"+id+"/plan", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_EditingRoutes(t *testing.T) {
	app, _ := newApp(t)
	id := createSession(t, app)
	base := "/sessions/" + id

	resp, body := do(t, app, http.MethodPost, base+"/nodes", `{"type":"start","position":{"x":1,"y":2},"data":{"label":"Start"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var start procflow.Node
	require.NoError(t, json.Unmarshal(body, &start))

	resp, body = do(t, app, http.MethodPost, base+"/nodes", `{"type":"end","data":{"label":"End"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var end procflow.Node
	require.NoError(t, json.Unmarshal(body, &end))

	resp, _ = do(t, app, http.MethodPost, base+"/nodes", `{"type":"banana"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, app, http.MethodPost, base+"/edges", `{"source":"`+start.ID+`","target":"`+end.ID+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var edge procflow.Edge
	require.NoError(t, json.Unmarshal(body, &edge))
	assert.Equal(t, procflow.EdgeID(start.ID, end.ID), edge.ID)

	resp, _ = do(t, app, http.MethodPost, base+"/edges", `{"source":"`+start.ID+`","target":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPatch, base+"/nodes/"+start.ID, `{"label":"Begin"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPatch, base+"/edges/"+edge.ID, `{"label":"go"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, app, http.MethodPut, base+"/selection", `{"nodeId":"`+start.ID+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view struct {
		Nodes        []procflow.Node `json:"nodes"`
		SelectedNode *procflow.Node  `json:"selectedNode"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	require.NotNil(t, view.SelectedNode)
	assert.Equal(t, "Begin", view.SelectedNode.Data.Label)

	// Non-cascading removal leaves the edge dangling.
	resp, _ = do(t, app, http.MethodDelete, base+"/nodes/"+end.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, body = do(t, app, http.MethodGet, base, "")
	var after struct {
		DanglingEdges []procflow.Edge `json:"danglingEdges"`
	}
	require.NoError(t, json.Unmarshal(body, &after))
	assert.Len(t, after.DanglingEdges, 1)

	resp, _ = do(t, app, http.MethodDelete, base+"/edges/"+edge.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, app, http.MethodDelete, base+"/edges/"+edge.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, base+"/reset", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, app, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, app, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Workflows(t *testing.T) {
	app, gw := newApp(t)

	resp, _ := do(t, app, http.MethodGet, "/workflows/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	doc, err := gw.CreateWorkflow(t.Context(), &procflow.Document{Name: "Onboarding v1", JSON: json.RawMessage(`{"nodes":[],"edges":[]}`)})
	require.NoError(t, err)

	id := createSession(t, app)
	resp, body := do(t, app, http.MethodPost, "/sessions/"+id+"/load/"+doc.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var view struct {
		Meta procflow.Metadata `json:"workflowMetadata"`
	}
	require.NoError(t, json.Unmarshal(body, &view))
	require.NotNil(t, view.Meta.Name)
	assert.Equal(t, "Onboarding", *view.Meta.Name)
	assert.Equal(t, 1, view.Meta.Version)

	resp, _ = do(t, app, http.MethodGet, "/workflows/"+doc.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, app, http.MethodDelete, "/workflows/"+doc.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, app, http.MethodGet, "/workflows/"+doc.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
