package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/procflow"
	"github.com/meikuraledutech/procflow/workspace"
)

// sessionView is the editor state returned for a session.
type sessionView struct {
	ID string `json:"id"`
	procflow.Snapshot
	SelectedNode  *procflow.Node  `json:"selectedNode"`
	SelectedEdge  *procflow.Edge  `json:"selectedEdge"`
	DanglingEdges []procflow.Edge `json:"danglingEdges,omitempty"`
}

func viewOf(sess *workspace.Session) sessionView {
	g := sess.Graph()
	v := sessionView{ID: sess.ID(), Snapshot: g.Snapshot(), DanglingEdges: g.DanglingEdges()}
	if n, ok := g.SelectedNode(); ok {
		v.SelectedNode = &n
	}
	if e, ok := g.SelectedEdge(); ok {
		v.SelectedEdge = &e
	}
	return v
}

func (s *server) createSession(c fiber.Ctx) error {
	sess := s.Registry.Create(c.Context())
	return c.Status(fiber.StatusCreated).JSON(viewOf(sess))
}

func (s *server) getSession(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(viewOf(sess))
}

func (s *server) closeSession(c fiber.Ctx) error {
	if err := s.Registry.Close(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *server) resetSession(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	sess.Reset(c.Context())
	return c.JSON(viewOf(sess))
}

func (s *server) setSelection(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var body struct {
		NodeID string `json:"nodeId"`
		EdgeID string `json:"edgeId"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := sess.Select(body.NodeID, body.EdgeID); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(viewOf(sess))
}

func (s *server) addNode(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var body struct {
		Type     procflow.NodeType `json:"type"`
		Position procflow.Position `json:"position"`
		Data     procflow.NodeData `json:"data"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	n, err := sess.AddNode(c.Context(), body.Type, body.Position, body.Data)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

func (s *server) updateNode(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var body struct {
		procflow.NodeDataPatch
		Position *procflow.Position `json:"position,omitempty"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := sess.UpdateNode(c.Context(), c.Params("node"), body.NodeDataPatch, body.Position); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *server) removeNode(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	cascade := c.Query("cascade") == "true"
	if err := sess.RemoveNode(c.Context(), c.Params("node"), cascade); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *server) connect(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var conn procflow.Connection
	if err := c.Bind().JSON(&conn); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	e, err := sess.Connect(c.Context(), conn)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(e)
}

func (s *server) updateEdge(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var patch procflow.EdgePatch
	if err := c.Bind().JSON(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := sess.UpdateEdge(c.Context(), c.Params("edge"), patch); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *server) removeEdge(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	if err := sess.RemoveEdge(c.Context(), c.Params("edge")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *server) applyPlan(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	plan, err := procflow.ParsePlan(c.Body())
	if err != nil {
		return s.fail(c, err)
	}
	res, err := sess.ApplyPlan(c.Context(), plan)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

// processName picks ?name= or the saved workflow's name.
func processName(c fiber.Ctx, sess *workspace.Session) (string, error) {
	if name := c.Query("name"); name != "" {
		return name, nil
	}
	if meta := sess.Graph().Metadata(); meta.Saved() {
		return *meta.Name, nil
	}
	return "", workspace.ErrNameRequired
}

func (s *server) bpmnXML(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	name, err := processName(c, sess)
	if err != nil {
		return s.fail(c, err)
	}
	res, err := sess.Compile(name)
	if err != nil {
		return s.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	return c.SendString(res.XML)
}

func (s *server) compileReport(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	name, err := processName(c, sess)
	if err != nil {
		return s.fail(c, err)
	}
	res, err := sess.Compile(name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

func (s *server) save(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var body struct {
		Name string `json:"name"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
	}
	doc, err := sess.Save(c.Context(), body.Name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document":         doc,
		"workflowMetadata": sess.Graph().Metadata(),
	})
}

func (s *server) load(c fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	if _, err := sess.Load(c.Context(), c.Params("doc")); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(viewOf(sess))
}
