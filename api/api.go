// Package api exposes workspace sessions and persisted workflows over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/meikuraledutech/procflow"
	"github.com/meikuraledutech/procflow/bpmn"
	"github.com/meikuraledutech/procflow/workspace"
	"go.uber.org/zap"
)

// Schema is implemented by gateways that manage their own tables.
type Schema interface {
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error
}

// Deps are the collaborators the API serves.
type Deps struct {
	Registry *workspace.Registry
	Gateway  procflow.Gateway
	// Schema enables /schema when non-nil.
	Schema Schema
	// Metrics is served on /metrics when non-nil.
	Metrics http.Handler
	Logger  *zap.Logger
}

type server struct {
	Deps
	logger *zap.Logger
}

// New builds the fiber app with every route registered.
func New(d Deps) *fiber.App {
	s := &server{Deps: d, logger: d.Logger.With(zap.String("component", "api"))}
	app := fiber.New()
	app.Use(s.logRequests)

	// ── Schema ────────────────────────────────────────────────────────
	if d.Schema != nil {
		app.Post("/schema", func(c fiber.Ctx) error {
			if err := d.Schema.CreateSchema(c.Context()); err != nil {
				return s.fail(c, err)
			}
			return c.JSON(fiber.Map{"message": "schema created"})
		})
		app.Delete("/schema", func(c fiber.Ctx) error {
			if err := d.Schema.DropSchema(c.Context()); err != nil {
				return s.fail(c, err)
			}
			return c.JSON(fiber.Map{"message": "schema dropped"})
		})
	}

	// ── Sessions ──────────────────────────────────────────────────────
	app.Post("/sessions", s.createSession)
	app.Get("/sessions/:id", s.getSession)
	app.Delete("/sessions/:id", s.closeSession)
	app.Post("/sessions/:id/reset", s.resetSession)
	app.Put("/sessions/:id/selection", s.setSelection)

	// ── Graph editing ─────────────────────────────────────────────────
	app.Post("/sessions/:id/nodes", s.addNode)
	app.Patch("/sessions/:id/nodes/:node", s.updateNode)
	app.Delete("/sessions/:id/nodes/:node", s.removeNode)
	app.Post("/sessions/:id/edges", s.connect)
	app.Patch("/sessions/:id/edges/:edge", s.updateEdge)
	app.Delete("/sessions/:id/edges/:edge", s.removeEdge)

	// ── Plans, compilation, versions ──────────────────────────────────
	app.Post("/sessions/:id/plan", s.applyPlan)
	app.Get("/sessions/:id/bpmn", s.bpmnXML)
	app.Get("/sessions/:id/compile", s.compileReport)
	app.Post("/sessions/:id/save", s.save)
	app.Post("/sessions/:id/load/:doc", s.load)

	// ── Persisted workflows ───────────────────────────────────────────
	app.Get("/workflows", s.listWorkflows)
	app.Get("/workflows/:id", s.getWorkflow)
	app.Delete("/workflows/:id", s.deleteWorkflow)

	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics))
	}

	return app
}

func (s *server) logRequests(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("took", time.Since(start)),
	)
	return err
}

// fail maps domain errors onto HTTP status codes.
func (s *server) fail(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, workspace.ErrSessionNotFound),
		errors.Is(err, procflow.ErrNodeNotFound),
		errors.Is(err, procflow.ErrEdgeNotFound),
		errors.Is(err, procflow.ErrWorkflowNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, procflow.ErrInvalidPlan),
		errors.Is(err, procflow.ErrUnknownNodeType),
		errors.Is(err, workspace.ErrNameRequired):
		status = fiber.StatusBadRequest
	case errors.Is(err, procflow.ErrUnresolvedRef),
		errors.Is(err, bpmn.ErrUnsupportedNode),
		errors.Is(err, bpmn.ErrDanglingFlow),
		errors.Is(err, bpmn.ErrDuplicateID):
		status = fiber.StatusUnprocessableEntity
	}
	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (s *server) session(c fiber.Ctx) (*workspace.Session, error) {
	return s.Registry.Open(c.Context(), c.Params("id"))
}
