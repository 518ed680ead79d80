package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/meikuraledutech/procflow"
)

func (s *server) listWorkflows(c fiber.Ctx) error {
	docs, err := s.Gateway.ListWorkflows(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(docs)
}

func (s *server) getWorkflow(c fiber.Ctx) error {
	doc, err := s.Gateway.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	if doc == nil {
		return s.fail(c, procflow.ErrWorkflowNotFound)
	}
	return c.JSON(doc)
}

func (s *server) deleteWorkflow(c fiber.Ctx) error {
	if err := s.Gateway.DeleteWorkflow(c.Context(), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
