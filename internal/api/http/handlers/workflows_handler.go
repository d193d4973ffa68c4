package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sla/internal/api/dto"
	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/service"
	apperrors "github.com/spec-kit/ticket-sla/pkg/util/errorutil"
)

// WorkflowsHandler manages workflow graphs.
type WorkflowsHandler struct {
	service *service.WorkflowService
}

// NewWorkflowsHandler constructs handler.
func NewWorkflowsHandler(workflowService *service.WorkflowService) *WorkflowsHandler {
	return &WorkflowsHandler{service: workflowService}
}

// Create POST /workflows.
func (h *WorkflowsHandler) Create(c *fiber.Ctx) error {
	var def domain.WorkflowDefinition
	if err := c.BodyParser(&def); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	wf, g, err := h.service.CreateWorkflow(c.UserContext(), def)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf, g)})
}

// Get GET /workflows/:id.
func (h *WorkflowsHandler) Get(c *fiber.Ctx) error {
	wf, g, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf, g)})
}

// Clone POST /workflows/:id/clone.
func (h *WorkflowsHandler) Clone(c *fiber.Ctx) error {
	var req dto.CloneWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	wf, g, err := h.service.CloneWorkflow(c.UserContext(), c.Params("id"), req.Name)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf, g)})
}

// SaveGraph PUT /workflows/:id/graph.
func (h *WorkflowsHandler) SaveGraph(c *fiber.Ctx) error {
	var def domain.WorkflowDefinition
	if err := c.BodyParser(&def); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	g, err := h.service.SaveGraph(c.UserContext(), c.Params("id"), def)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkflowResponse(nil, g)})
}

// Delete DELETE /workflows/:id.
func (h *WorkflowsHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.DeleteWorkflow(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// DeleteState DELETE /workflows/:id/states/:stateId.
func (h *WorkflowsHandler) DeleteState(c *fiber.Ctx) error {
	if err := h.service.DeleteState(c.UserContext(), c.Params("id"), c.Params("stateId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// DeleteTransition DELETE /workflows/:id/transitions/:transitionId.
func (h *WorkflowsHandler) DeleteTransition(c *fiber.Ctx) error {
	if err := h.service.DeleteTransition(c.UserContext(), c.Params("id"), c.Params("transitionId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
