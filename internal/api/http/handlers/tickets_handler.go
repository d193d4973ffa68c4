package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sla/internal/api/dto"
	"github.com/spec-kit/ticket-sla/internal/auth"
	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/events"
	"github.com/spec-kit/ticket-sla/internal/service"
	apperrors "github.com/spec-kit/ticket-sla/pkg/util/errorutil"
)

// TicketsHandler manages ticket lifecycle endpoints for staff.
type TicketsHandler struct {
	service *service.LifecycleService
	health  *service.HealthScorer
}

// NewTicketsHandler constructs handler. health may be nil when scoring is disabled.
func NewTicketsHandler(lifecycle *service.LifecycleService, health *service.HealthScorer) *TicketsHandler {
	return &TicketsHandler{service: lifecycle, health: health}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.WorkflowID == "" || strings.TrimSpace(req.Title) == "" {
		return apperrors.NewValidationError("workflow_id and title required", nil)
	}

	ticket, entry, err := h.service.OpenTicket(c.UserContext(), actor, service.OpenTicketInput{
		WorkflowID:     req.WorkflowID,
		InitialStateID: req.InitialStateID,
		Title:          req.Title,
		Description:    req.Description,
		AssigneeID:     req.AssigneeID,
		TeamID:         req.TeamID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"ticket": dto.NewTicketResponse(ticket),
		"entry":  dto.NewHistoryEntryResponse(entry),
	}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.Ticket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Transition POST /tickets/:id/transitions.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ToStateID == "" {
		return apperrors.NewValidationError("to_state_id required", nil)
	}

	ticket, entry, err := h.service.Transition(c.UserContext(), actor, c.Params("id"), req.ToStateID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket": dto.NewTicketResponse(ticket),
		"entry":  dto.NewHistoryEntryResponse(entry),
	}})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	entries, err := h.service.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponse(entries)})
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	actor, err := staffActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.MessageInput{AuthorType: req.AuthorType, Body: req.Body}
	if input.AuthorType == "" {
		input.AuthorType = domain.AuthorTypeStaff
	}
	if input.AuthorType == domain.AuthorTypeStaff {
		input.AuthorID = actor.StaffID
	}

	msg, err := h.service.AddMessage(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketMessageResponse(msg)})
}

// Health GET /tickets/:id/health.
func (h *TicketsHandler) Health(c *fiber.Ctx) error {
	if h.health == nil {
		return apperrors.NewNotFound("conversation health", map[string]any{"reason": "scoring disabled"})
	}
	rec, err := h.health.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewConversationHealthResponse(rec)})
}

func staffActor(c *fiber.Ctx) (events.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return events.Actor{}, apperrors.NewUnauthorized("staff required")
	}
	id := principal.Staff.ID
	return events.Actor{Type: domain.SubjectTypeStaff, StaffID: &id}, nil
}
