package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/events"
	"github.com/spec-kit/ticket-sla/internal/repository"
	"github.com/spec-kit/ticket-sla/internal/workflow"
	apperrors "github.com/spec-kit/ticket-sla/pkg/util/errorutil"
)

// maxTransitionAttempts bounds the retry loop around a contended ticket transition.
const maxTransitionAttempts = 3

// LifecycleService drives tickets through their workflow and records every move in the ledger.
type LifecycleService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	teams      repository.TeamRepository
	staff      repository.StaffRepository
	graphs     workflow.GraphSource
	ledger     *LedgerService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// LifecycleDependencies bundles repositories for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	TeamRepo    repository.TeamRepository
	StaffRepo   repository.StaffRepository
	Graphs      workflow.GraphSource
	Ledger      *LedgerService
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// OpenTicketInput describes ticket creation payload.
// InitialStateID is optional; the first initial state by id is used when empty.
type OpenTicketInput struct {
	WorkflowID     string
	InitialStateID string
	Title          string
	Description    string
	AssigneeID     *string
	TeamID         *string
}

// MessageInput describes a message appended to a ticket thread.
type MessageInput struct {
	AuthorType domain.MessageAuthorType
	AuthorID   *string
	Body       string
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		tickets:    deps.TicketRepo,
		messages:   deps.MessageRepo,
		teams:      deps.TeamRepo,
		staff:      deps.StaffRepo,
		graphs:     deps.Graphs,
		ledger:     deps.Ledger,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// OpenTicket creates a ticket in an initial state of its workflow and records the creation entry.
func (s *LifecycleService) OpenTicket(ctx context.Context, actor events.Actor, input OpenTicketInput) (*domain.Ticket, *domain.TransitionHistoryEntry, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, nil, apperrors.NewValidationError("title required", nil)
	}
	g, err := s.graphs.Graph(ctx, input.WorkflowID)
	if err != nil {
		return nil, nil, err
	}
	initial, err := pickInitialState(g, input.InitialStateID)
	if err != nil {
		return nil, nil, err
	}
	if input.TeamID != nil {
		team, err := s.teams.GetByID(ctx, *input.TeamID)
		if err != nil {
			return nil, nil, mapRepoError("team", *input.TeamID, err)
		}
		if !team.IsActive {
			return nil, nil, apperrors.NewValidationError("team inactive", map[string]any{"team_id": team.ID})
		}
	}
	if input.AssigneeID != nil {
		if _, err := s.staff.GetByID(ctx, *input.AssigneeID); err != nil {
			return nil, nil, mapRepoError("staff member", *input.AssigneeID, err)
		}
	}

	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		ExternalKey: generateTicketKey(),
		WorkflowID:  input.WorkflowID,
		AssigneeID:  input.AssigneeID,
		TeamID:      input.TeamID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, nil, err
	}
	entry, err := s.ledger.RecordCreation(ctx, ticket, initial.ID)
	if err != nil {
		return nil, nil, err
	}
	ticket, err = s.ticket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			WorkflowID: ticket.WorkflowID,
			StateID:    initial.ID,
			EntryID:    entry.ID,
			TeamID:     ticket.TeamID,
			Title:      ticket.Title,
			SLADueDate: entry.SLADueDate,
		},
	})
	return ticket, entry, nil
}

func pickInitialState(g *workflow.Graph, requested string) (domain.WorkflowState, error) {
	initials := g.InitialStates()
	if requested == "" {
		return initials[0], nil
	}
	for _, st := range initials {
		if st.ID == requested || st.Name == requested {
			return st, nil
		}
	}
	return domain.WorkflowState{}, apperrors.NewValidationError("not an initial state", map[string]any{"state": requested})
}

// Transition moves a ticket to toStateID. A write that lost a race against another transition is
// retried against the fresh ticket state; after maxTransitionAttempts the caller gets ConcurrentModification.
func (s *LifecycleService) Transition(ctx context.Context, actor events.Actor, ticketID, toStateID string) (*domain.Ticket, *domain.TransitionHistoryEntry, error) {
	var lastErr error
	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		ticket, err := s.ticket(ctx, ticketID)
		if err != nil {
			return nil, nil, err
		}
		if ticket.CurrentStateID == nil {
			return nil, nil, apperrors.NewConflict("ticket has no current state", map[string]any{"ticket_id": ticketID})
		}
		from := *ticket.CurrentStateID

		g, err := s.graphs.Graph(ctx, ticket.WorkflowID)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := g.State(toStateID); !ok {
			return nil, nil, apperrors.NewNotFound("workflow state", map[string]any{"id": toStateID})
		}
		if !g.CanTransition(from, toStateID) {
			return nil, nil, apperrors.NewValidationError("transition not allowed", map[string]any{
				"from_state_id": from,
				"to_state_id":   toStateID,
				"allowed":       g.Targets(from, false),
			})
		}

		entry, err := s.ledger.RecordTransition(ctx, ticket, from, toStateID)
		if errors.Is(err, repository.ErrStaleState) {
			lastErr = err
			s.logger.Debug("ticket moved concurrently; retrying",
				zap.String("ticket_id", ticketID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		updated, err := s.ticket(ctx, ticketID)
		if err != nil {
			return nil, nil, err
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketTransitioned,
			TicketID: ticketID,
			Actor:    actor,
			Payload: events.TicketTransitionedPayload{
				FromStateID: from,
				ToStateID:   toStateID,
				EntryID:     entry.ID,
				SLADueDate:  entry.SLADueDate,
				Completed:   updated.IsCompleted,
			},
		})
		return updated, entry, nil
	}
	return nil, nil, apperrors.NewConcurrentModification("ticket was modified concurrently",
		map[string]any{"ticket_id": ticketID, "attempts": maxTransitionAttempts}, lastErr)
}

// AddMessage appends a message to a ticket and announces it for health scoring.
func (s *LifecycleService) AddMessage(ctx context.Context, actor events.Actor, ticketID string, input MessageInput) (*domain.TicketMessage, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}
	switch input.AuthorType {
	case domain.AuthorTypeCustomer, domain.AuthorTypeStaff, domain.AuthorTypeSystem:
	default:
		return nil, apperrors.NewValidationError("unknown author type", map[string]any{"author_type": input.AuthorType})
	}
	if _, err := s.ticket(ctx, ticketID); err != nil {
		return nil, err
	}

	msg := &domain.TicketMessage{
		ID:         uuid.NewString(),
		TicketID:   ticketID,
		AuthorType: input.AuthorType,
		AuthorID:   input.AuthorID,
		Body:       body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticketID,
		Actor:    actor,
		Payload: events.TicketMessageAddedPayload{
			MessageID:          msg.ID,
			AuthorType:         msg.AuthorType,
			AuthorID:           msg.AuthorID,
			Body:               msg.Body,
			IsCustomerResponse: msg.IsCustomerResponse(),
		},
	})
	return msg, nil
}

// History returns the ledger transcript of a ticket.
func (s *LifecycleService) History(ctx context.Context, ticketID string) ([]domain.TransitionHistoryEntry, error) {
	if _, err := s.ticket(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, ticketID)
}

// Ticket returns a live ticket.
func (s *LifecycleService) Ticket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.ticket(ctx, ticketID)
}

func (s *LifecycleService) ticket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError("ticket", id, err)
	}
	if ticket.DeletedAt != nil {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	return ticket, nil
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
