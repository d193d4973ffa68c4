package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/observability"
	"github.com/spec-kit/ticket-sla/internal/repository"
	"github.com/spec-kit/ticket-sla/internal/workflow"
	apperrors "github.com/spec-kit/ticket-sla/pkg/util/errorutil"
)

// LedgerService appends to and queries the per-ticket transition ledger.
type LedgerService struct {
	history repository.TransitionHistoryRepository
	graphs  workflow.GraphSource
	logger  *zap.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// LedgerDependencies bundles collaborators for the ledger.
type LedgerDependencies struct {
	HistoryRepo repository.TransitionHistoryRepository
	Graphs      workflow.GraphSource
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Now         func() time.Time
}

// NewLedgerService constructs the service.
func NewLedgerService(deps LedgerDependencies) *LedgerService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &LedgerService{
		history: deps.HistoryRepo,
		graphs:  deps.Graphs,
		logger:  logger,
		metrics: deps.Metrics,
		tracer:  otel.Tracer(observability.TracerName),
		now:     now,
	}
}

// RecordCreation writes the first ledger entry of ticket and places it in initialStateID.
func (s *LedgerService) RecordCreation(ctx context.Context, ticket *domain.Ticket, initialStateID string) (*domain.TransitionHistoryEntry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.RecordCreation",
		trace.WithAttributes(attribute.String("ticket.id", ticket.ID)))
	defer span.End()

	return s.append(ctx, ticket, nil, initialStateID, domain.EventTicketCreatedName)
}

// RecordTransition writes an entry for ticket moving fromStateID -> toStateID. Earlier entries are
// left as they are; when toStateID is final the ticket is completed in the same write.
func (s *LedgerService) RecordTransition(ctx context.Context, ticket *domain.Ticket, fromStateID, toStateID string) (*domain.TransitionHistoryEntry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.RecordTransition",
		trace.WithAttributes(
			attribute.String("ticket.id", ticket.ID),
			attribute.String("state.from", fromStateID),
			attribute.String("state.to", toStateID),
		))
	defer span.End()

	from := fromStateID
	return s.append(ctx, ticket, &from, toStateID, domain.EventTicketTransitionedName)
}

func (s *LedgerService) append(ctx context.Context, ticket *domain.Ticket, fromStateID *string, toStateID, eventName string) (*domain.TransitionHistoryEntry, error) {
	g, err := s.graphs.Graph(ctx, ticket.WorkflowID)
	if err != nil {
		return nil, err
	}
	if _, ok := g.State(toStateID); !ok {
		return nil, apperrors.NewNotFound("workflow state", map[string]any{"id": toStateID, "workflow_id": ticket.WorkflowID})
	}

	now := s.now()
	entry := &domain.TransitionHistoryEntry{
		ID:             uuid.NewString(),
		TicketID:       ticket.ID,
		FromStateID:    fromStateID,
		ToStateID:      toStateID,
		EventName:      eventName,
		TransitionedAt: now,
		Status:         domain.TransitionStatusInProgress,
	}
	if due, ok := workflow.EarliestDueDate(g, toStateID, now); ok {
		entry.SLADueDate = &due
	}
	final := g.IsFinal(toStateID)
	if final {
		entry.Status = domain.TransitionStatusCompleted
	}

	move := repository.TicketMove{ExpectedStateID: fromStateID, Complete: final, At: now}
	if err := s.history.Append(ctx, entry, move); err != nil {
		return nil, mapRepoError("ticket", ticket.ID, err)
	}

	fields := []zap.Field{
		zap.String("ticket_id", ticket.ID),
		zap.String("entry_id", entry.ID),
		zap.String("to_state_id", toStateID),
		zap.Bool("completed", final),
	}
	if entry.SLADueDate != nil {
		fields = append(fields, zap.Time("sla_due_date", *entry.SLADueDate))
	}
	s.logger.Info("ledger entry recorded", fields...)
	return entry, nil
}

// Escalate marks entryID as escalated. It reports false when the entry was already escalated or completed.
func (s *LedgerService) Escalate(ctx context.Context, entryID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Escalate", trace.WithAttributes(attribute.String("entry.id", entryID)))
	defer span.End()

	changed, err := s.history.Escalate(ctx, entryID)
	if err != nil {
		return false, mapRepoError("ledger entry", entryID, err)
	}
	s.metrics.RecordEscalation(changed)
	if changed {
		s.logger.Info("ledger entry escalated", zap.String("entry_id", entryID))
	}
	return changed, nil
}

// History returns every entry of ticketID in the order they were recorded.
func (s *LedgerService) History(ctx context.Context, ticketID string) ([]domain.TransitionHistoryEntry, error) {
	return s.history.ListByTicket(ctx, ticketID)
}

// GetViolatedTransitions returns current entries whose due date has passed and that are not completed.
func (s *LedgerService) GetViolatedTransitions(ctx context.Context) ([]domain.TransitionHistoryEntry, error) {
	return s.history.ListViolated(ctx, s.now())
}

// GetViolatingTransitions returns current in-progress entries due within the next leadSeconds.
func (s *LedgerService) GetViolatingTransitions(ctx context.Context, leadSeconds int64) ([]domain.TransitionHistoryEntry, error) {
	if leadSeconds <= 0 {
		return nil, apperrors.NewValidationError("lead time must be positive", map[string]any{"lead_seconds": leadSeconds})
	}
	now := s.now()
	return s.history.ListDueBetween(ctx, now, now.Add(time.Duration(leadSeconds)*time.Second))
}

// Now exposes the service clock so jobs evaluate buckets against the same instant.
func (s *LedgerService) Now() time.Time {
	return s.now()
}
