package dto

import (
	"time"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	WorkflowID     string  `json:"workflow_id"`
	InitialStateID string  `json:"initial_state_id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	AssigneeID     *string `json:"assignee_id"`
	TeamID         *string `json:"team_id"`
}

// TransitionRequest payload.
type TransitionRequest struct {
	ToStateID string `json:"to_state_id"`
}

// CreateMessageRequest payload. AuthorType defaults to STAFF.
type CreateMessageRequest struct {
	Body       string                   `json:"body"`
	AuthorType domain.MessageAuthorType `json:"author_type"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	ID             string     `json:"id"`
	ExternalKey    string     `json:"external_key"`
	WorkflowID     string     `json:"workflow_id"`
	CurrentStateID *string    `json:"current_state_id"`
	AssigneeID     *string    `json:"assignee_id"`
	TeamID         *string    `json:"team_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	IsCompleted    bool       `json:"is_completed"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:             t.ID,
		ExternalKey:    t.ExternalKey,
		WorkflowID:     t.WorkflowID,
		CurrentStateID: t.CurrentStateID,
		AssigneeID:     t.AssigneeID,
		TeamID:         t.TeamID,
		Title:          t.Title,
		Description:    t.Description,
		IsCompleted:    t.IsCompleted,
		CompletedAt:    t.CompletedAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// HistoryEntryResponse is one ledger entry.
type HistoryEntryResponse struct {
	ID             string                  `json:"id"`
	TicketID       string                  `json:"ticket_id"`
	FromStateID    *string                 `json:"from_state_id"`
	ToStateID      string                  `json:"to_state_id"`
	EventName      string                  `json:"event_name"`
	TransitionedAt time.Time               `json:"transitioned_at"`
	SLADueDate     *time.Time              `json:"sla_due_date"`
	Status         domain.TransitionStatus `json:"status"`
}

// NewHistoryEntryResponse maps a ledger entry.
func NewHistoryEntryResponse(e *domain.TransitionHistoryEntry) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:             e.ID,
		TicketID:       e.TicketID,
		FromStateID:    e.FromStateID,
		ToStateID:      e.ToStateID,
		EventName:      e.EventName,
		TransitionedAt: e.TransitionedAt,
		SLADueDate:     e.SLADueDate,
		Status:         e.Status,
	}
}

// NewHistoryResponse maps a slice of ledger entries.
func NewHistoryResponse(entries []domain.TransitionHistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, NewHistoryEntryResponse(&entries[i]))
	}
	return out
}

// TicketMessageResponse represents thread message.
type TicketMessageResponse struct {
	ID         string                   `json:"id"`
	AuthorType domain.MessageAuthorType `json:"author_type"`
	AuthorID   *string                  `json:"author_id"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}

// NewTicketMessageResponse maps a message.
func NewTicketMessageResponse(m *domain.TicketMessage) TicketMessageResponse {
	return TicketMessageResponse{ID: m.ID, AuthorType: m.AuthorType, AuthorID: m.AuthorID, Body: m.Body, CreatedAt: m.CreatedAt}
}

// ConversationHealthResponse is the health record of a ticket thread.
type ConversationHealthResponse struct {
	TicketID            string    `json:"ticket_id"`
	TotalMessages       int       `json:"total_messages"`
	TotalQuestions      int       `json:"total_questions"`
	ResolvedQuestions   int       `json:"resolved_questions"`
	CumulativeSentiment float64   `json:"cumulative_sentiment"`
	ConversationHealth  float64   `json:"conversation_health"`
	Summary             string    `json:"summary"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewConversationHealthResponse maps a health record.
func NewConversationHealthResponse(r *domain.ConversationHealthRecord) ConversationHealthResponse {
	return ConversationHealthResponse{
		TicketID:            r.TicketID,
		TotalMessages:       r.TotalMessages,
		TotalQuestions:      r.TotalQuestions,
		ResolvedQuestions:   r.ResolvedQuestions,
		CumulativeSentiment: r.CumulativeSentiment,
		ConversationHealth:  r.ConversationHealth,
		Summary:             r.Summary,
		UpdatedAt:           r.UpdatedAt,
	}
}
