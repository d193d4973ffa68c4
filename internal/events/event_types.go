package events

import (
	"time"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketTransitioned EventType = "ticket_transitioned"
	EventTicketMessageAdded EventType = "ticket_message_added"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	WorkflowID string     `json:"workflow_id"`
	StateID    string     `json:"state_id"`
	EntryID    string     `json:"entry_id"`
	TeamID     *string    `json:"team_id,omitempty"`
	Title      string     `json:"title"`
	SLADueDate *time.Time `json:"sla_due_date,omitempty"`
}

// TicketTransitionedPayload payload.
type TicketTransitionedPayload struct {
	FromStateID string     `json:"from_state_id"`
	ToStateID   string     `json:"to_state_id"`
	EntryID     string     `json:"entry_id"`
	SLADueDate  *time.Time `json:"sla_due_date,omitempty"`
	Completed   bool       `json:"completed"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID          string                   `json:"message_id"`
	AuthorType         domain.MessageAuthorType `json:"author_type"`
	AuthorID           *string                  `json:"author_id,omitempty"`
	Body               string                   `json:"body"`
	IsCustomerResponse bool                     `json:"is_customer_response"`
}
