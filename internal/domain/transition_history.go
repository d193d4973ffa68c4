package domain

import "time"

// TransitionStatus tracks the SLA bookkeeping of a ledger entry.
type TransitionStatus string

const (
	TransitionStatusInProgress TransitionStatus = "In_Progress"
	TransitionStatusCompleted  TransitionStatus = "Completed"
	TransitionStatusEscalated  TransitionStatus = "Escalated"
)

const (
	EventTicketCreatedName      = "TICKET_CREATED"
	EventTicketTransitionedName = "TICKET_TRANSITIONED"
)

// TransitionHistoryEntry is one append-only record of a ticket changing state.
// FromStateID is nil only for the creation entry.
type TransitionHistoryEntry struct {
	ID             string
	TicketID       string
	FromStateID    *string
	ToStateID      string
	EventName      string
	TransitionedAt time.Time
	SLADueDate     *time.Time
	Status         TransitionStatus
	CreatedAt      time.Time
}

// Escalatable reports whether Escalate would change the entry.
func (e *TransitionHistoryEntry) Escalatable() bool {
	return e.Status == TransitionStatusInProgress
}
