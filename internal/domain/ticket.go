package domain

import "time"

// Ticket is the support request moving through a workflow.
// CurrentStateID and CurrentEntryID are nil only before the creation entry is recorded.
type Ticket struct {
	ID             string
	ExternalKey    string
	WorkflowID     string
	CurrentStateID *string
	CurrentEntryID *string
	AssigneeID     *string
	TeamID         *string
	Title          string
	Description    string
	IsCompleted    bool
	CompletedAt    *time.Time
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InState reports whether the ticket currently sits in stateID.
func (t *Ticket) InState(stateID string) bool {
	return t.CurrentStateID != nil && *t.CurrentStateID == stateID
}
