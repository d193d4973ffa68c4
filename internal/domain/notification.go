package domain

import "time"

// NotificationType identifies what condition a notification reports.
type NotificationType string

const (
	NotificationSLAWarning NotificationType = "SLA_WARNING"
	NotificationSLABreach  NotificationType = "SLA_BREACH"
)

// Notification is a push message addressed to one staff member.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	RecipientID string           `json:"recipient_id"`
	TicketID    string           `json:"ticket_id"`
	EntryID     string           `json:"entry_id"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	DueAt       *time.Time       `json:"due_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// EmailMessage is a templated email handed to the mail collaborator.
type EmailMessage struct {
	To        string            `json:"to"`
	From      string            `json:"from"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables"`
}
