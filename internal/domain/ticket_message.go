package domain

import "time"

// MessageAuthorType indicates who authored a message.
type MessageAuthorType string

const (
	AuthorTypeCustomer MessageAuthorType = "CUSTOMER"
	AuthorTypeStaff    MessageAuthorType = "STAFF"
	AuthorTypeSystem   MessageAuthorType = "SYSTEM"
)

// TicketMessage captures one message or comment in a ticket thread.
type TicketMessage struct {
	ID         string
	TicketID   string
	AuthorType MessageAuthorType
	AuthorID   *string
	Body       string
	CreatedAt  time.Time
}

// IsCustomerResponse reports whether the message came from the requester side.
func (m *TicketMessage) IsCustomerResponse() bool {
	return m.AuthorType == AuthorTypeCustomer
}
