package domain

import "time"

// ConversationHealthRecord is the smoothed health of a ticket's thread, one per ticket.
type ConversationHealthRecord struct {
	TicketID            string
	TotalMessages       int
	TotalQuestions      int
	ResolvedQuestions   int
	CumulativeSentiment float64
	ConversationHealth  float64
	Summary             string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
