package domain

import "time"

// Team owns tickets and has managers who receive escalations.
type Team struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
