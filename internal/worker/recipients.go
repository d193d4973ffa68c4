package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/repository"
)

// recipientResolver finds the staff members to notify about a ticket.
type recipientResolver struct {
	staff  repository.StaffRepository
	logger *zap.Logger
}

// assigneeOrManagers returns the active assignee, or the team's managers when there is none.
func (r recipientResolver) assigneeOrManagers(ctx context.Context, ticket *domain.Ticket) ([]domain.StaffMember, error) {
	assignee, err := r.assignee(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if assignee != nil {
		return []domain.StaffMember{*assignee}, nil
	}
	return r.managers(ctx, ticket)
}

// assigneeAndManagers returns the active assignee followed by the team's managers, without repeats.
func (r recipientResolver) assigneeAndManagers(ctx context.Context, ticket *domain.Ticket) ([]domain.StaffMember, error) {
	assignee, err := r.assignee(ctx, ticket)
	if err != nil {
		return nil, err
	}
	managers, err := r.managers(ctx, ticket)
	if err != nil {
		return nil, err
	}

	out := make([]domain.StaffMember, 0, len(managers)+1)
	seen := make(map[string]struct{}, len(managers)+1)
	if assignee != nil {
		out = append(out, *assignee)
		seen[assignee.ID] = struct{}{}
	}
	for _, m := range managers {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

func (r recipientResolver) assignee(ctx context.Context, ticket *domain.Ticket) (*domain.StaffMember, error) {
	if ticket.AssigneeID == nil {
		return nil, nil
	}
	member, err := r.staff.GetByID(ctx, *ticket.AssigneeID)
	if errors.Is(err, repository.ErrNotFound) {
		r.logger.Warn("ticket assignee not found", zap.String("ticket_id", ticket.ID), zap.String("assignee_id", *ticket.AssigneeID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !member.Active {
		return nil, nil
	}
	return member, nil
}

func (r recipientResolver) managers(ctx context.Context, ticket *domain.Ticket) ([]domain.StaffMember, error) {
	if ticket.TeamID == nil {
		return nil, nil
	}
	role := domain.StaffRoleManager
	active := true
	return r.staff.List(ctx, repository.StaffFilter{Role: &role, TeamID: ticket.TeamID, Active: &active})
}
