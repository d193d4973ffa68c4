package service

import (
	"errors"
	"net/http"

	"github.com/spec-kit/ticket-sla/internal/repository"
	apperrors "github.com/spec-kit/ticket-sla/pkg/util/errorutil"
)

// mapRepoError turns repository sentinels into API errors. Other errors pass through unchanged.
func mapRepoError(resource string, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrWorkflowInUse):
		return apperrors.NewConflict("workflow is referenced by open tickets", map[string]any{"workflow_id": id})
	case errors.Is(err, repository.ErrStaleState):
		return staleStateError(id)
	}
	return err
}

// staleStateError keeps repository.ErrStaleState in the chain so callers can retry.
func staleStateError(ticketID string) error {
	return &apperrors.DomainError{
		Code:       apperrors.CodeConflict,
		Message:    "ticket state changed concurrently",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"ticket_id": ticketID},
		Err:        repository.ErrStaleState,
	}
}
