package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleState is returned when a ticket no longer sits in the state a write expected.
	ErrStaleState = errors.New("ticket state changed concurrently")
	// ErrWorkflowInUse is returned when deleting a workflow still referenced by live tickets.
	ErrWorkflowInUse = errors.New("workflow referenced by tickets")
)

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
