package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

// TicketMove describes the ticket-side effect of appending a ledger entry.
// ExpectedStateID nil means the ticket must not have a current state yet.
type TicketMove struct {
	ExpectedStateID *string
	Complete        bool
	At              time.Time
}

// TransitionHistoryRepository stores the append-only transition ledger.
type TransitionHistoryRepository interface {
	// Append inserts entry and moves its ticket to entry.ToStateID in one transaction.
	// It returns ErrStaleState when the ticket is not in move.ExpectedStateID.
	Append(ctx context.Context, entry *domain.TransitionHistoryEntry, move TicketMove) error
	GetByID(ctx context.Context, id string) (*domain.TransitionHistoryEntry, error)
	// Escalate flips an In_Progress entry to Escalated and reports whether it changed anything.
	Escalate(ctx context.Context, id string) (bool, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TransitionHistoryEntry, error)
	// ListViolated returns current entries of live tickets whose due date is before now and that are not Completed.
	ListViolated(ctx context.Context, now time.Time) ([]domain.TransitionHistoryEntry, error)
	// ListDueBetween returns current In_Progress entries of live tickets due within [from, to].
	ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.TransitionHistoryEntry, error)
}

type transitionHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTransitionHistoryRepository builds repository.
func NewTransitionHistoryRepository(pool *pgxpool.Pool) TransitionHistoryRepository {
	return &transitionHistoryRepository{pool: pool}
}

const historyColumns = `h.id, h.ticket_id, h.from_state_id, h.to_state_id, h.event_name, h.transitioned_at,
               h.sla_due_date, h.status, h.created_at`

func (r *transitionHistoryRepository) Append(ctx context.Context, entry *domain.TransitionHistoryEntry, move TicketMove) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current *string
	const lock = `SELECT current_state_id FROM tickets WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`
	if err := tx.QueryRow(ctx, lock, entry.TicketID).Scan(&current); err != nil {
		return translate(err)
	}
	if !sameState(current, move.ExpectedStateID) {
		return ErrStaleState
	}

	if move.Complete {
		const completeOpen = `
            UPDATE ticket_transition_history SET status=$1
            WHERE ticket_id=$2 AND status <> $1`
		if _, err := tx.Exec(ctx, completeOpen, domain.TransitionStatusCompleted, entry.TicketID); err != nil {
			return err
		}
	}

	const insert = `
        INSERT INTO ticket_transition_history (id, ticket_id, from_state_id, to_state_id, event_name, transitioned_at, sla_due_date, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at`
	if err := tx.QueryRow(ctx, insert,
		entry.ID,
		entry.TicketID,
		entry.FromStateID,
		entry.ToStateID,
		entry.EventName,
		entry.TransitionedAt,
		entry.SLADueDate,
		entry.Status,
	).Scan(&entry.CreatedAt); err != nil {
		return err
	}

	const moveTicket = `
        UPDATE tickets SET current_state_id=$1, current_entry_id=$2, is_completed=$3,
            completed_at = CASE WHEN $3 THEN COALESCE(completed_at, $4) ELSE NULL END,
            updated_at=NOW()
        WHERE id=$5`
	if _, err := tx.Exec(ctx, moveTicket, entry.ToStateID, entry.ID, move.Complete, move.At, entry.TicketID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func sameState(current, expected *string) bool {
	if current == nil || expected == nil {
		return current == nil && expected == nil
	}
	return *current == *expected
}

func (r *transitionHistoryRepository) GetByID(ctx context.Context, id string) (*domain.TransitionHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM ticket_transition_history h WHERE h.id=$1`
	var entry domain.TransitionHistoryEntry
	if err := scanEntry(r.pool.QueryRow(ctx, query, id), &entry); err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r *transitionHistoryRepository) Escalate(ctx context.Context, id string) (bool, error) {
	const query = `
        UPDATE ticket_transition_history SET status=$1
        WHERE id=$2 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query, domain.TransitionStatusEscalated, id, domain.TransitionStatusInProgress)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ticket_transition_history WHERE id=$1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *transitionHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TransitionHistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
        FROM ticket_transition_history h WHERE h.ticket_id=$1 ORDER BY h.transitioned_at ASC, h.created_at ASC`
	return r.list(ctx, query, ticketID)
}

func (r *transitionHistoryRepository) ListViolated(ctx context.Context, now time.Time) ([]domain.TransitionHistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
        FROM ticket_transition_history h
        JOIN tickets t ON t.current_entry_id = h.id
        WHERE h.sla_due_date < $1 AND h.status <> $2
          AND t.deleted_at IS NULL AND t.is_completed = FALSE
        ORDER BY h.sla_due_date ASC`
	return r.list(ctx, query, now, domain.TransitionStatusCompleted)
}

func (r *transitionHistoryRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.TransitionHistoryEntry, error) {
	query := `SELECT ` + historyColumns + `
        FROM ticket_transition_history h
        JOIN tickets t ON t.current_entry_id = h.id
        WHERE h.sla_due_date >= $1 AND h.sla_due_date <= $2 AND h.status = $3
          AND t.deleted_at IS NULL AND t.is_completed = FALSE
        ORDER BY h.sla_due_date ASC`
	return r.list(ctx, query, from, to, domain.TransitionStatusInProgress)
}

func (r *transitionHistoryRepository) list(ctx context.Context, query string, args ...any) ([]domain.TransitionHistoryEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TransitionHistoryEntry
	for rows.Next() {
		var entry domain.TransitionHistoryEntry
		if err := scanEntry(rows, &entry); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func scanEntry(row pgx.Row, entry *domain.TransitionHistoryEntry) error {
	return row.Scan(
		&entry.ID,
		&entry.TicketID,
		&entry.FromStateID,
		&entry.ToStateID,
		&entry.EventName,
		&entry.TransitionedAt,
		&entry.SLADueDate,
		&entry.Status,
		&entry.CreatedAt,
	)
}
