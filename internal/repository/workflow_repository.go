package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

// WorkflowRepository persists workflows together with their states and transitions.
type WorkflowRepository interface {
	Create(ctx context.Context, wf *domain.Workflow, states []domain.WorkflowState, transitions []domain.WorkflowTransition) error
	ReplaceGraph(ctx context.Context, workflowID string, states []domain.WorkflowState, transitions []domain.WorkflowTransition) error
	GetByID(ctx context.Context, id string) (*domain.Workflow, error)
	ListStates(ctx context.Context, workflowID string) ([]domain.WorkflowState, error)
	ListTransitions(ctx context.Context, workflowID string) ([]domain.WorkflowTransition, error)
	Delete(ctx context.Context, id string) error
	DeleteState(ctx context.Context, workflowID, stateID string) error
	DeleteTransition(ctx context.Context, workflowID, transitionID string) error
}

type workflowRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepository instantiates repository.
func NewWorkflowRepository(pool *pgxpool.Pool) WorkflowRepository {
	return &workflowRepository{pool: pool}
}

func (r *workflowRepository) Create(ctx context.Context, wf *domain.Workflow, states []domain.WorkflowState, transitions []domain.WorkflowTransition) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO workflows (id, name, description)
        VALUES ($1,$2,$3)
        RETURNING created_at, updated_at`
	if err := tx.QueryRow(ctx, query, wf.ID, wf.Name, wf.Description).Scan(&wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return err
	}
	if err := upsertStates(ctx, tx, states); err != nil {
		return err
	}
	if err := insertTransitions(ctx, tx, transitions); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *workflowRepository) ReplaceGraph(ctx context.Context, workflowID string, states []domain.WorkflowState, transitions []domain.WorkflowTransition) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmd, err := tx.Exec(ctx, `UPDATE workflows SET updated_at=NOW() WHERE id=$1`, workflowID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_transitions WHERE workflow_id=$1`, workflowID); err != nil {
		return err
	}
	keep := make([]string, 0, len(states))
	for _, st := range states {
		keep = append(keep, st.ID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflow_states WHERE workflow_id=$1 AND NOT (id = ANY($2))`, workflowID, keep); err != nil {
		return err
	}
	if err := upsertStates(ctx, tx, states); err != nil {
		return err
	}
	if err := insertTransitions(ctx, tx, transitions); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func upsertStates(ctx context.Context, tx pgx.Tx, states []domain.WorkflowState) error {
	const query = `
        INSERT INTO workflow_states (id, workflow_id, name, is_initial, is_final)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, is_initial=EXCLUDED.is_initial, is_final=EXCLUDED.is_final`
	batch := &pgx.Batch{}
	for _, st := range states {
		batch.Queue(query, st.ID, st.WorkflowID, st.Name, st.IsInitial, st.IsFinal)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func insertTransitions(ctx context.Context, tx pgx.Tx, transitions []domain.WorkflowTransition) error {
	const query = `
        INSERT INTO workflow_transitions (id, workflow_id, source_state_id, target_state_id, sla_duration_hours)
        VALUES ($1,$2,$3,$4,$5)`
	batch := &pgx.Batch{}
	for _, tr := range transitions {
		batch.Queue(query, tr.ID, tr.WorkflowID, tr.SourceStateID, tr.TargetStateID, tr.SLADurationHours)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *workflowRepository) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	const query = `
        SELECT id, name, description, created_at, updated_at
        FROM workflows WHERE id=$1`
	var wf domain.Workflow
	if err := r.pool.QueryRow(ctx, query, id).Scan(&wf.ID, &wf.Name, &wf.Description, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &wf, nil
}

func (r *workflowRepository) ListStates(ctx context.Context, workflowID string) ([]domain.WorkflowState, error) {
	const query = `
        SELECT id, workflow_id, name, is_initial, is_final, created_at
        FROM workflow_states WHERE workflow_id=$1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WorkflowState
	for rows.Next() {
		var st domain.WorkflowState
		if err := rows.Scan(&st.ID, &st.WorkflowID, &st.Name, &st.IsInitial, &st.IsFinal, &st.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

func (r *workflowRepository) ListTransitions(ctx context.Context, workflowID string) ([]domain.WorkflowTransition, error) {
	const query = `
        SELECT id, workflow_id, source_state_id, target_state_id, sla_duration_hours, created_at
        FROM workflow_transitions WHERE workflow_id=$1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.WorkflowTransition
	for rows.Next() {
		var tr domain.WorkflowTransition
		if err := rows.Scan(&tr.ID, &tr.WorkflowID, &tr.SourceStateID, &tr.TargetStateID, &tr.SLADurationHours, &tr.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}

func (r *workflowRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var locked string
	if err := tx.QueryRow(ctx, `SELECT id FROM workflows WHERE id=$1 FOR UPDATE`, id).Scan(&locked); err != nil {
		return translate(err)
	}
	var inUse bool
	const usage = `SELECT EXISTS(SELECT 1 FROM tickets WHERE workflow_id=$1 AND deleted_at IS NULL)`
	if err := tx.QueryRow(ctx, usage, id).Scan(&inUse); err != nil {
		return err
	}
	if inUse {
		return ErrWorkflowInUse
	}
	if _, err := tx.Exec(ctx, `DELETE FROM workflows WHERE id=$1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *workflowRepository) DeleteState(ctx context.Context, workflowID, stateID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM workflow_states WHERE id=$1 AND workflow_id=$2`, stateID, workflowID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *workflowRepository) DeleteTransition(ctx context.Context, workflowID, transitionID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM workflow_transitions WHERE id=$1 AND workflow_id=$2`, transitionID, workflowID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
