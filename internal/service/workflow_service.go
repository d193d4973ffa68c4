package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/repository"
	"github.com/spec-kit/ticket-sla/internal/workflow"
	apperrors "github.com/spec-kit/ticket-sla/pkg/util/errorutil"
)

// WorkflowService builds, edits and loads workflow graphs.
type WorkflowService struct {
	workflows repository.WorkflowRepository
	logger    *zap.Logger
	newID     func() string
}

// WorkflowDependencies bundles repositories for workflow service.
type WorkflowDependencies struct {
	WorkflowRepo repository.WorkflowRepository
	Logger       *zap.Logger
}

// NewWorkflowService constructs the service.
func NewWorkflowService(deps WorkflowDependencies) *WorkflowService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{workflows: deps.WorkflowRepo, logger: logger, newID: uuid.NewString}
}

// CreateWorkflow stores a workflow with all its states and transitions in one step.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, def domain.WorkflowDefinition) (*domain.Workflow, *workflow.Graph, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return nil, nil, apperrors.NewValidationError("workflow name required", nil)
	}
	wf := &domain.Workflow{ID: s.newID(), Name: name, Description: strings.TrimSpace(def.Description)}
	g, err := workflow.Materialize(wf.ID, def, s.newID)
	if err != nil {
		return nil, nil, graphValidationError(err)
	}
	if err := s.workflows.Create(ctx, wf, g.States(), g.Transitions()); err != nil {
		return nil, nil, err
	}
	s.logger.Info("workflow created", zap.String("workflow_id", wf.ID), zap.Int("states", len(g.States())))
	return wf, g, nil
}

// CloneWorkflow copies the graph of sourceID under a new workflow named name.
func (s *WorkflowService) CloneWorkflow(ctx context.Context, sourceID, name string) (*domain.Workflow, *workflow.Graph, error) {
	src, g, err := s.Get(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	def := workflow.Definition(name, src.Description, g)
	if strings.TrimSpace(name) == "" {
		def.Name = src.Name + " (copy)"
	}
	return s.CreateWorkflow(ctx, def)
}

// SaveGraph replaces every state and transition of workflowID. States keep their id when their name
// survives the edit; transitions are always recreated.
func (s *WorkflowService) SaveGraph(ctx context.Context, workflowID string, def domain.WorkflowDefinition) (*workflow.Graph, error) {
	if _, err := s.workflows.GetByID(ctx, workflowID); err != nil {
		return nil, mapRepoError("workflow", workflowID, err)
	}
	states, err := s.workflows.ListStates(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]string, len(states))
	for _, st := range states {
		existing[st.Name] = st.ID
	}
	g, err := workflow.MaterializeOver(workflowID, def, existing, s.newID)
	if err != nil {
		return nil, graphValidationError(err)
	}
	if err := s.workflows.ReplaceGraph(ctx, workflowID, g.States(), g.Transitions()); err != nil {
		return nil, mapRepoError("workflow", workflowID, err)
	}
	s.logger.Info("workflow graph saved", zap.String("workflow_id", workflowID), zap.Int("transitions", len(g.Transitions())))
	return g, nil
}

// DeleteWorkflow removes a workflow unless a live ticket still uses it.
func (s *WorkflowService) DeleteWorkflow(ctx context.Context, id string) error {
	if err := s.workflows.Delete(ctx, id); err != nil {
		return mapRepoError("workflow", id, err)
	}
	s.logger.Info("workflow deleted", zap.String("workflow_id", id))
	return nil
}

// DeleteState removes a state and the transitions touching it. The last initial state cannot be removed.
func (s *WorkflowService) DeleteState(ctx context.Context, workflowID, stateID string) error {
	g, err := s.Graph(ctx, workflowID)
	if err != nil {
		return err
	}
	st, ok := g.State(stateID)
	if !ok {
		return apperrors.NewNotFound("workflow state", map[string]any{"id": stateID})
	}
	if st.IsInitial && len(g.InitialStates()) == 1 {
		return apperrors.NewValidationError("cannot delete the only initial state", map[string]any{"state_id": stateID})
	}
	return mapRepoError("workflow state", stateID, s.workflows.DeleteState(ctx, workflowID, stateID))
}

// DeleteTransition removes one transition.
func (s *WorkflowService) DeleteTransition(ctx context.Context, workflowID, transitionID string) error {
	return mapRepoError("workflow transition", transitionID, s.workflows.DeleteTransition(ctx, workflowID, transitionID))
}

// Get returns the workflow and its graph.
func (s *WorkflowService) Get(ctx context.Context, workflowID string) (*domain.Workflow, *workflow.Graph, error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, mapRepoError("workflow", workflowID, err)
	}
	g, err := s.Graph(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	return wf, g, nil
}

// Graph loads the graph of workflowID. It implements workflow.GraphSource.
func (s *WorkflowService) Graph(ctx context.Context, workflowID string) (*workflow.Graph, error) {
	states, err := s.workflows.ListStates(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, apperrors.NewNotFound("workflow", map[string]any{"id": workflowID})
	}
	transitions, err := s.workflows.ListTransitions(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	g, err := workflow.NewGraph(workflowID, states, transitions)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return g, nil
}

func graphValidationError(err error) error {
	switch {
	case errors.Is(err, workflow.ErrNoInitialState),
		errors.Is(err, workflow.ErrForeignState),
		errors.Is(err, workflow.ErrDuplicateTransition),
		errors.Is(err, workflow.ErrNegativeSLA),
		errors.Is(err, workflow.ErrEmptyStateName),
		errors.Is(err, workflow.ErrDuplicateStateName),
		errors.Is(err, workflow.ErrUnknownStateName):
		return apperrors.NewValidationError("invalid workflow graph", map[string]any{"reason": err.Error()})
	}
	return err
}
