package dto

import (
	"time"

	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/workflow"
)

// CloneWorkflowRequest payload.
type CloneWorkflowRequest struct {
	Name string `json:"name"`
}

// WorkflowStateResponse is one node of a workflow graph.
type WorkflowStateResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsInitial bool   `json:"is_initial"`
	IsFinal   bool   `json:"is_final"`
}

// WorkflowTransitionResponse is one edge of a workflow graph.
type WorkflowTransitionResponse struct {
	ID               string `json:"id"`
	SourceStateID    string `json:"source_state_id"`
	TargetStateID    string `json:"target_state_id"`
	SLADurationHours *int   `json:"sla_duration_hours"`
}

// WorkflowResponse is a workflow with its full graph.
type WorkflowResponse struct {
	ID          string                       `json:"id"`
	Name        string                       `json:"name,omitempty"`
	Description string                       `json:"description,omitempty"`
	States      []WorkflowStateResponse      `json:"states"`
	Transitions []WorkflowTransitionResponse `json:"transitions"`
	UpdatedAt   *time.Time                   `json:"updated_at,omitempty"`
}

// NewWorkflowResponse maps a graph, with wf optional.
func NewWorkflowResponse(wf *domain.Workflow, g *workflow.Graph) WorkflowResponse {
	resp := WorkflowResponse{ID: g.WorkflowID()}
	if wf != nil {
		resp.Name = wf.Name
		resp.Description = wf.Description
		updated := wf.UpdatedAt
		resp.UpdatedAt = &updated
	}
	for _, st := range g.States() {
		resp.States = append(resp.States, WorkflowStateResponse{ID: st.ID, Name: st.Name, IsInitial: st.IsInitial, IsFinal: st.IsFinal})
	}
	for _, tr := range g.Transitions() {
		resp.Transitions = append(resp.Transitions, WorkflowTransitionResponse{
			ID:               tr.ID,
			SourceStateID:    tr.SourceStateID,
			TargetStateID:    tr.TargetStateID,
			SLADurationHours: tr.SLADurationHours,
		})
	}
	return resp
}
