package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

var (
	ErrNoInitialState      = errors.New("workflow has no initial state")
	ErrForeignState        = errors.New("transition references a state outside the workflow")
	ErrDuplicateTransition = errors.New("duplicate transition between the same states")
	ErrNegativeSLA         = errors.New("sla duration must not be negative")
)

// Graph is an immutable view of one workflow's states and transitions.
type Graph struct {
	workflowID  string
	states      map[string]domain.WorkflowState
	stateOrder  []string
	outgoing    map[string][]domain.WorkflowTransition
	transitions []domain.WorkflowTransition
}

// NewGraph validates and indexes states and transitions of workflowID.
func NewGraph(workflowID string, states []domain.WorkflowState, transitions []domain.WorkflowTransition) (*Graph, error) {
	g := &Graph{
		workflowID: workflowID,
		states:     make(map[string]domain.WorkflowState, len(states)),
		outgoing:   make(map[string][]domain.WorkflowTransition),
	}

	hasInitial := false
	for _, st := range states {
		if st.WorkflowID != workflowID {
			return nil, fmt.Errorf("state %s: %w", st.ID, ErrForeignState)
		}
		g.states[st.ID] = st
		g.stateOrder = append(g.stateOrder, st.ID)
		if st.IsInitial {
			hasInitial = true
		}
	}
	if !hasInitial {
		return nil, ErrNoInitialState
	}
	sort.Strings(g.stateOrder)

	seen := make(map[[2]string]struct{}, len(transitions))
	for _, tr := range transitions {
		if tr.WorkflowID != workflowID {
			return nil, fmt.Errorf("transition %s: %w", tr.ID, ErrForeignState)
		}
		if _, ok := g.states[tr.SourceStateID]; !ok {
			return nil, fmt.Errorf("transition %s source %s: %w", tr.ID, tr.SourceStateID, ErrForeignState)
		}
		if _, ok := g.states[tr.TargetStateID]; !ok {
			return nil, fmt.Errorf("transition %s target %s: %w", tr.ID, tr.TargetStateID, ErrForeignState)
		}
		if tr.SLADurationHours != nil && *tr.SLADurationHours < 0 {
			return nil, fmt.Errorf("transition %s: %w", tr.ID, ErrNegativeSLA)
		}
		pair := [2]string{tr.SourceStateID, tr.TargetStateID}
		if _, dup := seen[pair]; dup {
			return nil, fmt.Errorf("%s -> %s: %w", tr.SourceStateID, tr.TargetStateID, ErrDuplicateTransition)
		}
		seen[pair] = struct{}{}
		g.outgoing[tr.SourceStateID] = append(g.outgoing[tr.SourceStateID], tr)
		g.transitions = append(g.transitions, tr)
	}
	for source := range g.outgoing {
		list := g.outgoing[source]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	sort.Slice(g.transitions, func(i, j int) bool { return g.transitions[i].ID < g.transitions[j].ID })
	return g, nil
}

// WorkflowID returns the workflow this graph belongs to.
func (g *Graph) WorkflowID() string {
	return g.workflowID
}

// State looks up a state by id.
func (g *Graph) State(id string) (domain.WorkflowState, bool) {
	st, ok := g.states[id]
	return st, ok
}

// StateByName looks up a state by its display name.
func (g *Graph) StateByName(name string) (domain.WorkflowState, bool) {
	for _, id := range g.stateOrder {
		if g.states[id].Name == name {
			return g.states[id], true
		}
	}
	return domain.WorkflowState{}, false
}

// States returns all states ordered by id.
func (g *Graph) States() []domain.WorkflowState {
	out := make([]domain.WorkflowState, 0, len(g.stateOrder))
	for _, id := range g.stateOrder {
		out = append(out, g.states[id])
	}
	return out
}

// Transitions returns all transitions ordered by id.
func (g *Graph) Transitions() []domain.WorkflowTransition {
	return append([]domain.WorkflowTransition(nil), g.transitions...)
}

// InitialStates returns the states a ticket may be created in, ordered by id.
func (g *Graph) InitialStates() []domain.WorkflowState {
	var out []domain.WorkflowState
	for _, id := range g.stateOrder {
		if g.states[id].IsInitial {
			out = append(out, g.states[id])
		}
	}
	return out
}

// IsFinal reports whether stateID is a final state of the workflow.
func (g *Graph) IsFinal(stateID string) bool {
	st, ok := g.states[stateID]
	return ok && st.IsFinal
}

// Outgoing returns the transitions leaving sourceStateID ordered by id.
func (g *Graph) Outgoing(sourceStateID string) []domain.WorkflowTransition {
	return append([]domain.WorkflowTransition(nil), g.outgoing[sourceStateID]...)
}

// Targets returns the ids of states reachable in one step from sourceStateID.
func (g *Graph) Targets(sourceStateID string, includeSource bool) []string {
	var out []string
	if includeSource {
		if _, ok := g.states[sourceStateID]; ok {
			out = append(out, sourceStateID)
		}
	}
	for _, tr := range g.outgoing[sourceStateID] {
		if includeSource && tr.TargetStateID == sourceStateID {
			continue
		}
		out = append(out, tr.TargetStateID)
	}
	return out
}

// CanTransition reports whether moving from -> to is a configured transition.
func (g *Graph) CanTransition(from, to string) bool {
	for _, tr := range g.outgoing[from] {
		if tr.TargetStateID == to {
			return true
		}
	}
	return false
}
