package workflow

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

var (
	ErrEmptyStateName     = errors.New("state name required")
	ErrDuplicateStateName = errors.New("duplicate state name")
	ErrUnknownStateName   = errors.New("transition references an unknown state")
)

// ParseDefinition decodes a YAML workflow definition.
func ParseDefinition(data []byte) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode workflow definition: %w", err)
	}
	return &def, nil
}

// Materialize turns a definition into states and transitions of workflowID, assigning ids with
// newID, and validates the result as a Graph.
func Materialize(workflowID string, def domain.WorkflowDefinition, newID func() string) (*Graph, error) {
	return MaterializeOver(workflowID, def, nil, newID)
}

// MaterializeOver is Materialize for an edit of an existing graph. States whose name is a key of
// existing keep the mapped id.
func MaterializeOver(workflowID string, def domain.WorkflowDefinition, existing map[string]string, newID func() string) (*Graph, error) {
	byName := make(map[string]string, len(def.States))
	states := make([]domain.WorkflowState, 0, len(def.States))
	for _, sd := range def.States {
		name := strings.TrimSpace(sd.Name)
		if name == "" {
			return nil, ErrEmptyStateName
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("%s: %w", name, ErrDuplicateStateName)
		}
		id, ok := existing[name]
		if !ok {
			id = newID()
		}
		byName[name] = id
		states = append(states, domain.WorkflowState{
			ID:         id,
			WorkflowID: workflowID,
			Name:       name,
			IsInitial:  sd.Initial,
			IsFinal:    sd.Final,
		})
	}

	transitions := make([]domain.WorkflowTransition, 0, len(def.Transitions))
	for _, td := range def.Transitions {
		from, ok := byName[strings.TrimSpace(td.From)]
		if !ok {
			return nil, fmt.Errorf("%s: %w", td.From, ErrUnknownStateName)
		}
		to, ok := byName[strings.TrimSpace(td.To)]
		if !ok {
			return nil, fmt.Errorf("%s: %w", td.To, ErrUnknownStateName)
		}
		transitions = append(transitions, domain.WorkflowTransition{
			ID:               newID(),
			WorkflowID:       workflowID,
			SourceStateID:    from,
			TargetStateID:    to,
			SLADurationHours: td.SLAHours,
		})
	}
	return NewGraph(workflowID, states, transitions)
}

// Definition renders a graph back into its name-based definition.
func Definition(name, description string, g *Graph) domain.WorkflowDefinition {
	def := domain.WorkflowDefinition{Name: name, Description: description}
	for _, st := range g.States() {
		def.States = append(def.States, domain.StateDefinition{Name: st.Name, Initial: st.IsInitial, Final: st.IsFinal})
	}
	for _, tr := range g.Transitions() {
		from, _ := g.State(tr.SourceStateID)
		to, _ := g.State(tr.TargetStateID)
		def.Transitions = append(def.Transitions, domain.TransitionDefinition{From: from.Name, To: to.Name, SLAHours: tr.SLADurationHours})
	}
	return def
}
