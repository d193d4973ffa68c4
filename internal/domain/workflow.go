package domain

import "time"

// Workflow groups the states and transitions a ticket moves through.
type Workflow struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkflowState is a node of a workflow graph.
type WorkflowState struct {
	ID         string
	WorkflowID string
	Name       string
	IsInitial  bool
	IsFinal    bool
	CreatedAt  time.Time
}

// WorkflowTransition is a directed edge between two states of the same workflow.
// SLADurationHours is nil when no SLA is configured for the edge.
type WorkflowTransition struct {
	ID               string
	WorkflowID       string
	SourceStateID    string
	TargetStateID    string
	SLADurationHours *int
	CreatedAt        time.Time
}

// SLADuration returns the configured bound, if any.
func (t WorkflowTransition) SLADuration() (time.Duration, bool) {
	if t.SLADurationHours == nil {
		return 0, false
	}
	return time.Duration(*t.SLADurationHours) * time.Hour, true
}

// WorkflowDefinition is the full graph of a workflow as written by an editor or a definition file.
// States are referenced by name inside Transitions.
type WorkflowDefinition struct {
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description" json:"description"`
	States      []StateDefinition      `yaml:"states" json:"states"`
	Transitions []TransitionDefinition `yaml:"transitions" json:"transitions"`
}

// StateDefinition describes one state of a WorkflowDefinition.
type StateDefinition struct {
	Name    string `yaml:"name" json:"name"`
	Initial bool   `yaml:"initial" json:"initial"`
	Final   bool   `yaml:"final" json:"final"`
}

// TransitionDefinition describes one edge of a WorkflowDefinition.
type TransitionDefinition struct {
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
	SLAHours *int   `yaml:"sla_hours,omitempty" json:"sla_hours,omitempty"`
}
