package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

func hours(h int) *int { return &h }

func sampleGraph(t *testing.T) *Graph {
	t.Helper()
	states := []domain.WorkflowState{
		{ID: "s1", WorkflowID: "wf", Name: "Open", IsInitial: true},
		{ID: "s2", WorkflowID: "wf", Name: "InProgress"},
		{ID: "s3", WorkflowID: "wf", Name: "Closed", IsFinal: true},
	}
	transitions := []domain.WorkflowTransition{
		{ID: "t1", WorkflowID: "wf", SourceStateID: "s1", TargetStateID: "s2", SLADurationHours: hours(4)},
		{ID: "t2", WorkflowID: "wf", SourceStateID: "s2", TargetStateID: "s3", SLADurationHours: hours(2)},
		{ID: "t3", WorkflowID: "wf", SourceStateID: "s1", TargetStateID: "s3"},
	}
	g, err := NewGraph("wf", states, transitions)
	require.NoError(t, err)
	return g
}

func TestGraph_Queries(t *testing.T) {
	g := sampleGraph(t)

	initial := g.InitialStates()
	require.Len(t, initial, 1)
	assert.Equal(t, "s1", initial[0].ID)

	assert.True(t, g.IsFinal("s3"))
	assert.False(t, g.IsFinal("s1"))
	assert.False(t, g.IsFinal("missing"))

	assert.Equal(t, []string{"s2", "s3"}, g.Targets("s1", false))
	assert.Equal(t, []string{"s1", "s2", "s3"}, g.Targets("s1", true))
	assert.Empty(t, g.Targets("s3", false))

	out := g.Outgoing("s1")
	require.Len(t, out, 2)
	assert.Equal(t, "t1", out[0].ID)
	assert.True(t, g.CanTransition("s1", "s2"))
	assert.False(t, g.CanTransition("s2", "s1"))

	st, ok := g.StateByName("Closed")
	require.True(t, ok)
	assert.Equal(t, "s3", st.ID)
}

func TestNewGraph_Validation(t *testing.T) {
	noInitial := []domain.WorkflowState{{ID: "a", WorkflowID: "wf", Name: "A"}}
	_, err := NewGraph("wf", noInitial, nil)
	assert.ErrorIs(t, err, ErrNoInitialState)

	states := []domain.WorkflowState{
		{ID: "a", WorkflowID: "wf", Name: "A", IsInitial: true},
		{ID: "b", WorkflowID: "wf", Name: "B"},
	}
	_, err = NewGraph("wf", states, []domain.WorkflowTransition{
		{ID: "t1", WorkflowID: "wf", SourceStateID: "a", TargetStateID: "zzz"},
	})
	assert.ErrorIs(t, err, ErrForeignState)

	_, err = NewGraph("wf", states, []domain.WorkflowTransition{
		{ID: "t1", WorkflowID: "wf", SourceStateID: "a", TargetStateID: "b"},
		{ID: "t2", WorkflowID: "wf", SourceStateID: "a", TargetStateID: "b"},
	})
	assert.ErrorIs(t, err, ErrDuplicateTransition)

	_, err = NewGraph("wf", states, []domain.WorkflowTransition{
		{ID: "t1", WorkflowID: "other", SourceStateID: "a", TargetStateID: "b"},
	})
	assert.ErrorIs(t, err, ErrForeignState)

	_, err = NewGraph("wf", states, []domain.WorkflowTransition{
		{ID: "t1", WorkflowID: "wf", SourceStateID: "a", TargetStateID: "b", SLADurationHours: hours(-1)},
	})
	assert.ErrorIs(t, err, ErrNegativeSLA)
}
