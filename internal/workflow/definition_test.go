package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const supportFlow = `
name: support
description: default support flow
states:
  - name: Open
    initial: true
  - name: InProgress
  - name: Closed
    final: true
transitions:
  - from: Open
    to: InProgress
    sla_hours: 4
  - from: InProgress
    to: Closed
    sla_hours: 2
  - from: InProgress
    to: Open
`

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%02d", n)
	}
}

func TestParseAndMaterialize(t *testing.T) {
	def, err := ParseDefinition([]byte(supportFlow))
	require.NoError(t, err)
	assert.Equal(t, "support", def.Name)
	require.Len(t, def.States, 3)
	require.Len(t, def.Transitions, 3)
	assert.Nil(t, def.Transitions[2].SLAHours)

	g, err := Materialize("wf", *def, sequentialIDs())
	require.NoError(t, err)

	open, ok := g.StateByName("Open")
	require.True(t, ok)
	assert.True(t, open.IsInitial)
	inProgress, _ := g.StateByName("InProgress")
	assert.True(t, g.CanTransition(open.ID, inProgress.ID))

	back := Definition(def.Name, def.Description, g)
	assert.ElementsMatch(t, def.States, back.States)
	assert.ElementsMatch(t, def.Transitions, back.Transitions)
}

func TestMaterialize_RejectsUnknownState(t *testing.T) {
	def, err := ParseDefinition([]byte(`
name: broken
states:
  - name: Open
    initial: true
transitions:
  - from: Open
    to: Nowhere
`))
	require.NoError(t, err)
	_, err = Materialize("wf", *def, sequentialIDs())
	assert.ErrorIs(t, err, ErrUnknownStateName)
}

func TestMaterialize_RejectsDuplicateStateNames(t *testing.T) {
	def, err := ParseDefinition([]byte(`
name: dup
states:
  - name: Open
    initial: true
  - name: Open
`))
	require.NoError(t, err)
	_, err = Materialize("wf", *def, sequentialIDs())
	assert.ErrorIs(t, err, ErrDuplicateStateName)
}

func TestMaterializeOver_KeepsStateIDsByName(t *testing.T) {
	def, err := ParseDefinition([]byte(supportFlow))
	require.NoError(t, err)

	existing := map[string]string{"Open": "keep-open", "Gone": "keep-gone"}
	g, err := MaterializeOver("wf", *def, existing, sequentialIDs())
	require.NoError(t, err)

	open, ok := g.StateByName("Open")
	require.True(t, ok)
	assert.Equal(t, "keep-open", open.ID)

	closed, ok := g.StateByName("Closed")
	require.True(t, ok)
	assert.NotEqual(t, "keep-gone", closed.ID)
	assert.Len(t, g.States(), 3)
}
