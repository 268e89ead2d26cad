package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestMachine() *StateMachine[string] {
	return NewStateMachine(map[string][]string{
		"DRAFT":     {"SUBMITTED"},
		"SUBMITTED": {"APPROVED", "REJECTED"},
		"APPROVED":  {},
		"REJECTED":  {},
	})
}

func TestStateMachine_CanTransition(t *testing.T) {
	sm := newTestMachine()

	assert.True(t, sm.CanTransition("DRAFT", "SUBMITTED"))
	assert.False(t, sm.CanTransition("SUBMITTED", "DRAFT"))
	assert.False(t, sm.CanTransition("UNKNOWN", "DRAFT"))
	assert.False(t, sm.CanTransition("DRAFT", "UNKNOWN"))
}

func TestStateMachine_GetAllowedTransitionsIsSortedCopy(t *testing.T) {
	sm := newTestMachine()

	got := sm.GetAllowedTransitions("SUBMITTED")
	assert.Equal(t, []string{"APPROVED", "REJECTED"}, got)

	got[0] = "MUTATED"
	assert.Equal(t, []string{"APPROVED", "REJECTED"}, sm.GetAllowedTransitions("SUBMITTED"))
	assert.Empty(t, sm.GetAllowedTransitions("UNKNOWN"))
}

func TestStateMachine_Terminal(t *testing.T) {
	sm := newTestMachine()

	assert.True(t, sm.IsTerminal("APPROVED"))
	assert.False(t, sm.IsTerminal("DRAFT"))
	assert.False(t, sm.IsTerminal("UNKNOWN"))
	assert.True(t, sm.Knows("REJECTED"))
	assert.Equal(t, []string{"APPROVED", "DRAFT", "REJECTED", "SUBMITTED"}, sm.States())
}
