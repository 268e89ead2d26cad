package workflows

import (
	"cmp"
	"slices"
)

// StateMachine is an immutable transition table. It is safe for concurrent use
// because nothing mutates it after construction.
type StateMachine[S cmp.Ordered] struct {
	allowedTransitions map[S]map[S]struct{}
}

// NewStateMachine creates a state machine from an adjacency list. Every state that
// should be recognised must appear as a key, terminal states with an empty list.
func NewStateMachine[S cmp.Ordered](transitions map[S][]S) *StateMachine[S] {
	sm := &StateMachine[S]{
		allowedTransitions: make(map[S]map[S]struct{}, len(transitions)),
	}
	for from, targets := range transitions {
		set := make(map[S]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		sm.allowedTransitions[from] = set
	}
	return sm
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine[S]) CanTransition(from, to S) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	_, ok := allowed[to]
	return ok
}

// GetAllowedTransitions returns the allowed next states, sorted.
func (sm *StateMachine[S]) GetAllowedTransitions(from S) []S {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []S{}
	}
	out := make([]S, 0, len(allowed))
	for to := range allowed {
		out = append(out, to)
	}
	slices.Sort(out)
	return out
}

// IsTerminal reports whether a known state has no outgoing transitions.
func (sm *StateMachine[S]) IsTerminal(state S) bool {
	allowed, exists := sm.allowedTransitions[state]
	return exists && len(allowed) == 0
}

// Knows reports whether the state is part of the table.
func (sm *StateMachine[S]) Knows(state S) bool {
	_, exists := sm.allowedTransitions[state]
	return exists
}

// States returns every state in the table, sorted.
func (sm *StateMachine[S]) States() []S {
	out := make([]S, 0, len(sm.allowedTransitions))
	for s := range sm.allowedTransitions {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
