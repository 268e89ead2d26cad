package workflow

import (
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/pkg/workflows"
)

// StatusPolicy is the document status table plus the narrower per-action
// predicates the engine gates on. It holds no mutable state.
type StatusPolicy struct {
	machine *workflows.StateMachine[documents.Status]
}

func NewStatusPolicy() *StatusPolicy {
	return &StatusPolicy{
		machine: workflows.NewStateMachine(map[documents.Status][]documents.Status{
			documents.StatusDraft:           {documents.StatusSubmitted, documents.StatusPending},
			documents.StatusPending:         {documents.StatusUnderReview, documents.StatusSubmitted, documents.StatusRejected, documents.StatusOnHold},
			documents.StatusSubmitted:       {documents.StatusReceived, documents.StatusRejected, documents.StatusOnHold},
			documents.StatusUnderReview:     {documents.StatusApproved, documents.StatusRejected, documents.StatusOnHold},
			documents.StatusForApproval:     {documents.StatusApproved, documents.StatusRejected, documents.StatusOnHold},
			documents.StatusRouted:          {documents.StatusReceived},
			documents.StatusAwaitingPayment: {documents.StatusPaid, documents.StatusOnHold},
			documents.StatusPaid:            {documents.StatusCompleted},
			documents.StatusReceived:        {documents.StatusApproved, documents.StatusRejected, documents.StatusOnHold},
			documents.StatusApproved:        {documents.StatusSubmitted, documents.StatusCompleted},
			documents.StatusRejected:        {},
			documents.StatusOnHold:          {documents.StatusSubmitted, documents.StatusPending},
			documents.StatusCompleted:       {},
			documents.StatusArchived:        {},
		}),
	}
}

// CanTransition is defined for every pair; unknown statuses are never legal.
func (p *StatusPolicy) CanTransition(from, to documents.Status) bool {
	return p.machine.CanTransition(from, to)
}

func (p *StatusPolicy) AllowedTransitions(from documents.Status) []documents.Status {
	return p.machine.GetAllowedTransitions(from)
}

func (p *StatusPolicy) IsTerminal(s documents.Status) bool {
	return p.machine.IsTerminal(s)
}

// Knows reports whether s is in the status table. A stored document outside it
// cannot take any workflow action.
func (p *StatusPolicy) Knows(s documents.Status) bool {
	return p.machine.Knows(s)
}

func (p *StatusPolicy) CanBeForwarded(s documents.Status) bool {
	switch s {
	case documents.StatusDraft, documents.StatusSubmitted, documents.StatusReceived, documents.StatusApproved:
		return true
	}
	return false
}

func (p *StatusPolicy) CanBeReceived(s documents.Status) bool {
	return s == documents.StatusSubmitted
}

func (p *StatusPolicy) CanBeSigned(s documents.Status) bool {
	return s == documents.StatusReceived
}

func (p *StatusPolicy) CanBeApproved(s documents.Status) bool {
	switch s {
	case documents.StatusReceived, documents.StatusUnderReview, documents.StatusForApproval:
		return true
	}
	return false
}

func (p *StatusPolicy) CanBeCompleted(s documents.Status) bool {
	return s == documents.StatusApproved
}

func (p *StatusPolicy) CanBePutOnHold(s documents.Status) bool {
	return s == documents.StatusSubmitted || s == documents.StatusReceived
}

func (p *StatusPolicy) CanBeResumed(s documents.Status) bool {
	return s == documents.StatusOnHold
}
