package workflow

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/audit"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

type Action string

const (
	ActionForward  Action = "forward"
	ActionReceive  Action = "receive"
	ActionReject   Action = "reject"
	ActionSign     Action = "sign"
	ActionApprove  Action = "approve"
	ActionHold     Action = "hold"
	ActionResume   Action = "resume"
	ActionComplete Action = "complete"

	// Bulk-oriented actions.
	ActionAssign       Action = "assign"
	ActionUpdateStatus Action = "update_status"
	ActionDelete       Action = "delete"
)

// WorkflowActions are the eight status-changing actions, in display order.
var WorkflowActions = []Action{
	ActionForward,
	ActionReceive,
	ActionReject,
	ActionSign,
	ActionApprove,
	ActionHold,
	ActionResume,
	ActionComplete,
}

type actionSpec struct {
	operation access.Operation
	auditTag  string
	event     string
}

var actionSpecs = map[Action]actionSpec{
	ActionForward:      {operation: access.OpForward, auditTag: audit.ActionForwarded, event: "document.forwarded"},
	ActionReceive:      {operation: access.OpReceive, auditTag: audit.ActionReceived, event: "document.received"},
	ActionReject:       {operation: access.OpReject, auditTag: audit.ActionRejected, event: "document.rejected"},
	ActionSign:         {operation: access.OpSign, auditTag: audit.ActionSigned, event: "document.signed"},
	ActionApprove:      {operation: access.OpApprove, auditTag: audit.ActionApproved, event: "document.approved"},
	ActionHold:         {operation: access.OpHold, auditTag: audit.ActionHeld, event: "document.on_hold"},
	ActionResume:       {operation: access.OpResume, auditTag: audit.ActionResumed, event: "document.resumed"},
	ActionComplete:     {operation: access.OpComplete, auditTag: audit.ActionCompleted, event: "document.completed"},
	ActionAssign:       {operation: access.OpAssign, auditTag: audit.ActionAssigned, event: "document.assigned"},
	ActionUpdateStatus: {operation: access.OpUpdate, auditTag: audit.ActionStatusUpdated, event: "document.status_updated"},
	ActionDelete:       {operation: access.OpDelete, auditTag: audit.ActionDeleted, event: "document.deleted"},
}

// ParseAction accepts "forward", "FORWARD", "bulk-forward" style input.
func ParseAction(raw string) (Action, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "bulk-")
	s = strings.ReplaceAll(s, "-", "_")
	if s == "status_update" {
		s = string(ActionUpdateStatus)
	}
	a := Action(s)
	_, ok := actionSpecs[a]
	return a, ok
}

func (a Action) IsValid() bool {
	_, ok := actionSpecs[a]
	return ok
}

// Params carries the caller-supplied inputs of an action. Each action reads only
// the fields it needs.
type Params struct {
	ToDepartmentID *uuid.UUID       `json:"to_department_id,omitempty"`
	AssignTo       *uuid.UUID       `json:"assigned_to,omitempty"`
	TargetStatus   documents.Status `json:"status,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	Remarks        string           `json:"remarks,omitempty"`
}

// genericTargets are the statuses reachable through update_status. The others
// carry required fields and have their own actions.
var genericTargets = map[documents.Status]struct{}{
	documents.StatusPending:         {},
	documents.StatusUnderReview:     {},
	documents.StatusForApproval:     {},
	documents.StatusRouted:          {},
	documents.StatusAwaitingPayment: {},
	documents.StatusPaid:            {},
	documents.StatusCompleted:       {},
}

// targetStatus returns the status an action moves the document to, or "" for
// actions that leave status alone.
func targetStatus(action Action, params Params) documents.Status {
	switch action {
	case ActionForward, ActionResume:
		return documents.StatusSubmitted
	case ActionReceive:
		return documents.StatusReceived
	case ActionReject:
		return documents.StatusRejected
	case ActionSign, ActionApprove:
		return documents.StatusApproved
	case ActionHold:
		return documents.StatusOnHold
	case ActionComplete:
		return documents.StatusCompleted
	case ActionUpdateStatus:
		return params.TargetStatus
	default:
		return ""
	}
}

// precondition checks the action's semantic predicate and the status table.
func (p *StatusPolicy) precondition(action Action, current documents.Status, params Params) error {
	if action.IsValid() && action != ActionDelete && !p.Knows(current) {
		return invalidState("document has unrecognised status %q", current)
	}
	target := targetStatus(action, params)

	var ok bool
	switch action {
	case ActionForward:
		ok = p.CanBeForwarded(current)
	case ActionReceive:
		ok = p.CanBeReceived(current)
	case ActionReject:
		ok = true
	case ActionSign:
		ok = p.CanBeSigned(current)
	case ActionApprove:
		ok = p.CanBeApproved(current)
	case ActionHold:
		ok = p.CanBePutOnHold(current)
	case ActionResume:
		ok = p.CanBeResumed(current)
	case ActionComplete:
		ok = p.CanBeCompleted(current)
	case ActionUpdateStatus:
		if _, allowed := genericTargets[target]; !allowed {
			return invalidInput("status %q cannot be set directly", target)
		}
		ok = true
	case ActionAssign:
		if p.IsTerminal(current) {
			return invalidState("cannot assign a %s document", current)
		}
		return nil
	case ActionDelete:
		return nil
	default:
		return invalidInput("unknown action %q", action)
	}

	if !ok || !p.CanTransition(current, target) {
		return invalidState("cannot %s a document in status %s", action, current)
	}
	return nil
}

// Available reports whether the action could run from status, ignoring
// authorization and parameters.
func (p *StatusPolicy) Available(action Action, current documents.Status) bool {
	return p.precondition(action, current, Params{}) == nil
}
