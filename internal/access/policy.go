package access

import (
	"github.com/google/uuid"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

// Operation is what an actor wants to do with a document.
type Operation string

const (
	OpRead     Operation = "read"
	OpUpdate   Operation = "update"
	OpForward  Operation = "forward"
	OpReceive  Operation = "receive"
	OpReject   Operation = "reject"
	OpSign     Operation = "sign"
	OpApprove  Operation = "approve"
	OpHold     Operation = "hold"
	OpResume   Operation = "resume"
	OpComplete Operation = "complete"
	OpAssign   Operation = "assign"
	OpDelete   Operation = "delete"
)

// Rule names returned by Explain.
const (
	RuleAdmin          = "admin"
	RuleOwner          = "owner"
	RuleOffice         = "office"
	RuleClearance      = "clearance"
	RuleRouted         = "routed"
	RuleProcurement    = "role:" + RoleProcurement
	RuleFinance        = "role:" + RoleFinance
	RuleDepartmentHead = "role:" + RoleDepartmentHead
	RuleDefault        = "default"
)

// RouteHistory answers whether a document has ever been routed to a department.
type RouteHistory interface {
	RoutedTo(departmentID uuid.UUID) bool
}

// RouteSet is a RouteHistory backed by a set of destination departments.
type RouteSet map[uuid.UUID]struct{}

func NewRouteSet(departmentIDs ...uuid.UUID) RouteSet {
	set := make(RouteSet, len(departmentIDs))
	for _, id := range departmentIDs {
		set[id] = struct{}{}
	}
	return set
}

func (s RouteSet) RoutedTo(departmentID uuid.UUID) bool {
	_, ok := s[departmentID]
	return ok
}

type opSet map[Operation]struct{}

func ops(list ...Operation) opSet {
	set := make(opSet, len(list))
	for _, op := range list {
		set[op] = struct{}{}
	}
	return set
}

func (s opSet) has(op Operation) bool {
	_, ok := s[op]
	return ok
}

// Policy is the single authorization decision point for document operations.
// Rules are evaluated in order and the first one that decides wins.
type Policy struct {
	ownerOps  opSet
	officeOps opSet
	routedOps opSet
}

func NewPolicy() *Policy {
	return &Policy{
		ownerOps:  ops(OpForward, OpUpdate, OpSign, OpApprove, OpComplete, OpAssign, OpRead),
		officeOps: ops(OpReceive, OpHold, OpResume, OpReject, OpForward, OpComplete, OpRead),
		routedOps: ops(OpRead, OpReceive),
	}
}

// Authorize reports whether actor may perform op on doc. routes may be nil when
// the caller has no routing history at hand.
func (p *Policy) Authorize(actor Actor, doc *documents.Document, op Operation, routes RouteHistory) bool {
	allowed, _ := p.Explain(actor, doc, op, routes)
	return allowed
}

// Explain is Authorize plus the name of the rule that decided.
func (p *Policy) Explain(actor Actor, doc *documents.Document, op Operation, routes RouteHistory) (bool, string) {
	if doc == nil {
		return false, RuleDefault
	}

	if actor.IsAdmin {
		return true, RuleAdmin
	}

	isOwner := actor.ID == doc.CreatedBy || (doc.SenderID != nil && actor.ID == *doc.SenderID)
	if isOwner && p.ownerOps.has(op) {
		return true, RuleOwner
	}

	if actor.InDepartment(doc.CurrentDepartmentID) && p.officeOps.has(op) {
		return true, RuleOffice
	}

	if !actor.Clears(doc.SecurityLevel) {
		return false, RuleClearance
	}

	if routes != nil && actor.DepartmentID != nil && routes.RoutedTo(*actor.DepartmentID) && p.routedOps.has(op) {
		return true, RuleRouted
	}

	if op != OpDelete {
		if actor.HasRole(RoleProcurement) && doc.Type.IsProcurement() {
			return true, RuleProcurement
		}
		if actor.HasRole(RoleFinance) && isFinanceDocument(doc) {
			return true, RuleFinance
		}
		if actor.HasRole(RoleDepartmentHead) && actor.InDepartment(doc.CurrentDepartmentID) {
			return true, RuleDepartmentHead
		}
	}

	return false, RuleDefault
}

func isFinanceDocument(doc *documents.Document) bool {
	switch doc.Status {
	case documents.StatusAwaitingPayment, documents.StatusPaid:
		return true
	}
	return doc.Type == documents.TypeDisbursementVoucher
}
