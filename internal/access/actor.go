package access

import (
	"slices"

	"github.com/google/uuid"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

// Domain roles recognised by the policy.
const (
	RoleProcurement    = "procurement"
	RoleFinance        = "finance"
	RoleDepartmentHead = "department_head"
)

// Actor describes what a caller is allowed to be, independent of how it
// authenticated.
type Actor struct {
	ID           uuid.UUID               `json:"id"`
	IsAdmin      bool                    `json:"is_admin"`
	DepartmentID *uuid.UUID              `json:"department_id,omitempty"`
	Clearance    documents.SecurityLevel `json:"clearance"`
	Roles        []string                `json:"roles,omitempty"`
}

func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// InDepartment reports whether the actor belongs to dept. Nil never matches.
func (a Actor) InDepartment(dept *uuid.UUID) bool {
	return a.DepartmentID != nil && dept != nil && *a.DepartmentID == *dept
}

// Clears reports whether the actor's clearance reaches level.
func (a Actor) Clears(level documents.SecurityLevel) bool {
	if !a.Clearance.IsValid() {
		return false
	}
	return a.Clearance.Rank() >= level.Rank()
}
