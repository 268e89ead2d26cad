package directory

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

// Department is an office that can hold documents.
type Department struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Code       string     `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Name       string     `json:"name" gorm:"size:255;not null"`
	HeadUserID *uuid.UUID `json:"head_user_id,omitempty" gorm:"type:uuid"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Department) TableName() string { return "departments" }

type User struct {
	ID           uuid.UUID               `json:"id" gorm:"type:uuid;primaryKey"`
	Name         string                  `json:"name" gorm:"size:255;not null"`
	Email        string                  `json:"email" gorm:"size:255;not null;uniqueIndex"`
	DepartmentID *uuid.UUID              `json:"department_id,omitempty" gorm:"type:uuid;index"`
	Roles        pq.StringArray          `json:"roles" gorm:"type:text[]"`
	Clearance    documents.SecurityLevel `json:"clearance" gorm:"size:16;not null"`
	IsAdmin      bool                    `json:"is_admin" gorm:"not null;default:false"`
	IsActive     bool                    `json:"is_active" gorm:"not null;default:true"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Actor converts the stored user into the descriptor the access policy reads.
func (u *User) Actor() access.Actor {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)

	var dept *uuid.UUID
	if u.DepartmentID != nil {
		d := *u.DepartmentID
		dept = &d
	}

	return access.Actor{
		ID:           u.ID,
		IsAdmin:      u.IsAdmin,
		DepartmentID: dept,
		Clearance:    u.Clearance,
		Roles:        roles,
	}
}
