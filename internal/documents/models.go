package documents

import (
	"maps"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Document is the tracked paper. Status and the ownership/timestamp columns are
// only written by the workflow engine.
type Document struct {
	ID                  uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentNumber      string            `json:"document_number" gorm:"column:document_number;size:32;not null;uniqueIndex"`
	Barcode             *string           `json:"barcode,omitempty" gorm:"size:64"`
	Title               string            `json:"title" gorm:"size:255;not null"`
	Description         string            `json:"description" gorm:"type:text"`
	Type                DocumentType      `json:"type" gorm:"column:type;size:32;not null"`
	Priority            Priority          `json:"priority" gorm:"size:16;not null"`
	SecurityLevel       SecurityLevel     `json:"security_level" gorm:"size:16;not null"`
	Status              Status            `json:"status" gorm:"size:32;not null;index"`
	CurrentDepartmentID *uuid.UUID        `json:"current_department_id,omitempty" gorm:"type:uuid;index"`
	OriginDepartmentID  *uuid.UUID        `json:"origin_department_id,omitempty" gorm:"type:uuid"`
	HoldReason          *string           `json:"hold_reason,omitempty" gorm:"type:text"`
	HoldAt              *time.Time        `json:"hold_at,omitempty"`
	CreatedBy           uuid.UUID         `json:"created_by" gorm:"type:uuid;not null;index"`
	SenderID            *uuid.UUID        `json:"sender_id,omitempty" gorm:"type:uuid"`
	AssignedTo          *uuid.UUID        `json:"assigned_to,omitempty" gorm:"type:uuid;index"`
	ReceivedBy          *uuid.UUID        `json:"received_by,omitempty" gorm:"type:uuid"`
	ApprovedBy          *uuid.UUID        `json:"approved_by,omitempty" gorm:"type:uuid"`
	RejectedBy          *uuid.UUID        `json:"rejected_by,omitempty" gorm:"type:uuid"`
	RejectionReason     *string           `json:"rejection_reason,omitempty" gorm:"type:text"`
	SubmittedAt         *time.Time        `json:"submitted_at,omitempty"`
	ReceivedAt          *time.Time        `json:"received_at,omitempty"`
	ApprovedAt          *time.Time        `json:"approved_at,omitempty"`
	RejectedAt          *time.Time        `json:"rejected_at,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	ArchivedAt          *time.Time        `json:"archived_at,omitempty"`
	Deadline            *time.Time        `json:"deadline,omitempty"`
	FileKey             *string           `json:"file_key,omitempty" gorm:"size:512"`
	Metadata            datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	Version             int               `json:"version" gorm:"not null;default:1"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func (Document) TableName() string { return "documents" }

// Clone returns a copy that shares no mutable state with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Barcode = cloneString(d.Barcode)
	c.CurrentDepartmentID = cloneUUID(d.CurrentDepartmentID)
	c.OriginDepartmentID = cloneUUID(d.OriginDepartmentID)
	c.HoldReason = cloneString(d.HoldReason)
	c.HoldAt = cloneTime(d.HoldAt)
	c.SenderID = cloneUUID(d.SenderID)
	c.AssignedTo = cloneUUID(d.AssignedTo)
	c.ReceivedBy = cloneUUID(d.ReceivedBy)
	c.ApprovedBy = cloneUUID(d.ApprovedBy)
	c.RejectedBy = cloneUUID(d.RejectedBy)
	c.RejectionReason = cloneString(d.RejectionReason)
	c.SubmittedAt = cloneTime(d.SubmittedAt)
	c.ReceivedAt = cloneTime(d.ReceivedAt)
	c.ApprovedAt = cloneTime(d.ApprovedAt)
	c.RejectedAt = cloneTime(d.RejectedAt)
	c.CompletedAt = cloneTime(d.CompletedAt)
	c.ArchivedAt = cloneTime(d.ArchivedAt)
	c.Deadline = cloneTime(d.Deadline)
	c.FileKey = cloneString(d.FileKey)
	if d.Metadata != nil {
		c.Metadata = maps.Clone(d.Metadata)
	}
	return &c
}

// IsOverdue reports whether the deadline has passed for a document still in flight.
func (d *Document) IsOverdue(now time.Time) bool {
	if d.Deadline == nil {
		return false
	}
	switch d.Status {
	case StatusCompleted, StatusRejected, StatusArchived:
		return false
	}
	return now.After(*d.Deadline)
}

type RouteStatus string

const (
	RouteSent     RouteStatus = "sent"
	RouteReceived RouteStatus = "received"
	RouteRejected RouteStatus = "rejected"
	RouteApproved RouteStatus = "approved"
)

// Route records one physical hand-off between offices. Rows are never updated.
type Route struct {
	ID               uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentID       uuid.UUID   `json:"document_id" gorm:"type:uuid;not null;index"`
	FromDepartmentID *uuid.UUID  `json:"from_department_id,omitempty" gorm:"type:uuid"`
	ToDepartmentID   uuid.UUID   `json:"to_department_id" gorm:"type:uuid;not null;index"`
	UserID           uuid.UUID   `json:"user_id" gorm:"type:uuid;not null"`
	Status           RouteStatus `json:"status" gorm:"size:16;not null"`
	Remarks          string      `json:"remarks" gorm:"type:text"`
	CreatedAt        time.Time   `json:"created_at"`
}

func (Route) TableName() string { return "document_routes" }

type VerificationStatus string

const (
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
	VerificationUnverified VerificationStatus = "unverified"
)

// Signature is one signing event. Re-signing inserts a new row.
type Signature struct {
	ID                 uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentID         uuid.UUID          `json:"document_id" gorm:"type:uuid;not null;index"`
	SignerID           uuid.UUID          `json:"signer_id" gorm:"type:uuid;not null"`
	ContentHash        *string            `json:"content_hash,omitempty" gorm:"size:128"`
	Algorithm          string             `json:"algorithm" gorm:"size:32;not null"`
	Certificate        datatypes.JSONMap  `json:"certificate,omitempty" gorm:"type:jsonb"`
	VerificationStatus VerificationStatus `json:"verification_status" gorm:"size:16;not null"`
	SignedAt           time.Time          `json:"signed_at"`
}

func (Signature) TableName() string { return "document_signatures" }

func cloneUUID(v *uuid.UUID) *uuid.UUID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
