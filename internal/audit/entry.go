package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Action tags written to the trail.
const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionForwarded     = "forwarded"
	ActionReceived      = "received"
	ActionRejected      = "rejected"
	ActionSigned        = "signed"
	ActionApproved      = "approved"
	ActionHeld          = "on_hold"
	ActionResumed       = "resumed"
	ActionCompleted     = "completed"
	ActionAssigned      = "assigned"
	ActionStatusUpdated = "status_updated"
	ActionDeleted       = "deleted"

	ActionAccessed = "accessed"
	ActionTracked  = "tracked"
	ActionScanned  = "scanned"
)

// Metadata keys shared by workflow entries.
const (
	KeyOldStatus = "old_status"
	KeyNewStatus = "new_status"
	KeyRemarks   = "remarks"
	KeyReason    = "reason"
)

// Entry is one immutable row of the trail. DocumentID becomes NULL when the
// document is deleted; DocumentNumber keeps the entry identifiable.
type Entry struct {
	ID             uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	DocumentID     *uuid.UUID        `json:"document_id,omitempty" gorm:"type:uuid;index"`
	DocumentNumber string            `json:"document_number,omitempty" gorm:"size:32"`
	ActorID        *uuid.UUID        `json:"actor_id,omitempty" gorm:"type:uuid;index"`
	Action         string            `json:"action" gorm:"size:64;not null;index"`
	Description    string            `json:"description" gorm:"type:text"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;index"`
}

func (Entry) TableName() string { return "document_logs" }
