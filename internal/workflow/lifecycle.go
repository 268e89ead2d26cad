package workflow

import (
	"context"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/audit"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

// NewDocument is the input to Create.
type NewDocument struct {
	Title         string                  `json:"title"`
	Description   string                  `json:"description"`
	Type          documents.DocumentType  `json:"type"`
	Priority      documents.Priority      `json:"priority"`
	SecurityLevel documents.SecurityLevel `json:"security_level"`
	DepartmentID  *uuid.UUID              `json:"department_id,omitempty"`
	Barcode       *string                 `json:"barcode,omitempty"`
	FileKey       *string                 `json:"file_key,omitempty"`
	Deadline      *time.Time              `json:"deadline,omitempty"`
	Metadata      map[string]interface{}  `json:"metadata,omitempty"`
}

// DetailsPatch changes descriptive fields only. Nil fields are left alone.
type DetailsPatch struct {
	Title         *string                  `json:"title,omitempty"`
	Description   *string                  `json:"description,omitempty"`
	Priority      *documents.Priority      `json:"priority,omitempty"`
	SecurityLevel *documents.SecurityLevel `json:"security_level,omitempty"`
	Deadline      *time.Time               `json:"deadline,omitempty"`
	ClearDeadline bool                     `json:"clear_deadline,omitempty"`
	FileKey       *string                  `json:"file_key,omitempty"`
	Metadata      map[string]interface{}   `json:"metadata,omitempty"`
}

func (p DetailsPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.SecurityLevel == nil &&
		p.Deadline == nil && !p.ClearDeadline && p.FileKey == nil && p.Metadata == nil
}

// Create registers a new DRAFT document numbered {PREFIX}-{YEAR}-{NNNN}.
func (e *Engine) Create(ctx context.Context, actor access.Actor, in NewDocument) (*documents.Document, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalidInput("title is required")
	}
	if !in.Type.IsValid() {
		return nil, invalidInput("unknown document type %q", in.Type)
	}
	if in.Priority == "" {
		in.Priority = documents.PriorityMedium
	}
	if !in.Priority.IsValid() {
		return nil, invalidInput("unknown priority %q", in.Priority)
	}
	if in.SecurityLevel == "" {
		in.SecurityLevel = documents.SecurityInternal
	}
	if !in.SecurityLevel.IsValid() {
		return nil, invalidInput("unknown security level %q", in.SecurityLevel)
	}
	if !actor.IsAdmin && !actor.Clears(in.SecurityLevel) {
		return nil, forbidden("clearance %s cannot create %s documents", actor.Clearance, in.SecurityLevel)
	}

	dept := cloneID(actor.DepartmentID)
	if in.DepartmentID != nil {
		if !actor.IsAdmin && !actor.InDepartment(in.DepartmentID) {
			return nil, forbidden("cannot create documents for another office")
		}
		dept = cloneID(in.DepartmentID)
	}

	started := e.now()
	var created *documents.Document
	err := e.store.Atomic(ctx, func(tx Tx) error {
		if dept != nil {
			exists, err := tx.DepartmentExists(ctx, *dept)
			if err != nil {
				return classify(err)
			}
			if !exists {
				return notFound("department %s", *dept)
			}
		}

		now := e.now().UTC()
		prefix := in.Type.Prefix()
		seq, err := tx.NextSequence(ctx, prefix, now.Year())
		if err != nil {
			return classify(err)
		}

		doc := &documents.Document{
			ID:                  uuid.New(),
			DocumentNumber:      documents.FormatNumber(prefix, now.Year(), seq),
			Barcode:             in.Barcode,
			Title:               title,
			Description:         strings.TrimSpace(in.Description),
			Type:                in.Type,
			Priority:            in.Priority,
			SecurityLevel:       in.SecurityLevel,
			Status:              documents.StatusDraft,
			CurrentDepartmentID: dept,
			OriginDepartmentID:  cloneID(dept),
			CreatedBy:           actor.ID,
			Deadline:            in.Deadline,
			FileKey:             in.FileKey,
			Version:             1,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if in.Metadata != nil {
			doc.Metadata = maps.Clone(in.Metadata)
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return classify(err)
		}

		docID := doc.ID
		actorID := actor.ID
		if _, err := e.trail.WithStore(tx.AuditStore()).Append(ctx, audit.Record{
			DocumentID:     &docID,
			DocumentNumber: doc.DocumentNumber,
			ActorID:        &actorID,
			Action:         audit.ActionCreated,
			Description:    "Document created",
			Metadata: map[string]interface{}{
				audit.KeyNewStatus: string(doc.Status),
				"type":             string(doc.Type),
			},
		}); err != nil {
			return classify(err)
		}

		created = doc
		return nil
	})
	err = classify(err)
	e.metrics.observeAction(ActionCreate, err, e.now().Sub(started))
	if err != nil {
		e.logFailure(ActionCreate, uuid.Nil, actor, err)
		return nil, err
	}

	e.logger.Info("Document created",
		zap.String("document_id", created.ID.String()),
		zap.String("document_number", created.DocumentNumber),
		zap.String("actor_id", actor.ID.String()),
	)
	e.afterCommit(ctx, outcome{event: Event{
		Name:       "document.created",
		Action:     ActionCreate,
		Document:   created.Clone(),
		NewStatus:  created.Status,
		ActorID:    actor.ID,
		OccurredAt: created.CreatedAt,
	}})
	return created.Clone(), nil
}

// UpdateDetails edits descriptive fields. Status is never touched here, so it is
// allowed on terminal documents too.
func (e *Engine) UpdateDetails(ctx context.Context, documentID uuid.UUID, actor access.Actor, patch DetailsPatch) (*documents.Document, error) {
	if patch.empty() {
		return nil, invalidInput("nothing to update")
	}

	started := e.now()
	var out outcome
	err := e.store.Atomic(ctx, func(tx Tx) error {
		doc, err := tx.LockDocument(ctx, documentID)
		if err != nil {
			return classify(err)
		}
		routed, err := tx.RoutedDepartments(ctx, doc.ID)
		if err != nil {
			return classify(err)
		}
		if !e.access.Authorize(actor, doc, access.OpUpdate, access.NewRouteSet(routed...)) {
			return forbidden("%s is not allowed to update document %s", actor.ID, doc.DocumentNumber)
		}

		changed, err := applyPatch(doc, patch, actor)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			out = outcome{event: Event{Document: doc.Clone()}}
			return nil
		}

		now := e.now().UTC()
		expectedVersion := doc.Version

		docID := doc.ID
		actorID := actor.ID
		if _, err := e.trail.WithStore(tx.AuditStore()).Append(ctx, audit.Record{
			DocumentID:     &docID,
			DocumentNumber: doc.DocumentNumber,
			ActorID:        &actorID,
			Action:         audit.ActionUpdated,
			Description:    "Document details updated",
			Metadata:       map[string]interface{}{"fields": changed},
		}); err != nil {
			return classify(err)
		}

		doc.UpdatedAt = now
		if err := tx.SaveDocument(ctx, doc, expectedVersion); err != nil {
			return classify(err)
		}

		out = outcome{event: Event{
			Name:       "document.updated",
			Action:     ActionUpdate,
			Document:   doc.Clone(),
			OldStatus:  doc.Status,
			NewStatus:  doc.Status,
			ActorID:    actor.ID,
			OccurredAt: now,
		}}
		return nil
	})
	err = classify(err)
	e.metrics.observeAction(ActionUpdate, err, e.now().Sub(started))
	if err != nil {
		e.logFailure(ActionUpdate, documentID, actor, err)
		return nil, err
	}

	if out.event.Name != "" {
		e.afterCommit(ctx, out)
	}
	return out.event.Document.Clone(), nil
}

// applyPatch returns the sorted names of the fields it changed.
func applyPatch(doc *documents.Document, patch DetailsPatch, actor access.Actor) ([]string, error) {
	var changed []string

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, invalidInput("title cannot be empty")
		}
		if title != doc.Title {
			doc.Title = title
			changed = append(changed, "title")
		}
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) != doc.Description {
		doc.Description = strings.TrimSpace(*patch.Description)
		changed = append(changed, "description")
	}
	if patch.Priority != nil && *patch.Priority != doc.Priority {
		if !patch.Priority.IsValid() {
			return nil, invalidInput("unknown priority %q", *patch.Priority)
		}
		doc.Priority = *patch.Priority
		changed = append(changed, "priority")
	}
	if patch.SecurityLevel != nil && *patch.SecurityLevel != doc.SecurityLevel {
		if !patch.SecurityLevel.IsValid() {
			return nil, invalidInput("unknown security level %q", *patch.SecurityLevel)
		}
		if !actor.IsAdmin && !actor.Clears(*patch.SecurityLevel) {
			return nil, forbidden("clearance %s cannot classify documents as %s", actor.Clearance, *patch.SecurityLevel)
		}
		doc.SecurityLevel = *patch.SecurityLevel
		changed = append(changed, "security_level")
	}
	switch {
	case patch.ClearDeadline && doc.Deadline != nil:
		doc.Deadline = nil
		changed = append(changed, "deadline")
	case patch.Deadline != nil && (doc.Deadline == nil || !doc.Deadline.Equal(*patch.Deadline)):
		d := *patch.Deadline
		doc.Deadline = &d
		changed = append(changed, "deadline")
	}
	if patch.FileKey != nil && (doc.FileKey == nil || *doc.FileKey != *patch.FileKey) {
		key := *patch.FileKey
		doc.FileKey = &key
		changed = append(changed, "file_key")
	}
	if patch.Metadata != nil {
		if doc.Metadata == nil {
			doc.Metadata = map[string]interface{}{}
		}
		for k, v := range patch.Metadata {
			doc.Metadata[k] = v
		}
		changed = append(changed, "metadata")
	}

	sort.Strings(changed)
	return changed, nil
}
