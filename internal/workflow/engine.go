package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/audit"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

const defaultBulkLimit = 100

// ContentHasher digests a stored file for signing.
type ContentHasher interface {
	Hash(ctx context.Context, key string) (digest string, algorithm string, err error)
}

// Engine performs every status-changing operation on documents. Each call is
// one unit of work holding the document row lock; hooks and notifications run
// only after it commits.
type Engine struct {
	store     Store
	statuses  *StatusPolicy
	access    *access.Policy
	trail     *audit.Trail
	hooks     []namedHook
	notifier  Notifier
	hasher    ContentHasher
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
	bulkLimit int
}

type namedHook struct {
	name string
	hook CommitHook
}

type Option func(*Engine)

// WithHook registers a post-commit hook. Hooks run in registration order.
func WithHook(name string, hook CommitHook) Option {
	return func(e *Engine) {
		if hook != nil {
			e.hooks = append(e.hooks, namedHook{name: name, hook: hook})
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithContentHasher(h ContentHasher) Option {
	return func(e *Engine) { e.hasher = h }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithBulkLimit caps the number of documents in one bulk request.
func WithBulkLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.bulkLimit = n
		}
	}
}

func WithAccessPolicy(p *access.Policy) Option {
	return func(e *Engine) { e.access = p }
}

func NewEngine(store Store, trail *audit.Trail, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		statuses:  NewStatusPolicy(),
		access:    access.NewPolicy(),
		trail:     trail,
		logger:    zap.NewNop(),
		now:       time.Now,
		bulkLimit: defaultBulkLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Statuses() *StatusPolicy {
	return e.statuses
}

// outcome is what a committed action hands to the post-commit stage.
type outcome struct {
	event      Event
	recipients recipientSpec
}

type recipientSpec struct {
	users       []uuid.UUID
	departments []uuid.UUID
}

// Perform runs one action against one document on behalf of actor.
func (e *Engine) Perform(ctx context.Context, action Action, documentID uuid.UUID, actor access.Actor, params Params) (*documents.Document, error) {
	spec, ok := actionSpecs[action]
	if !ok {
		return nil, invalidInput("unknown action %q", action)
	}

	started := e.now()
	var out outcome
	err := e.store.Atomic(ctx, func(tx Tx) error {
		var err error
		out, err = e.perform(ctx, tx, action, spec, documentID, actor, params)
		return err
	})
	err = classify(err)
	e.metrics.observeAction(action, err, e.now().Sub(started))

	if err != nil {
		e.logFailure(action, documentID, actor, err)
		return nil, err
	}

	e.afterCommit(ctx, out)
	return out.event.Document.Clone(), nil
}

func (e *Engine) perform(ctx context.Context, tx Tx, action Action, spec actionSpec, documentID uuid.UUID, actor access.Actor, params Params) (outcome, error) {
	doc, err := tx.LockDocument(ctx, documentID)
	if err != nil {
		return outcome{}, classify(err)
	}

	if err := e.statuses.precondition(action, doc.Status, params); err != nil {
		return outcome{}, err
	}

	routed, err := tx.RoutedDepartments(ctx, doc.ID)
	if err != nil {
		return outcome{}, classify(err)
	}
	if !e.access.Authorize(actor, doc, spec.operation, access.NewRouteSet(routed...)) {
		return outcome{}, forbidden("%s is not allowed to %s document %s", actor.ID, action, doc.DocumentNumber)
	}

	now := e.now().UTC()
	oldStatus := doc.Status
	expectedVersion := doc.Version

	ch, err := e.apply(ctx, tx, action, doc, actor, params, now)
	if err != nil {
		return outcome{}, err
	}

	meta := map[string]interface{}{
		audit.KeyOldStatus: string(oldStatus),
		audit.KeyNewStatus: string(doc.Status),
	}
	if remarks := strings.TrimSpace(params.Remarks); remarks != "" {
		meta[audit.KeyRemarks] = remarks
	}
	if reason := strings.TrimSpace(params.Reason); reason != "" {
		meta[audit.KeyReason] = reason
	}
	for k, v := range ch.metadata {
		meta[k] = v
	}

	docID := doc.ID
	actorID := actor.ID
	_, err = e.trail.WithStore(tx.AuditStore()).Append(ctx, audit.Record{
		DocumentID:     &docID,
		DocumentNumber: doc.DocumentNumber,
		ActorID:        &actorID,
		Action:         spec.auditTag,
		Description:    ch.description,
		Metadata:       meta,
	})
	if err != nil {
		return outcome{}, classify(err)
	}

	if action == ActionDelete {
		if err := tx.DeleteDocument(ctx, doc.ID); err != nil {
			return outcome{}, classify(err)
		}
	} else {
		doc.UpdatedAt = now
		if err := tx.SaveDocument(ctx, doc, expectedVersion); err != nil {
			return outcome{}, classify(err)
		}
	}

	return outcome{
		event: Event{
			Name:       spec.event,
			Action:     action,
			Document:   doc.Clone(),
			OldStatus:  oldStatus,
			NewStatus:  doc.Status,
			ActorID:    actor.ID,
			Remarks:    strings.TrimSpace(params.Remarks),
			OccurredAt: now,
		},
		recipients: ch.recipients,
	}, nil
}

type change struct {
	description string
	metadata    map[string]interface{}
	recipients  recipientSpec
}

// apply mutates doc in place and writes the route or signature rows the action
// owns. The precondition has already passed.
func (e *Engine) apply(ctx context.Context, tx Tx, action Action, doc *documents.Document, actor access.Actor, params Params, now time.Time) (change, error) {
	actorID := actor.ID
	owners := ownerRecipients(doc)

	switch action {
	case ActionForward:
		if params.ToDepartmentID == nil || *params.ToDepartmentID == uuid.Nil {
			return change{}, invalidInput("forward requires a destination department")
		}
		to := *params.ToDepartmentID
		exists, err := tx.DepartmentExists(ctx, to)
		if err != nil {
			return change{}, classify(err)
		}
		if !exists {
			return change{}, notFound("department %s", to)
		}
		if params.AssignTo != nil {
			if _, err := e.activeUser(ctx, tx, *params.AssignTo); err != nil {
				return change{}, err
			}
		}

		from := cloneID(doc.CurrentDepartmentID)
		route := &documents.Route{
			ID:               uuid.New(),
			DocumentID:       doc.ID,
			FromDepartmentID: from,
			ToDepartmentID:   to,
			UserID:           actorID,
			Status:           documents.RouteSent,
			Remarks:          strings.TrimSpace(params.Remarks),
			CreatedAt:        now,
		}
		if err := tx.CreateRoute(ctx, route); err != nil {
			return change{}, classify(err)
		}

		doc.Status = documents.StatusSubmitted
		doc.CurrentDepartmentID = &to
		if doc.OriginDepartmentID == nil && from != nil {
			doc.OriginDepartmentID = cloneID(from)
		}
		doc.SenderID = &actorID

		recipients := recipientSpec{users: []uuid.UUID{doc.CreatedBy}, departments: []uuid.UUID{to}}
		if params.AssignTo != nil {
			assignee := *params.AssignTo
			doc.AssignedTo = &assignee
			recipients.users = append(recipients.users, assignee)
		}

		meta := map[string]interface{}{"to_department_id": to.String(), "route_id": route.ID.String()}
		if from != nil {
			meta["from_department_id"] = from.String()
		}
		stampOnce(&doc.SubmittedAt, now, "submitted_at", meta)
		return change{
			description: "Document forwarded",
			metadata:    meta,
			recipients:  recipients,
		}, nil

	case ActionReceive:
		meta := map[string]interface{}{}
		doc.Status = documents.StatusReceived
		if stampOnce(&doc.ReceivedAt, now, "received_at", meta) {
			doc.ReceivedBy = &actorID
		}
		return change{description: "Document received", metadata: meta, recipients: owners}, nil

	case ActionReject:
		reason := strings.TrimSpace(params.Reason)
		if reason == "" {
			return change{}, invalidInput("a rejection reason is required")
		}
		doc.Status = documents.StatusRejected
		doc.RejectedBy = &actorID
		doc.RejectedAt = timePtr(now)
		doc.RejectionReason = &reason
		return change{description: "Document rejected", recipients: owners}, nil

	case ActionSign:
		sig, err := e.signature(ctx, doc, actorID, params, now)
		if err != nil {
			return change{}, err
		}
		if err := tx.CreateSignature(ctx, sig); err != nil {
			return change{}, classify(err)
		}
		meta := map[string]interface{}{
			"signature_id": sig.ID.String(),
			"algorithm":    sig.Algorithm,
		}
		doc.Status = documents.StatusApproved
		if stampOnce(&doc.ApprovedAt, now, "approved_at", meta) {
			doc.ApprovedBy = &actorID
		}
		return change{description: "Document signed", metadata: meta}, nil

	case ActionApprove:
		meta := map[string]interface{}{}
		doc.Status = documents.StatusApproved
		if stampOnce(&doc.ApprovedAt, now, "approved_at", meta) {
			doc.ApprovedBy = &actorID
		}
		return change{description: "Document approved", metadata: meta, recipients: owners}, nil

	case ActionHold:
		reason := strings.TrimSpace(params.Reason)
		if reason == "" {
			return change{}, invalidInput("a hold reason is required")
		}
		doc.Status = documents.StatusOnHold
		doc.HoldReason = &reason
		doc.HoldAt = timePtr(now)
		return change{description: "Document put on hold", recipients: owners}, nil

	case ActionResume:
		doc.Status = documents.StatusSubmitted
		doc.HoldReason = nil
		doc.HoldAt = nil
		return change{description: "Document resumed", recipients: owners}, nil

	case ActionComplete:
		doc.Status = documents.StatusCompleted
		doc.CompletedAt = timePtr(now)
		return change{description: "Document completed", recipients: owners}, nil

	case ActionAssign:
		if params.AssignTo == nil || *params.AssignTo == uuid.Nil {
			return change{}, invalidInput("assign requires an assignee")
		}
		assignee, err := e.activeUser(ctx, tx, *params.AssignTo)
		if err != nil {
			return change{}, err
		}
		meta := map[string]interface{}{"assigned_to": assignee.ID.String()}
		if doc.AssignedTo != nil {
			meta["previous_assignee"] = doc.AssignedTo.String()
		}
		id := assignee.ID
		doc.AssignedTo = &id
		return change{
			description: "Document assigned to " + assignee.Name,
			metadata:    meta,
			recipients:  recipientSpec{users: []uuid.UUID{id}},
		}, nil

	case ActionUpdateStatus:
		target := params.TargetStatus
		if doc.Status == documents.StatusOnHold {
			doc.HoldReason = nil
			doc.HoldAt = nil
		}
		doc.Status = target
		if target == documents.StatusCompleted {
			doc.CompletedAt = timePtr(now)
		}
		return change{
			description: "Status updated to " + documents.StatusLabel(target),
			recipients:  owners,
		}, nil

	case ActionDelete:
		return change{description: "Document deleted"}, nil
	}

	return change{}, invalidInput("unknown action %q", action)
}

func (e *Engine) signature(ctx context.Context, doc *documents.Document, signer uuid.UUID, params Params, now time.Time) (*documents.Signature, error) {
	sig := &documents.Signature{
		ID:                 uuid.New(),
		DocumentID:         doc.ID,
		SignerID:           signer,
		Algorithm:          "none",
		VerificationStatus: documents.VerificationPending,
		SignedAt:           now,
		Certificate: map[string]interface{}{
			"document_number": doc.DocumentNumber,
			"signer_id":       signer.String(),
		},
	}
	if remarks := strings.TrimSpace(params.Remarks); remarks != "" {
		sig.Certificate["remarks"] = remarks
	}

	if doc.FileKey == nil || *doc.FileKey == "" || e.hasher == nil {
		return sig, nil
	}

	digest, algorithm, err := e.hasher.Hash(ctx, *doc.FileKey)
	if err != nil {
		return nil, fmt.Errorf("%w: hash %s: %w", ErrStorage, *doc.FileKey, err)
	}
	sig.ContentHash = &digest
	sig.Algorithm = algorithm
	sig.VerificationStatus = documents.VerificationVerified
	sig.Certificate["file_key"] = *doc.FileKey
	return sig, nil
}

func (e *Engine) activeUser(ctx context.Context, tx Tx, id uuid.UUID) (*directory.User, error) {
	user, err := tx.FindUser(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	if !user.IsActive {
		return nil, invalidInput("user %s is inactive", id)
	}
	return user, nil
}

// afterCommit runs hooks then notifications. Nothing here can fail the action.
func (e *Engine) afterCommit(ctx context.Context, out outcome) {
	ctx = context.WithoutCancel(ctx)

	for _, h := range e.hooks {
		if err := h.hook.AfterCommit(ctx, out.event); err != nil {
			e.metrics.hookFailed(h.name)
			e.logger.Warn("Post-commit hook failed",
				zap.String("hook", h.name),
				zap.String("event", out.event.Name),
				zap.String("document_id", out.event.Document.ID.String()),
				zap.Error(err),
			)
		}
	}

	if e.notifier == nil || (len(out.recipients.users) == 0 && len(out.recipients.departments) == 0) {
		return
	}

	recipients, err := e.resolveRecipients(ctx, out.recipients)
	if err != nil {
		e.logger.Warn("Failed to resolve notification recipients",
			zap.String("event", out.event.Name),
			zap.String("document_id", out.event.Document.ID.String()),
			zap.Error(fmt.Errorf("%w: %w", ErrNotification, err)),
		)
		return
	}
	if len(recipients) == 0 {
		return
	}

	doc := out.event.Document
	e.notifier.Notify(ctx, recipients,
		notificationTitle(out.event.Action),
		fmt.Sprintf("%s \"%s\" is now %s.", doc.DocumentNumber, doc.Title, documents.StatusLabel(doc.Status)),
		out.event.Name,
		map[string]interface{}{
			"document_id":     doc.ID.String(),
			"document_number": doc.DocumentNumber,
			"action":          string(out.event.Action),
			"old_status":      string(out.event.OldStatus),
			"new_status":      string(out.event.NewStatus),
		},
	)
}

func (e *Engine) resolveRecipients(ctx context.Context, spec recipientSpec) ([]directory.User, error) {
	var out []directory.User

	seen := make(map[uuid.UUID]struct{}, len(spec.users))
	ids := make([]uuid.UUID, 0, len(spec.users))
	for _, id := range spec.users {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		users, err := e.store.Users(ctx, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, users...)
	}

	for _, dept := range spec.departments {
		members, err := e.store.DepartmentMembers(ctx, dept)
		if err != nil {
			return nil, err
		}
		out = append(out, members...)
	}
	return out, nil
}

func (e *Engine) logFailure(action Action, documentID uuid.UUID, actor access.Actor, err error) {
	switch KindOf(err) {
	case KindStorage:
		e.logger.Error("Workflow action failed",
			zap.String("action", string(action)),
			zap.String("document_id", documentID.String()),
			zap.String("actor_id", actor.ID.String()),
			zap.Error(err),
		)
	case KindConflict:
		e.logger.Warn("Workflow action lost a concurrent update",
			zap.String("action", string(action)),
			zap.String("document_id", documentID.String()),
			zap.String("actor_id", actor.ID.String()),
			zap.Error(err),
		)
	}
}

func ownerRecipients(doc *documents.Document) recipientSpec {
	users := []uuid.UUID{doc.CreatedBy}
	if doc.AssignedTo != nil {
		users = append(users, *doc.AssignedTo)
	}
	return recipientSpec{users: users}
}

func notificationTitle(action Action) string {
	switch action {
	case ActionForward:
		return "Document forwarded"
	case ActionReceive:
		return "Document received"
	case ActionReject:
		return "Document rejected"
	case ActionApprove:
		return "Document approved"
	case ActionHold:
		return "Document on hold"
	case ActionResume:
		return "Document resumed"
	case ActionComplete:
		return "Document completed"
	case ActionAssign:
		return "Document assigned to you"
	case ActionUpdateStatus:
		return "Document status updated"
	default:
		return "Document updated"
	}
}

func cloneID(v *uuid.UUID) *uuid.UUID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// stampOnce sets a lifecycle marker the first time its transition happens and
// reports whether it did. A repeat keeps the original and notes the new time
// in meta under "repeated_<name>".
func stampOnce(field **time.Time, now time.Time, name string, meta map[string]interface{}) bool {
	if *field == nil {
		*field = timePtr(now)
		return true
	}
	meta["repeated_"+name] = now.Format(time.RFC3339Nano)
	return false
}
