package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/cache"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

// Lifecycle events that are not performable actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Event describes one committed change.
type Event struct {
	Name       string              `json:"event"`
	Action     Action              `json:"action"`
	Document   *documents.Document `json:"document"`
	OldStatus  documents.Status    `json:"old_status,omitempty"`
	NewStatus  documents.Status    `json:"new_status,omitempty"`
	ActorID    uuid.UUID           `json:"actor_id"`
	Remarks    string              `json:"remarks,omitempty"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// Deleted reports whether the document row no longer exists. Document then
// holds the last committed state.
func (e Event) Deleted() bool {
	return e.Action == ActionDelete
}

// CommitHook runs after a unit of work has committed. Errors are logged by the
// engine and never reach the caller.
type CommitHook interface {
	AfterCommit(ctx context.Context, event Event) error
}

type CommitHookFunc func(ctx context.Context, event Event) error

func (f CommitHookFunc) AfterCommit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Notifier delivers user-facing notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, recipients []directory.User, title, message, event string, payload map[string]interface{})
}

// fenceTTL must outlive any read-model TTL.
const fenceTTL = 24 * time.Hour

// CacheInvalidator drops every cached read model a committed change can make
// stale, then raises the document's version fence and the list generation so
// a reader that loaded the old row before the commit cannot republish it.
type CacheInvalidator struct {
	cache cache.Cache
	now   func() time.Time
}

func NewCacheInvalidator(c cache.Cache) *CacheInvalidator {
	return &CacheInvalidator{cache: c, now: time.Now}
}

func (h *CacheInvalidator) AfterCommit(ctx context.Context, event Event) error {
	if event.Document == nil {
		return nil
	}
	doc := event.Document

	keys := []string{cache.TrackKey(doc.DocumentNumber)}
	if doc.Barcode != nil && *doc.Barcode != "" {
		keys = append(keys, cache.TrackKey(*doc.Barcode))
	}

	fence := doc.Version
	if event.Deleted() {
		fence++
	}

	return errors.Join(
		h.cache.Set(ctx, cache.FenceKey(doc.ID), fence, fenceTTL),
		h.cache.Set(ctx, cache.ListGenerationKey, h.now().UnixNano(), fenceTTL),
		h.cache.DeleteByPrefix(ctx, cache.DocumentPrefix(doc.ID)),
		h.cache.Delete(ctx, keys...),
		h.cache.DeleteByPrefix(ctx, cache.ListPrefix),
	)
}
