package audit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrEmptyAction = errors.New("audit action is required")

// Record is the input to Append.
type Record struct {
	DocumentID     *uuid.UUID
	DocumentNumber string
	ActorID        *uuid.UUID
	Action         string
	Description    string
	Metadata       map[string]interface{}
}

// clock hands out strictly increasing timestamps at microsecond precision,
// which is what Postgres keeps.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// Trail is the append-only audit log.
type Trail struct {
	store  Store
	clock  *clock
	logger *zap.Logger
}

type Option func(*Trail)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) {
		t.clock.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Trail) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTrail(store Store, opts ...Option) *Trail {
	t := &Trail{
		store:  store,
		clock:  &clock{now: time.Now},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithStore returns a trail writing through store, typically a transaction-bound
// one, while sharing the timestamp sequence with t.
func (t *Trail) WithStore(store Store) *Trail {
	return &Trail{store: store, clock: t.clock, logger: t.logger}
}

// Append writes one entry. The metadata map is copied.
func (t *Trail) Append(ctx context.Context, rec Record) (*Entry, error) {
	action := strings.TrimSpace(rec.Action)
	if action == "" {
		return nil, ErrEmptyAction
	}

	entry := &Entry{
		ID:             uuid.New(),
		DocumentID:     rec.DocumentID,
		DocumentNumber: rec.DocumentNumber,
		ActorID:        rec.ActorID,
		Action:         action,
		Description:    rec.Description,
		CreatedAt:      t.clock.next(),
	}
	if rec.Metadata != nil {
		entry.Metadata = maps.Clone(rec.Metadata)
	}

	if err := t.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append %s entry: %w", action, err)
	}
	return entry, nil
}

// RecordAccess logs reads such as views and scans. Losing one is acceptable, so
// failures are only logged.
func (t *Trail) RecordAccess(ctx context.Context, rec Record) {
	if _, err := t.Append(ctx, rec); err != nil {
		fields := []zap.Field{zap.String("action", rec.Action), zap.Error(err)}
		if rec.DocumentID != nil {
			fields = append(fields, zap.String("document_id", rec.DocumentID.String()))
		}
		t.logger.Warn("Failed to record document access", fields...)
	}
}

// History returns a document's entries in creation order.
func (t *Trail) History(ctx context.Context, documentID uuid.UUID, limit int) ([]Entry, error) {
	return t.store.ListByDocument(ctx, documentID, limit)
}

// ByActor returns an actor's most recent entries first.
func (t *Trail) ByActor(ctx context.Context, actorID uuid.UUID, limit int) ([]Entry, error) {
	return t.store.ListByActor(ctx, actorID, limit)
}
