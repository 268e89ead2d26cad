package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

// OverdueFinder lists in-flight documents whose deadline has passed.
type OverdueFinder interface {
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]documents.Document, error)
}

type UserLookup interface {
	GetUsers(ctx context.Context, ids []uuid.UUID) ([]directory.User, error)
}

// Notifier matches the workflow engine's notification sink.
type Notifier interface {
	Notify(ctx context.Context, recipients []directory.User, title, message, event string, payload map[string]interface{})
}

// DeadlineSweeper reminds the assignee and the creator of overdue documents.
// A document is reminded at most once per window.
type DeadlineSweeper struct {
	documents OverdueFinder
	users     UserLookup
	notifier  Notifier
	window    time.Duration
	batch     int
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	reminded map[uuid.UUID]time.Time
}

func NewDeadlineSweeper(docs OverdueFinder, users UserLookup, notifier Notifier, window time.Duration, logger *zap.Logger) *DeadlineSweeper {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadlineSweeper{
		documents: docs,
		users:     users,
		notifier:  notifier,
		window:    window,
		batch:     200,
		logger:    logger,
		now:       time.Now,
		reminded:  make(map[uuid.UUID]time.Time),
	}
}

func (s *DeadlineSweeper) Name() string { return "deadline-sweeper" }

func (s *DeadlineSweeper) Run(ctx context.Context) error {
	now := s.now().UTC()
	overdue, err := s.documents.ListOverdue(ctx, now, s.batch)
	if err != nil {
		return fmt.Errorf("failed to list overdue documents: %w", err)
	}

	s.forget(now)

	sent := 0
	for i := range overdue {
		doc := &overdue[i]
		if !s.due(doc.ID, now) {
			continue
		}

		ids := []uuid.UUID{doc.CreatedBy}
		if doc.AssignedTo != nil {
			ids = append(ids, *doc.AssignedTo)
		}
		recipients, err := s.users.GetUsers(ctx, ids)
		if err != nil {
			s.logger.Warn("Failed to resolve reminder recipients",
				zap.String("document_id", doc.ID.String()),
				zap.Error(err),
			)
			continue
		}

		late := now.Sub(*doc.Deadline).Round(time.Minute)
		s.notifier.Notify(ctx, recipients,
			"Document Overdue",
			fmt.Sprintf("%s \"%s\" is %s past its deadline and still %s.",
				doc.DocumentNumber, doc.Title, late, documents.StatusLabel(doc.Status)),
			"document.overdue",
			map[string]interface{}{
				"document_id":     doc.ID.String(),
				"document_number": doc.DocumentNumber,
				"status":          string(doc.Status),
				"deadline":        doc.Deadline.UTC().Format(time.RFC3339),
			},
		)
		s.mark(doc.ID, now)
		sent++
	}

	if sent > 0 {
		s.logger.Info("Overdue reminders sent", zap.Int("documents", sent), zap.Int("overdue", len(overdue)))
	}
	return nil
}

func (s *DeadlineSweeper) due(id uuid.UUID, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.reminded[id]
	return !ok || now.Sub(last) >= s.window
}

func (s *DeadlineSweeper) mark(id uuid.UUID, now time.Time) {
	s.mu.Lock()
	s.reminded[id] = now
	s.mu.Unlock()
}

// forget drops entries old enough that they no longer throttle anything.
func (s *DeadlineSweeper) forget(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, at := range s.reminded {
		if now.Sub(at) >= s.window {
			delete(s.reminded, id)
		}
	}
}

// InboxPruner deletes old read notifications.
type InboxPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// InboxCleanup removes read notifications older than retention.
type InboxCleanup struct {
	inbox     InboxPruner
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewInboxCleanup(inbox InboxPruner, retention time.Duration, logger *zap.Logger) *InboxCleanup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InboxCleanup{inbox: inbox, retention: retention, logger: logger, now: time.Now}
}

func (c *InboxCleanup) Name() string { return "inbox-cleanup" }

func (c *InboxCleanup) Run(ctx context.Context) error {
	n, err := c.inbox.Prune(ctx, c.now().UTC().Add(-c.retention))
	if err != nil {
		return err
	}
	if n > 0 {
		c.logger.Info("Pruned read notifications", zap.Int64("count", n))
	}
	return nil
}
