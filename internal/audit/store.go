package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store persists entries. It intentionally has no update or delete.
type Store interface {
	Insert(ctx context.Context, entry *Entry) error
	ListByDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]Entry, error)
	ListByActor(ctx context.Context, actorID uuid.UUID, limit int) ([]Entry, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewGormStore binds the store to db, which may be a transaction handle.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Insert(ctx context.Context, entry *Entry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (s *gormStore) ListByDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC, id ASC").
		Limit(normalizeLimit(limit)).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

func (s *gormStore) ListByActor(ctx context.Context, actorID uuid.UUID, limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("actor_id = ?", actorID).
		Order("created_at DESC, id DESC").
		Limit(normalizeLimit(limit)).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries by actor: %w", err)
	}
	return entries, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 500
	}
	return limit
}
