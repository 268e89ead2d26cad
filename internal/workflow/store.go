package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/audit"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

// Store is the persistence port of the engine.
type Store interface {
	// Atomic runs fn in one unit of work. Any error from fn rolls back every
	// write made through the Tx.
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	FindDocument(ctx context.Context, id uuid.UUID) (*documents.Document, error)
	Users(ctx context.Context, ids []uuid.UUID) ([]directory.User, error)
	DepartmentMembers(ctx context.Context, departmentID uuid.UUID) ([]directory.User, error)
}

// Tx is the set of writes and locked reads available inside Atomic.
type Tx interface {
	// LockDocument loads the row and holds an exclusive lock on it until the
	// unit of work ends.
	LockDocument(ctx context.Context, id uuid.UUID) (*documents.Document, error)
	SaveDocument(ctx context.Context, doc *documents.Document, expectedVersion int) error
	CreateDocument(ctx context.Context, doc *documents.Document) error
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	NextSequence(ctx context.Context, prefix string, year int) (int, error)

	CreateRoute(ctx context.Context, route *documents.Route) error
	RoutedDepartments(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error)
	CreateSignature(ctx context.Context, signature *documents.Signature) error

	DepartmentExists(ctx context.Context, id uuid.UUID) (bool, error)
	FindUser(ctx context.Context, id uuid.UUID) (*directory.User, error)

	AuditStore() audit.Store
}

// GormStore runs units of work as Postgres transactions.
type GormStore struct {
	db   *gorm.DB
	docs documents.Repository
	dirs directory.Repository
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:   db,
		docs: documents.NewRepository(db),
		dirs: directory.NewRepository(db),
	}
}

func (s *GormStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{
			docs:  documents.NewRepository(db),
			dirs:  directory.NewRepository(db),
			audit: audit.NewGormStore(db),
		})
	})
}

func (s *GormStore) FindDocument(ctx context.Context, id uuid.UUID) (*documents.Document, error) {
	return s.docs.GetDocumentByID(ctx, id)
}

func (s *GormStore) Users(ctx context.Context, ids []uuid.UUID) ([]directory.User, error) {
	return s.dirs.GetUsers(ctx, ids)
}

func (s *GormStore) DepartmentMembers(ctx context.Context, departmentID uuid.UUID) ([]directory.User, error) {
	return s.dirs.ListDepartmentMembers(ctx, departmentID)
}

type gormTx struct {
	docs  documents.Repository
	dirs  directory.Repository
	audit audit.Store
}

func (t *gormTx) LockDocument(ctx context.Context, id uuid.UUID) (*documents.Document, error) {
	return t.docs.GetDocumentForUpdate(ctx, id)
}

func (t *gormTx) SaveDocument(ctx context.Context, doc *documents.Document, expectedVersion int) error {
	return t.docs.UpdateDocument(ctx, doc, expectedVersion)
}

func (t *gormTx) CreateDocument(ctx context.Context, doc *documents.Document) error {
	return t.docs.CreateDocument(ctx, doc)
}

func (t *gormTx) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	return t.docs.DeleteDocument(ctx, id)
}

func (t *gormTx) NextSequence(ctx context.Context, prefix string, year int) (int, error) {
	return t.docs.NextSequence(ctx, prefix, year)
}

func (t *gormTx) CreateRoute(ctx context.Context, route *documents.Route) error {
	return t.docs.CreateRoute(ctx, route)
}

func (t *gormTx) RoutedDepartments(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	return t.docs.RoutedDepartments(ctx, documentID)
}

func (t *gormTx) CreateSignature(ctx context.Context, signature *documents.Signature) error {
	return t.docs.CreateSignature(ctx, signature)
}

func (t *gormTx) DepartmentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return t.dirs.DepartmentExists(ctx, id)
}

func (t *gormTx) FindUser(ctx context.Context, id uuid.UUID) (*directory.User, error) {
	user, err := t.dirs.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", id, err)
	}
	return user, nil
}

func (t *gormTx) AuditStore() audit.Store {
	return t.audit
}
