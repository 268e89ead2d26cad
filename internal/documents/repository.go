package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document was modified concurrently")
	ErrDuplicateNumber = errors.New("document number already exists")
)

// Filters narrows List queries. Zero values are ignored.
type Filters struct {
	Status       *Status
	DepartmentID *uuid.UUID
	Type         *DocumentType
	AssignedTo   *uuid.UUID
	CreatedBy    *uuid.UUID
	Number       string
	Query        string
	Limit        int
	Offset       int
}

type Repository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetDocumentForUpdate(ctx context.Context, id uuid.UUID) (*Document, error)
	GetDocumentByNumber(ctx context.Context, number string) (*Document, error)
	ListDocuments(ctx context.Context, filters Filters) ([]Document, int64, error)
	GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]Document, error)
	UpdateDocument(ctx context.Context, doc *Document, expectedVersion int) error
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]Document, error)

	NextSequence(ctx context.Context, prefix string, year int) (int, error)

	CreateRoute(ctx context.Context, route *Route) error
	ListRoutes(ctx context.Context, documentID uuid.UUID) ([]Route, error)
	RoutedDepartments(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error)

	CreateSignature(ctx context.Context, signature *Signature) error
	ListSignatures(ctx context.Context, documentID uuid.UUID) ([]Signature, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository binds the repository to db, which may be a transaction handle.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateDocument(ctx context.Context, doc *Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateNumber, doc.DocumentNumber)
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *gormRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "failed to get document")
	}
	return &doc, nil
}

// GetDocumentForUpdate takes a row lock held until the surrounding transaction ends.
func (r *gormRepository) GetDocumentForUpdate(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "failed to lock document")
	}
	return &doc, nil
}

func (r *gormRepository) GetDocumentByNumber(ctx context.Context, number string) (*Document, error) {
	var doc Document
	err := r.db.WithContext(ctx).
		Where("document_number = UPPER(?) OR barcode = ?", number, number).
		First(&doc).Error
	if err != nil {
		return nil, notFound(err, "failed to get document by number")
	}
	return &doc, nil
}

func (r *gormRepository) ListDocuments(ctx context.Context, filters Filters) ([]Document, int64, error) {
	query := r.db.WithContext(ctx).Model(&Document{})

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DepartmentID != nil {
		query = query.Where("current_department_id = ?", *filters.DepartmentID)
	}
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *filters.AssignedTo)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Number != "" {
		query = query.Where("document_number = ?", filters.Number)
	}
	if q := strings.TrimSpace(filters.Query); q != "" {
		like := "%" + q + "%"
		query = query.Where("title ILIKE ? OR document_number ILIKE ? OR description ILIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var docs []Document
	err := query.Order("created_at DESC").
		Limit(limit).
		Offset(filters.Offset).
		Find(&docs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, total, nil
}

func (r *gormRepository) GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]Document, error) {
	if len(ids) == 0 {
		return []Document{}, nil
	}
	var docs []Document
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	return docs, nil
}

// UpdateDocument writes every column and bumps the version. The write only lands
// when the stored version still equals expectedVersion.
func (r *gormRepository) UpdateDocument(ctx context.Context, doc *Document, expectedVersion int) error {
	doc.Version = expectedVersion + 1
	result := r.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ? AND version = ?", doc.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at", "created_by", "document_number").
		Updates(doc)
	if result.Error != nil {
		doc.Version = expectedVersion
		return fmt.Errorf("failed to update document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		doc.Version = expectedVersion
		return ErrVersionConflict
	}
	return nil
}

// DeleteDocument removes the row. Audit entries keep their history because the
// foreign key from document_logs is ON DELETE SET NULL.
func (r *gormRepository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Document{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	var docs []Document
	err := r.db.WithContext(ctx).
		Where("deadline IS NOT NULL AND deadline < ?", now).
		Where("status NOT IN ?", []Status{StatusCompleted, StatusRejected, StatusArchived}).
		Order("deadline ASC").
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue documents: %w", err)
	}
	return docs, nil
}

// NextSequence increments the (prefix, year) counter under the row lock taken by
// the upsert, so concurrent creators never receive the same number.
func (r *gormRepository) NextSequence(ctx context.Context, prefix string, year int) (int, error) {
	var value int
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO document_sequences (prefix, year, last_value)
		VALUES (?, ?, 1)
		ON CONFLICT (prefix, year)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`, prefix, year).Scan(&value).Error
	if err != nil {
		return 0, fmt.Errorf("failed to allocate document sequence: %w", err)
	}
	return value, nil
}

func (r *gormRepository) CreateRoute(ctx context.Context, route *Route) error {
	if err := r.db.WithContext(ctx).Create(route).Error; err != nil {
		return fmt.Errorf("failed to create route: %w", err)
	}
	return nil
}

func (r *gormRepository) ListRoutes(ctx context.Context, documentID uuid.UUID) ([]Route, error) {
	var routes []Route
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&routes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	return routes, nil
}

func (r *gormRepository) RoutedDepartments(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&Route{}).
		Distinct("to_department_id").
		Where("document_id = ?", documentID).
		Pluck("to_department_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list routed departments: %w", err)
	}
	return ids, nil
}

func (r *gormRepository) CreateSignature(ctx context.Context, signature *Signature) error {
	if err := r.db.WithContext(ctx).Create(signature).Error; err != nil {
		return fmt.Errorf("failed to create signature: %w", err)
	}
	return nil
}

func (r *gormRepository) ListSignatures(ctx context.Context, documentID uuid.UUID) ([]Signature, error) {
	var signatures []Signature
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("signed_at ASC").
		Find(&signatures).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}
	return signatures, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
