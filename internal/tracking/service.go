package tracking

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/audit"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/cache"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/search"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/workflow"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/pkg/storage"
)

// Engine is the write side the service delegates to.
type Engine interface {
	Create(ctx context.Context, actor access.Actor, in workflow.NewDocument) (*documents.Document, error)
	UpdateDetails(ctx context.Context, documentID uuid.UUID, actor access.Actor, patch workflow.DetailsPatch) (*documents.Document, error)
	Perform(ctx context.Context, action workflow.Action, documentID uuid.UUID, actor access.Actor, params workflow.Params) (*documents.Document, error)
	BulkPerform(ctx context.Context, action workflow.Action, documentIDs []uuid.UUID, actor access.Actor, params workflow.Params) (workflow.BulkResult, error)
	GetStatus(ctx context.Context, documentID uuid.UUID) (workflow.StatusView, error)
}

// DocumentReader is the subset of the document repository used for reads.
type DocumentReader interface {
	GetDocumentByID(ctx context.Context, id uuid.UUID) (*documents.Document, error)
	GetDocumentByNumber(ctx context.Context, number string) (*documents.Document, error)
	ListDocuments(ctx context.Context, filters documents.Filters) ([]documents.Document, int64, error)
	GetDocumentsByIDs(ctx context.Context, ids []uuid.UUID) ([]documents.Document, error)
	ListRoutes(ctx context.Context, documentID uuid.UUID) ([]documents.Route, error)
	RoutedDepartments(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error)
	ListSignatures(ctx context.Context, documentID uuid.UUID) ([]documents.Signature, error)
}

type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// SignatureVerifier re-hashes a stored file and compares it with a recorded digest.
type SignatureVerifier interface {
	Verify(ctx context.Context, key, algorithm, expected string) (bool, error)
}

// SignatureCheck is the outcome of re-checking one signature against the
// document's current file. Valid is nil when there was nothing to compare.
type SignatureCheck struct {
	SignatureID uuid.UUID `json:"signature_id"`
	SignerID    uuid.UUID `json:"signer_id"`
	SignedAt    time.Time `json:"signed_at"`
	Algorithm   string    `json:"algorithm"`
	Valid       *bool     `json:"valid,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// Snapshot is a document together with the offices it was ever routed to,
// which is everything a read authorization needs.
type Snapshot struct {
	Document *documents.Document `json:"document"`
	Routed   []uuid.UUID         `json:"routed"`
}

// Page is one page of an access-filtered listing.
type Page struct {
	Documents []documents.Document `json:"documents"`
	Count     int                  `json:"count"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

// Source tells how a document was looked up by number.
type Source string

const (
	SourceManual Source = "manual"
	SourceScan   Source = "scan"
)

const presignTTL = 15 * time.Minute

// trackRef is what a tracking key caches: the document a lookup resolved to.
type trackRef struct {
	DocumentID uuid.UUID `json:"document_id"`
}

type cachedStatus struct {
	Version int                 `json:"version"`
	View    workflow.StatusView `json:"view"`
}

type Service struct {
	engine   Engine
	docs     DocumentReader
	trail    *audit.Trail
	policy   *access.Policy
	statuses *workflow.StatusPolicy
	cache    cache.Cache
	ttl      time.Duration
	searcher Searcher
	files    storage.S3Client
	bucket   string
	verifier SignatureVerifier
	logger   *zap.Logger
}

type Option func(*Service)

func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
			s.ttl = ttl
		}
	}
}

// WithSearch routes free-text queries to the index. Without it they fall back
// to a database ILIKE scan.
func WithSearch(searcher Searcher) Option {
	return func(s *Service) { s.searcher = searcher }
}

func WithFiles(files storage.S3Client, bucket string) Option {
	return func(s *Service) {
		s.files = files
		s.bucket = bucket
	}
}

func WithVerifier(v SignatureVerifier) Option {
	return func(s *Service) { s.verifier = v }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithPolicy(p *access.Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

func NewService(engine Engine, docs DocumentReader, trail *audit.Trail, opts ...Option) *Service {
	s := &Service{
		engine:   engine,
		docs:     docs,
		trail:    trail,
		policy:   access.NewPolicy(),
		statuses: workflow.NewStatusPolicy(),
		cache:    cache.Nop{},
		ttl:      5 * time.Minute,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, actor access.Actor, in workflow.NewDocument) (*documents.Document, error) {
	return s.engine.Create(ctx, actor, in)
}

func (s *Service) Update(ctx context.Context, actor access.Actor, id uuid.UUID, patch workflow.DetailsPatch) (*documents.Document, error) {
	return s.engine.UpdateDetails(ctx, id, actor, patch)
}

func (s *Service) Perform(ctx context.Context, actor access.Actor, action workflow.Action, id uuid.UUID, params workflow.Params) (*documents.Document, error) {
	return s.engine.Perform(ctx, action, id, actor, params)
}

func (s *Service) Bulk(ctx context.Context, actor access.Actor, action workflow.Action, ids []uuid.UUID, params workflow.Params) (workflow.BulkResult, error) {
	return s.engine.BulkPerform(ctx, action, ids, actor, params)
}

// Get returns a readable document and records the view.
func (s *Service) Get(ctx context.Context, actor access.Actor, id uuid.UUID) (*documents.Document, error) {
	snap, err := s.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, snap, access.OpRead); err != nil {
		return nil, err
	}

	s.trail.RecordAccess(ctx, accessRecord(snap.Document, actor, audit.ActionAccessed, "Document viewed", nil))
	return snap.Document, nil
}

// Track looks a document up by number or barcode.
func (s *Service) Track(ctx context.Context, actor access.Actor, number string, source Source) (*documents.Document, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, fmt.Errorf("%w: tracking number is required", workflow.ErrInvalidInput)
	}

	snap, ok := s.trackedSnapshot(ctx, number)
	if !ok {
		doc, err := s.docs.GetDocumentByNumber(ctx, number)
		if err != nil {
			return nil, workflow.Classify(err)
		}
		routed, err := s.docs.RoutedDepartments(ctx, doc.ID)
		if err != nil {
			return nil, workflow.Classify(err)
		}
		snap = Snapshot{Document: doc, Routed: routed}
		s.store(ctx, cache.DocumentKey(doc.ID), snap)
		s.store(ctx, cache.TrackKey(number), trackRef{DocumentID: doc.ID})
	}

	if err := s.authorize(actor, snap, access.OpRead); err != nil {
		return nil, err
	}

	action, desc := audit.ActionTracked, "Document tracked"
	if source == SourceScan {
		action, desc = audit.ActionScanned, "Document barcode scanned"
	}
	s.trail.RecordAccess(ctx, accessRecord(snap.Document, actor, action, desc, map[string]interface{}{
		"query":  number,
		"source": string(source),
	}))
	return snap.Document, nil
}

// List returns the page of documents matching filters that actor may read.
func (s *Service) List(ctx context.Context, actor access.Actor, filters documents.Filters) (*Page, error) {
	filters.Limit = clampLimit(filters.Limit)
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	key := s.listKey(ctx, actor, filters)

	var page Page
	if hit, err := s.cache.Get(ctx, key, &page); err == nil && hit {
		return &page, nil
	}

	docs, _, err := s.docs.ListDocuments(ctx, filters)
	if err != nil {
		return nil, workflow.Classify(err)
	}
	readable, err := s.readable(ctx, actor, docs)
	if err != nil {
		return nil, err
	}

	page = Page{Documents: readable, Count: len(readable), Limit: filters.Limit, Offset: filters.Offset}
	s.store(ctx, key, page)
	return &page, nil
}

// Search runs a free-text query through the index when one is configured, and
// through the database otherwise or when the index is unavailable.
func (s *Service) Search(ctx context.Context, actor access.Actor, q search.Query) (*Page, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, fmt.Errorf("%w: search text is required", workflow.ErrInvalidInput)
	}
	q.Limit = clampLimit(q.Limit)

	if s.searcher != nil {
		page, err := s.searchIndex(ctx, actor, q)
		if err == nil {
			return page, nil
		}
		s.logger.Warn("Search index unavailable, falling back to database", zap.Error(err))
	}

	filters := documents.Filters{Query: q.Text, DepartmentID: q.DepartmentID, Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		st := documents.Status(q.Status)
		filters.Status = &st
	}
	if q.Type != "" {
		dt := documents.DocumentType(q.Type)
		filters.Type = &dt
	}
	docs, _, err := s.docs.ListDocuments(ctx, filters)
	if err != nil {
		return nil, workflow.Classify(err)
	}
	readable, err := s.readable(ctx, actor, docs)
	if err != nil {
		return nil, err
	}
	return &Page{Documents: readable, Count: len(readable), Limit: q.Limit, Offset: q.Offset}, nil
}

func (s *Service) searchIndex(ctx context.Context, actor access.Actor, q search.Query) (*Page, error) {
	res, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}

	var docs []documents.Document
	if len(ids) > 0 {
		found, err := s.docs.GetDocumentsByIDs(ctx, ids)
		if err != nil {
			return nil, workflow.Classify(err)
		}
		byID := make(map[uuid.UUID]documents.Document, len(found))
		for _, d := range found {
			byID[d.ID] = d
		}
		// Keep relevance order; hits deleted since indexing are dropped.
		for _, id := range ids {
			if d, ok := byID[id]; ok {
				docs = append(docs, d)
			}
		}
	}

	readable, err := s.readable(ctx, actor, docs)
	if err != nil {
		return nil, err
	}
	return &Page{Documents: readable, Count: len(readable), Limit: q.Limit, Offset: q.Offset}, nil
}

// Status is the cached status projection of a readable document.
func (s *Service) Status(ctx context.Context, actor access.Actor, id uuid.UUID) (workflow.StatusView, error) {
	snap, err := s.snapshot(ctx, id)
	if err != nil {
		return workflow.StatusView{}, err
	}
	if err := s.authorize(actor, snap, access.OpRead); err != nil {
		return workflow.StatusView{}, err
	}

	var cached cachedStatus
	key := cache.StatusKey(id)
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit && cached.Version == snap.Document.Version {
		return cached.View, nil
	}
	view, err := s.engine.GetStatus(ctx, id)
	if err != nil {
		return workflow.StatusView{}, err
	}
	s.store(ctx, key, cachedStatus{Version: snap.Document.Version, View: view})
	return view, nil
}

func (s *Service) History(ctx context.Context, actor access.Actor, id uuid.UUID, limit int) ([]audit.Entry, error) {
	if err := s.readCheck(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := s.trail.History(ctx, id, limit)
	if err != nil {
		return nil, workflow.Classify(err)
	}
	return entries, nil
}

// Statuses describes the status lifecycle for clients.
func (s *Service) Statuses() []workflow.StatusInfo {
	return s.statuses.Catalog()
}

// Activity lists the actor's own recent audit entries, newest first.
func (s *Service) Activity(ctx context.Context, actor access.Actor, limit int) ([]audit.Entry, error) {
	entries, err := s.trail.ByActor(ctx, actor.ID, clampLimit(limit))
	if err != nil {
		return nil, workflow.Classify(err)
	}
	return entries, nil
}

func (s *Service) Routes(ctx context.Context, actor access.Actor, id uuid.UUID) ([]documents.Route, error) {
	if err := s.readCheck(ctx, actor, id); err != nil {
		return nil, err
	}
	routes, err := s.docs.ListRoutes(ctx, id)
	if err != nil {
		return nil, workflow.Classify(err)
	}
	return routes, nil
}

func (s *Service) Signatures(ctx context.Context, actor access.Actor, id uuid.UUID) ([]documents.Signature, error) {
	if err := s.readCheck(ctx, actor, id); err != nil {
		return nil, err
	}
	sigs, err := s.docs.ListSignatures(ctx, id)
	if err != nil {
		return nil, workflow.Classify(err)
	}
	return sigs, nil
}

// VerifySignatures re-hashes the document's stored file and checks it against
// every recorded signature digest.
func (s *Service) VerifySignatures(ctx context.Context, actor access.Actor, id uuid.UUID) ([]SignatureCheck, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("%w: signature verification is not configured", workflow.ErrStorage)
	}
	snap, err := s.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, snap, access.OpRead); err != nil {
		return nil, err
	}
	sigs, err := s.docs.ListSignatures(ctx, id)
	if err != nil {
		return nil, workflow.Classify(err)
	}

	checks := make([]SignatureCheck, 0, len(sigs))
	for _, sig := range sigs {
		check := SignatureCheck{
			SignatureID: sig.ID,
			SignerID:    sig.SignerID,
			SignedAt:    sig.SignedAt,
			Algorithm:   sig.Algorithm,
		}
		switch {
		case sig.ContentHash == nil:
			check.Detail = "no content hash recorded"
		case snap.Document.FileKey == nil || *snap.Document.FileKey == "":
			check.Detail = "document has no stored file"
		default:
			ok, err := s.verifier.Verify(ctx, *snap.Document.FileKey, sig.Algorithm, *sig.ContentHash)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", workflow.ErrStorage, err)
			}
			check.Valid = &ok
			if !ok {
				check.Detail = "file changed since signing"
			}
		}
		checks = append(checks, check)
	}
	return checks, nil
}

// Attach stores a file for the document and points the document at it. The
// object is removed again when the document update fails.
func (s *Service) Attach(ctx context.Context, actor access.Actor, id uuid.UUID, fileName string, body io.Reader) (*documents.Document, error) {
	if s.files == nil {
		return nil, fmt.Errorf("%w: file storage is not configured", workflow.ErrStorage)
	}
	fileName = path.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, fmt.Errorf("%w: file name is required", workflow.ErrInvalidInput)
	}

	snap, err := s.snapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, snap, access.OpUpdate); err != nil {
		return nil, err
	}

	key := storage.DocumentKey(snap.Document.DocumentNumber, fileName)
	if err := s.files.Upload(ctx, s.bucket, key, body); err != nil {
		return nil, fmt.Errorf("%w: %w", workflow.ErrStorage, err)
	}

	doc, err := s.engine.UpdateDetails(ctx, id, actor, workflow.DetailsPatch{FileKey: &key})
	if err != nil {
		if delErr := s.files.Delete(ctx, s.bucket, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("Document file attached",
		zap.String("document_id", id.String()),
		zap.String("key", key),
		zap.String("actor_id", actor.ID.String()),
	)
	return doc, nil
}

// FileURL returns a short-lived download link for the document's file.
func (s *Service) FileURL(ctx context.Context, actor access.Actor, id uuid.UUID) (string, error) {
	if s.files == nil {
		return "", fmt.Errorf("%w: file storage is not configured", workflow.ErrStorage)
	}
	snap, err := s.snapshot(ctx, id)
	if err != nil {
		return "", err
	}
	if err := s.authorize(actor, snap, access.OpRead); err != nil {
		return "", err
	}
	if snap.Document.FileKey == nil || *snap.Document.FileKey == "" {
		return "", fmt.Errorf("%w: document %s has no file", workflow.ErrNotFound, snap.Document.DocumentNumber)
	}

	url, err := s.files.GetPresignedURL(ctx, s.bucket, *snap.Document.FileKey, presignTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", workflow.ErrStorage, err)
	}
	s.trail.RecordAccess(ctx, accessRecord(snap.Document, actor, audit.ActionAccessed, "Document file downloaded", map[string]interface{}{
		"file_key": *snap.Document.FileKey,
	}))
	return url, nil
}

func (s *Service) readCheck(ctx context.Context, actor access.Actor, id uuid.UUID) error {
	snap, err := s.snapshot(ctx, id)
	if err != nil {
		return err
	}
	return s.authorize(actor, snap, access.OpRead)
}

// snapshot loads a document and its routing history, through the cache.
func (s *Service) snapshot(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	var snap Snapshot
	key := cache.DocumentKey(id)
	if hit, err := s.cache.Get(ctx, key, &snap); err == nil && hit && snap.Document != nil && s.fresh(ctx, snap.Document) {
		return snap, nil
	}

	doc, err := s.docs.GetDocumentByID(ctx, id)
	if err != nil {
		return Snapshot{}, workflow.Classify(err)
	}
	routed, err := s.docs.RoutedDepartments(ctx, id)
	if err != nil {
		return Snapshot{}, workflow.Classify(err)
	}
	snap = Snapshot{Document: doc, Routed: routed}
	s.store(ctx, key, snap)
	return snap, nil
}

// trackedSnapshot resolves a cached tracking lookup. The cached reference is
// only trusted when the document it points at still answers to number.
func (s *Service) trackedSnapshot(ctx context.Context, number string) (Snapshot, bool) {
	var ref trackRef
	if hit, err := s.cache.Get(ctx, cache.TrackKey(number), &ref); err != nil || !hit || ref.DocumentID == uuid.Nil {
		return Snapshot{}, false
	}
	snap, err := s.snapshot(ctx, ref.DocumentID)
	if err != nil || !answersTo(snap.Document, number) {
		return Snapshot{}, false
	}
	return snap, true
}

func answersTo(doc *documents.Document, number string) bool {
	if strings.EqualFold(doc.DocumentNumber, number) {
		return true
	}
	return doc.Barcode != nil && *doc.Barcode == number
}

// fresh reports whether a cached copy is at least as new as the version fence
// raised by the last committed change.
func (s *Service) fresh(ctx context.Context, doc *documents.Document) bool {
	var fence int
	hit, err := s.cache.Get(ctx, cache.FenceKey(doc.ID), &fence)
	if err != nil {
		return false
	}
	return !hit || doc.Version >= fence
}

// listKey scopes a list page to the current list generation, so pages stored
// by a reader that raced an invalidation are never found again.
func (s *Service) listKey(ctx context.Context, actor access.Actor, filters documents.Filters) string {
	var generation int64
	if _, err := s.cache.Get(ctx, cache.ListGenerationKey, &generation); err != nil {
		s.logger.Debug("Cache read failed", zap.String("key", cache.ListGenerationKey), zap.Error(err))
	}
	return cache.ListKey(generation, actor.ID, optional(filters.Status), optional(filters.DepartmentID), optional(filters.Type),
		optional(filters.AssignedTo), optional(filters.CreatedBy), filters.Number, filters.Query, filters.Limit, filters.Offset)
}

func (s *Service) authorize(actor access.Actor, snap Snapshot, op access.Operation) error {
	allowed, rule := s.policy.Explain(actor, snap.Document, op, access.NewRouteSet(snap.Routed...))
	if allowed {
		return nil
	}
	return fmt.Errorf("%w: %s on %s denied by %s rule", workflow.ErrForbidden, op, snap.Document.DocumentNumber, rule)
}

// readable drops the documents actor may not read.
func (s *Service) readable(ctx context.Context, actor access.Actor, docs []documents.Document) ([]documents.Document, error) {
	out := make([]documents.Document, 0, len(docs))
	for i := range docs {
		routes := &lazyRoutes{ctx: ctx, docs: s.docs, id: docs[i].ID}
		allowed := s.policy.Authorize(actor, &docs[i], access.OpRead, routes)
		if routes.err != nil {
			return nil, workflow.Classify(routes.err)
		}
		if allowed {
			out = append(out, docs[i])
		}
	}
	return out, nil
}

// lazyRoutes loads routing history only when a rule asks for it.
type lazyRoutes struct {
	ctx    context.Context
	docs   DocumentReader
	id     uuid.UUID
	set    access.RouteSet
	loaded bool
	err    error
}

func (l *lazyRoutes) RoutedTo(departmentID uuid.UUID) bool {
	if !l.loaded {
		l.loaded = true
		ids, err := l.docs.RoutedDepartments(l.ctx, l.id)
		if err != nil {
			l.err = err
			return false
		}
		l.set = access.NewRouteSet(ids...)
	}
	return l.set.RoutedTo(departmentID)
}

func (s *Service) store(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Debug("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func accessRecord(doc *documents.Document, actor access.Actor, action, desc string, meta map[string]interface{}) audit.Record {
	docID := doc.ID
	actorID := actor.ID
	return audit.Record{
		DocumentID:     &docID,
		DocumentNumber: doc.DocumentNumber,
		ActorID:        &actorID,
		Action:         action,
		Description:    desc,
		Metadata:       meta,
	}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	default:
		return limit
	}
}

func optional[T any](v *T) interface{} {
	if v == nil {
		return "-"
	}
	return *v
}
