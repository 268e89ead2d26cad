package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/audit"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/auth"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/cache"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/search"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/workflow"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Create(ctx context.Context, actor access.Actor, in workflow.NewDocument) (*documents.Document, error) {
	args := m.Called(ctx, actor, in)
	doc, _ := args.Get(0).(*documents.Document)
	return doc, args.Error(1)
}

func (m *MockEngine) UpdateDetails(ctx context.Context, id uuid.UUID, actor access.Actor, patch workflow.DetailsPatch) (*documents.Document, error) {
	args := m.Called(ctx, id, actor, patch)
	doc, _ := args.Get(0).(*documents.Document)
	return doc, args.Error(1)
}

func (m *MockEngine) Perform(ctx context.Context, action workflow.Action, id uuid.UUID, actor access.Actor, params workflow.Params) (*documents.Document, error) {
	args := m.Called(ctx, action, id, actor, params)
	doc, _ := args.Get(0).(*documents.Document)
	return doc, args.Error(1)
}

func (m *MockEngine) BulkPerform(ctx context.Context, action workflow.Action, ids []uuid.UUID, actor access.Actor, params workflow.Params) (workflow.BulkResult, error) {
	args := m.Called(ctx, action, ids, actor, params)
	return args.Get(0).(workflow.BulkResult), args.Error(1)
}

func (m *MockEngine) GetStatus(ctx context.Context, id uuid.UUID) (workflow.StatusView, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(workflow.StatusView), args.Error(1)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	args := m.Called(ctx, q)
	res, _ := args.Get(0).(*search.Result)
	return res, args.Error(1)
}

type MockFiles struct {
	mock.Mock
}

func (m *MockFiles) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	return m.Called(ctx, bucket, key, body).Error(0)
}

func (m *MockFiles) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, bucket, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *MockFiles) Delete(ctx context.Context, bucket, key string) error {
	return m.Called(ctx, bucket, key).Error(0)
}

func (m *MockFiles) GetPresignedURL(ctx context.Context, bucket, key string, expiration time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, expiration)
	return args.String(0), args.Error(1)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, key, algorithm, expected string) (bool, error) {
	args := m.Called(ctx, key, algorithm, expected)
	return args.Bool(0), args.Error(1)
}

// fakeReader serves documents from memory and counts lookups.
type fakeReader struct {
	mu      sync.Mutex
	docs    map[uuid.UUID]*documents.Document
	routes  map[uuid.UUID][]documents.Route
	lookups int
	listErr error
	sigs    map[uuid.UUID][]documents.Signature
}

func newFakeReader(docs ...*documents.Document) *fakeReader {
	r := &fakeReader{
		docs:   map[uuid.UUID]*documents.Document{},
		routes: map[uuid.UUID][]documents.Route{},
		sigs:   map[uuid.UUID][]documents.Signature{},
	}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *fakeReader) GetDocumentByID(_ context.Context, id uuid.UUID) (*documents.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	d, ok := r.docs[id]
	if !ok {
		return nil, documents.ErrNotFound
	}
	return d.Clone(), nil
}

func (r *fakeReader) GetDocumentByNumber(_ context.Context, number string) (*documents.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	for _, d := range r.docs {
		if strings.EqualFold(d.DocumentNumber, number) || (d.Barcode != nil && *d.Barcode == number) {
			return d.Clone(), nil
		}
	}
	return nil, documents.ErrNotFound
}

func (r *fakeReader) ListDocuments(_ context.Context, f documents.Filters) ([]documents.Document, int64, error) {
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []documents.Document
	for _, d := range r.docs {
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(d.Title), strings.ToLower(f.Query)) {
			continue
		}
		out = append(out, *d.Clone())
	}
	return out, int64(len(out)), nil
}

func (r *fakeReader) GetDocumentsByIDs(_ context.Context, ids []uuid.UUID) ([]documents.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []documents.Document
	for _, id := range ids {
		if d, ok := r.docs[id]; ok {
			out = append(out, *d.Clone())
		}
	}
	return out, nil
}

func (r *fakeReader) ListRoutes(_ context.Context, id uuid.UUID) ([]documents.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.routes[id], nil
}

func (r *fakeReader) RoutedDepartments(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for _, rt := range r.routes[id] {
		out = append(out, rt.ToDepartmentID)
	}
	return out, nil
}

func (r *fakeReader) ListSignatures(_ context.Context, id uuid.UUID) ([]documents.Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]documents.Signature{}, r.sigs[id]...), nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *memAudit) Insert(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *memAudit) ListByDocument(_ context.Context, id uuid.UUID, _ int) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.DocumentID != nil && *e.DocumentID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memAudit) ListByActor(_ context.Context, id uuid.UUID, _ int) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if e := s.entries[i]; e.ActorID != nil && *e.ActorID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memAudit) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}

type fixture struct {
	engine   *MockEngine
	reader   *fakeReader
	audit    *memAudit
	service  *Service
	office   uuid.UUID
	other    uuid.UUID
	owner    access.Actor
	outsider access.Actor
	doc      *documents.Document
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	office, other := uuid.New(), uuid.New()
	owner := access.Actor{ID: uuid.New(), DepartmentID: &office, Clearance: documents.SecurityInternal}
	outsider := access.Actor{ID: uuid.New(), DepartmentID: &other, Clearance: documents.SecurityInternal}

	barcode := "BC-001"
	doc := &documents.Document{
		ID:                  uuid.New(),
		DocumentNumber:      "PO-2026-0001",
		Barcode:             &barcode,
		Title:               "Office supplies",
		Type:                documents.TypePurchaseOrder,
		Priority:            documents.PriorityMedium,
		SecurityLevel:       documents.SecurityInternal,
		Status:              documents.StatusSubmitted,
		CurrentDepartmentID: &office,
		CreatedBy:           owner.ID,
		Version:             1,
	}

	f := &fixture{
		engine:   new(MockEngine),
		reader:   newFakeReader(doc),
		audit:    &memAudit{},
		office:   office,
		other:    other,
		owner:    owner,
		outsider: outsider,
		doc:      doc,
	}
	f.service = NewService(f.engine, f.reader, audit.NewTrail(f.audit), opts...)
	return f
}

func (f *fixture) router(actor *access.Actor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if actor != nil {
		a := *actor
		r.Use(func(c *gin.Context) {
			auth.WithActor(c, a)
			c.Next()
		})
	}
	NewHandler(f.service, nil).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"], body["kind"]
}

func TestGet_RecordsAccess(t *testing.T) {
	f := newFixture(t)

	doc, err := f.service.Get(context.Background(), f.owner, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, f.doc.DocumentNumber, doc.DocumentNumber)
	assert.Equal(t, []string{audit.ActionAccessed}, f.audit.actions())
}

func TestGet_ForbiddenAndNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Get(context.Background(), f.outsider, f.doc.ID)
	assert.ErrorIs(t, err, workflow.ErrForbidden)
	assert.Empty(t, f.audit.actions())

	_, err = f.service.Get(context.Background(), f.owner, uuid.New())
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestGet_RoutedOfficeCanRead(t *testing.T) {
	f := newFixture(t)
	f.reader.routes[f.doc.ID] = []documents.Route{{DocumentID: f.doc.ID, ToDepartmentID: f.other}}

	_, err := f.service.Get(context.Background(), f.outsider, f.doc.ID)
	require.NoError(t, err)
}

func TestActivity_OnlyOwnEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Get(ctx, f.owner, f.doc.ID)
	require.NoError(t, err)
	_, err = f.service.Track(ctx, f.owner, f.doc.DocumentNumber, SourceScan)
	require.NoError(t, err)

	mine, err := f.service.Activity(ctx, f.owner, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, audit.ActionScanned, mine[0].Action)

	theirs, err := f.service.Activity(ctx, f.outsider, 10)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestTrack_CachesAndRecordsScan(t *testing.T) {
	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(mem.Stop)
	f := newFixture(t, WithCache(mem, time.Minute))

	doc, err := f.service.Track(context.Background(), f.owner, "po-2026-0001", SourceScan)
	require.NoError(t, err)
	assert.Equal(t, f.doc.ID, doc.ID)

	_, err = f.service.Track(context.Background(), f.owner, "PO-2026-0001", SourceManual)
	require.NoError(t, err)

	assert.Equal(t, 1, f.reader.lookups, "second lookup is served from cache")
	assert.Equal(t, []string{audit.ActionScanned, audit.ActionTracked}, f.audit.actions())
}

func TestTrack_InvalidatedAfterCommit(t *testing.T) {
	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(mem.Stop)
	f := newFixture(t, WithCache(mem, time.Minute))

	_, err := f.service.Track(context.Background(), f.owner, "BC-001", SourceManual)
	require.NoError(t, err)

	f.reader.docs[f.doc.ID].Status = documents.StatusReceived
	require.NoError(t, workflow.NewCacheInvalidator(mem).AfterCommit(context.Background(), workflow.Event{
		Document: f.reader.docs[f.doc.ID].Clone(),
	}))

	doc, err := f.service.Track(context.Background(), f.owner, "BC-001", SourceManual)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusReceived, doc.Status)
}

func TestList_FiltersUnreadable(t *testing.T) {
	f := newFixture(t)
	secret := &documents.Document{
		ID:                  uuid.New(),
		DocumentNumber:      "MEMO-2026-0001",
		Title:               "Other office memo",
		Type:                documents.TypeMemo,
		SecurityLevel:       documents.SecurityInternal,
		Status:              documents.StatusDraft,
		CurrentDepartmentID: &f.other,
		CreatedBy:           f.outsider.ID,
	}
	f.reader.docs[secret.ID] = secret

	page, err := f.service.List(context.Background(), f.owner, documents.Filters{})
	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	assert.Equal(t, f.doc.ID, page.Documents[0].ID)
	assert.Equal(t, 20, page.Limit)

	admin := access.Actor{ID: uuid.New(), IsAdmin: true}
	page, err = f.service.List(context.Background(), admin, documents.Filters{Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, 100, page.Limit)
}

func TestSearch_UsesIndexOrder(t *testing.T) {
	searcher := new(MockSearcher)
	f := newFixture(t, WithSearch(searcher))
	second := &documents.Document{
		ID:             uuid.New(),
		DocumentNumber: "PO-2026-0002",
		Title:          "Office chairs",
		SecurityLevel:  documents.SecurityInternal,
		CreatedBy:      f.owner.ID,
	}
	f.reader.docs[second.ID] = second

	searcher.On("Search", mock.Anything, mock.MatchedBy(func(q search.Query) bool { return q.Text == "office" })).
		Return(&search.Result{Total: 3, Hits: []search.Hit{{ID: second.ID}, {ID: uuid.New()}, {ID: f.doc.ID}}}, nil)

	page, err := f.service.Search(context.Background(), f.owner, search.Query{Text: " office "})
	require.NoError(t, err)
	require.Len(t, page.Documents, 2)
	assert.Equal(t, second.ID, page.Documents[0].ID)
	assert.Equal(t, f.doc.ID, page.Documents[1].ID)
	searcher.AssertExpectations(t)
}

func TestSearch_FallsBackToDatabase(t *testing.T) {
	searcher := new(MockSearcher)
	f := newFixture(t, WithSearch(searcher))
	searcher.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("cluster unavailable"))

	page, err := f.service.Search(context.Background(), f.owner, search.Query{Text: "supplies"})
	require.NoError(t, err)
	require.Len(t, page.Documents, 1)

	_, err = f.service.Search(context.Background(), f.owner, search.Query{Text: "  "})
	assert.ErrorIs(t, err, workflow.ErrInvalidInput)
}

func TestStatus_Cached(t *testing.T) {
	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(mem.Stop)
	f := newFixture(t, WithCache(mem, time.Minute))

	view := workflow.StatusView{DocumentID: f.doc.ID, CurrentStatus: documents.StatusSubmitted, ProgressPercentage: 30}
	f.engine.On("GetStatus", mock.Anything, f.doc.ID).Return(view, nil).Once()

	for i := 0; i < 2; i++ {
		got, err := f.service.Status(context.Background(), f.owner, f.doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 30, got.ProgressPercentage)
	}
	f.engine.AssertExpectations(t)
}

func TestAttach_RemovesUploadWhenUpdateFails(t *testing.T) {
	files := new(MockFiles)
	f := newFixture(t, WithFiles(files, "doctrack"))
	key := "documents/PO-2026-0001/quote.pdf"

	files.On("Upload", mock.Anything, "doctrack", key, mock.Anything).Return(nil)
	files.On("Delete", mock.Anything, "doctrack", key).Return(nil)
	f.engine.On("UpdateDetails", mock.Anything, f.doc.ID, f.owner, mock.Anything).
		Return(nil, fmt.Errorf("%w: modified concurrently", workflow.ErrConflict))

	_, err := f.service.Attach(context.Background(), f.owner, f.doc.ID, "../quote.pdf", strings.NewReader("%PDF"))
	assert.ErrorIs(t, err, workflow.ErrConflict)
	files.AssertExpectations(t)
}

func TestAttach_ForbiddenBeforeUpload(t *testing.T) {
	files := new(MockFiles)
	f := newFixture(t, WithFiles(files, "doctrack"))

	_, err := f.service.Attach(context.Background(), f.outsider, f.doc.ID, "quote.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, workflow.ErrForbidden)
	files.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	w := do(f.router(nil), http.MethodGet, "/api/v1/documents/"+f.doc.ID.String(), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_GetMapsErrors(t *testing.T) {
	f := newFixture(t)

	w := do(f.router(&f.owner), http.MethodGet, "/api/v1/documents/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(f.router(&f.outsider), http.MethodGet, "/api/v1/documents/"+f.doc.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	_, kind := decodeError(t, w)
	assert.Equal(t, "forbidden", kind)

	w = do(f.router(&f.owner), http.MethodGet, "/api/v1/documents/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_PerformInvalidState(t *testing.T) {
	f := newFixture(t)
	f.engine.On("Perform", mock.Anything, workflow.ActionApprove, f.doc.ID, f.owner, workflow.Params{}).
		Return(nil, fmt.Errorf("%w: approve requires for_approval", workflow.ErrInvalidState))

	w := do(f.router(&f.owner), http.MethodPost, "/api/v1/documents/"+f.doc.ID.String()+"/actions/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	msg, kind := decodeError(t, w)
	assert.Equal(t, "invalid_state", kind)
	assert.Contains(t, msg, "approve requires")
}

func TestHandler_PerformForward(t *testing.T) {
	f := newFixture(t)
	dest := uuid.New()
	forwarded := f.doc.Clone()
	forwarded.Status = documents.StatusSubmitted
	f.engine.On("Perform", mock.Anything, workflow.ActionForward, f.doc.ID, f.owner,
		workflow.Params{ToDepartmentID: &dest, Remarks: "for review"}).Return(forwarded, nil)

	w := do(f.router(&f.owner), http.MethodPost, "/api/v1/documents/"+f.doc.ID.String()+"/actions/FORWARD",
		map[string]interface{}{"to_department_id": dest, "remarks": "for review"})
	assert.Equal(t, http.StatusOK, w.Code)
	f.engine.AssertExpectations(t)
}

func TestHandler_UnknownAction(t *testing.T) {
	f := newFixture(t)
	w := do(f.router(&f.owner), http.MethodPost, "/api/v1/documents/"+f.doc.ID.String()+"/actions/teleport", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.engine.AssertNotCalled(t, "Perform", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Bulk(t *testing.T) {
	f := newFixture(t)
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	result := workflow.BulkResult{
		Action:       workflow.ActionReceive,
		SuccessCount: 1,
		Succeeded:    []uuid.UUID{ids[0]},
		Items:        []workflow.ItemError{{DocumentID: ids[1], Kind: workflow.KindInvalidState, Message: "invalid state"}},
	}
	f.engine.On("BulkPerform", mock.Anything, workflow.ActionReceive, ids, f.owner, workflow.Params{Remarks: "batch"}).
		Return(result, nil)

	w := do(f.router(&f.owner), http.MethodPost, "/api/v1/documents/bulk/bulk-receive",
		map[string]interface{}{"document_ids": ids, "remarks": "batch"})
	require.Equal(t, http.StatusOK, w.Code)

	var got workflow.BulkResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.SuccessCount)
	require.Len(t, got.Items, 1)
	assert.Equal(t, workflow.KindInvalidState, got.Items[0].Kind)
}

func TestHandler_TrackScan(t *testing.T) {
	f := newFixture(t)
	w := do(f.router(&f.owner), http.MethodGet, "/api/v1/documents/track/BC-001?source=scan", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{audit.ActionScanned}, f.audit.actions())
}

func TestHandler_Statuses(t *testing.T) {
	f := newFixture(t)
	w := do(f.router(&f.owner), http.MethodGet, "/api/v1/documents/statuses", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Statuses []workflow.StatusInfo `json:"statuses"`
		Count    int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, len(documents.AllStatuses()), body.Count)
	assert.Len(t, body.Statuses, body.Count)
}

func TestHandler_ListRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	w := do(f.router(&f.owner), http.MethodGet, "/api/v1/documents?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_UploadAndDownload(t *testing.T) {
	files := new(MockFiles)
	f := newFixture(t, WithFiles(files, "doctrack"))
	key := "documents/PO-2026-0001/quote.pdf"

	files.On("Upload", mock.Anything, "doctrack", key, mock.Anything).Return(nil)
	updated := f.doc.Clone()
	updated.FileKey = &key
	f.engine.On("UpdateDetails", mock.Anything, f.doc.ID, f.owner, workflow.DetailsPatch{FileKey: &key}).
		Return(updated, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "quote.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.7"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+f.doc.ID.String()+"/file", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router(&f.owner).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	f.reader.docs[f.doc.ID].FileKey = &key
	files.On("GetPresignedURL", mock.Anything, "doctrack", key, presignTTL).Return("https://files.example/quote.pdf", nil)

	w = do(f.router(&f.owner), http.MethodGet, "/api/v1/documents/"+f.doc.ID.String()+"/file", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://files.example/quote.pdf")
	files.AssertExpectations(t)
}

func TestVerifySignatures(t *testing.T) {
	verifier := new(MockVerifier)
	f := newFixture(t, WithVerifier(verifier))
	key := "documents/PO-2026-0001/po.pdf"
	f.doc.FileKey = &key

	good, stale := "aa11", "bb22"
	f.reader.sigs[f.doc.ID] = []documents.Signature{
		{ID: uuid.New(), DocumentID: f.doc.ID, SignerID: f.owner.ID, ContentHash: &good, Algorithm: "sha256"},
		{ID: uuid.New(), DocumentID: f.doc.ID, SignerID: f.owner.ID, ContentHash: &stale, Algorithm: "sha256"},
		{ID: uuid.New(), DocumentID: f.doc.ID, SignerID: f.owner.ID, Algorithm: "sha256"},
	}
	verifier.On("Verify", mock.Anything, key, "sha256", good).Return(true, nil).Once()
	verifier.On("Verify", mock.Anything, key, "sha256", stale).Return(false, nil).Once()

	checks, err := f.service.VerifySignatures(context.Background(), f.owner, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, checks, 3)
	require.NotNil(t, checks[0].Valid)
	assert.True(t, *checks[0].Valid)
	require.NotNil(t, checks[1].Valid)
	assert.False(t, *checks[1].Valid)
	assert.Equal(t, "file changed since signing", checks[1].Detail)
	assert.Nil(t, checks[2].Valid)
	verifier.AssertExpectations(t)

	_, err = f.service.VerifySignatures(context.Background(), f.outsider, f.doc.ID)
	assert.ErrorIs(t, err, workflow.ErrForbidden)
}

func TestVerifySignatures_NotConfigured(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.VerifySignatures(context.Background(), f.owner, f.doc.ID)
	assert.ErrorIs(t, err, workflow.ErrStorage)
}

func TestTrack_BarcodesDifferingOnlyByCase(t *testing.T) {
	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(mem.Stop)
	f := newFixture(t, WithCache(mem, time.Minute))
	ctx := context.Background()

	lower := "bc-001"
	other := f.doc.Clone()
	other.ID = uuid.New()
	other.DocumentNumber = "PO-2026-0002"
	other.Barcode = &lower
	f.reader.docs[other.ID] = other

	a, err := f.service.Track(ctx, f.owner, "BC-001", SourceScan)
	require.NoError(t, err)
	require.Equal(t, f.doc.ID, a.ID)

	b, err := f.service.Track(ctx, f.owner, "bc-001", SourceScan)
	require.NoError(t, err)
	require.Equal(t, other.ID, b.ID)

	entries, err := f.service.History(ctx, f.owner, other.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionScanned, entries[0].Action)

	again, err := f.service.Track(ctx, f.owner, "BC-001", SourceScan)
	require.NoError(t, err)
	assert.Equal(t, f.doc.ID, again.ID)
}

func TestSnapshot_StaleStoreAfterInvalidationIgnored(t *testing.T) {
	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(mem.Stop)
	f := newFixture(t, WithCache(mem, time.Minute))
	ctx := context.Background()

	// A reader loads version 1 before the commit and only writes it back
	// after the commit's invalidation has run.
	before := f.doc.Clone()
	current := f.reader.docs[f.doc.ID]
	current.Status = documents.StatusReceived
	current.Version = 2
	require.NoError(t, workflow.NewCacheInvalidator(mem).AfterCommit(ctx, workflow.Event{
		Action:   workflow.ActionReceive,
		Document: current.Clone(),
	}))
	require.NoError(t, mem.Set(ctx, cache.DocumentKey(f.doc.ID), Snapshot{Document: before}, time.Minute))

	doc, err := f.service.Get(ctx, f.owner, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, documents.StatusReceived, doc.Status)

	view := workflow.StatusView{DocumentID: f.doc.ID, CurrentStatus: documents.StatusReceived, ProgressPercentage: 50}
	f.engine.On("GetStatus", mock.Anything, f.doc.ID).Return(view, nil).Once()
	require.NoError(t, mem.Set(ctx, cache.StatusKey(f.doc.ID), cachedStatus{
		Version: 1,
		View:    workflow.StatusView{DocumentID: f.doc.ID, CurrentStatus: documents.StatusSubmitted, ProgressPercentage: 30},
	}, time.Minute))

	got, err := f.service.Status(ctx, f.owner, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.ProgressPercentage)
	f.engine.AssertExpectations(t)
}

func TestList_StalePageAfterInvalidationIgnored(t *testing.T) {
	mem := cache.NewMemoryCache(time.Minute)
	t.Cleanup(mem.Stop)
	f := newFixture(t, WithCache(mem, time.Minute))
	ctx := context.Background()

	filters := documents.Filters{Limit: 20}
	staleKey := f.service.listKey(ctx, f.owner, filters)

	require.NoError(t, workflow.NewCacheInvalidator(mem).AfterCommit(ctx, workflow.Event{
		Action:   workflow.ActionReceive,
		Document: f.doc.Clone(),
	}))
	require.NoError(t, mem.Set(ctx, staleKey, Page{Limit: 20}, time.Minute))

	page, err := f.service.List(ctx, f.owner, filters)
	require.NoError(t, err)
	require.Len(t, page.Documents, 1)
	assert.Equal(t, f.doc.ID, page.Documents[0].ID)
}
