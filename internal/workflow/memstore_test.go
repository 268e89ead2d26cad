package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/audit"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

// memStore is an in-memory Store. Document locks are per-row mutexes held until
// the unit of work ends; writes are staged and applied only on commit.
type memStore struct {
	mu          sync.Mutex
	docs        map[uuid.UUID]*documents.Document
	routes      []documents.Route
	signatures  []documents.Signature
	entries     []audit.Entry
	users       map[uuid.UUID]directory.User
	departments map[uuid.UUID]bool
	sequences   map[string]int
	rowLocks    map[uuid.UUID]*sync.Mutex

	// saveErr, when set, fails every SaveDocument.
	saveErr error
	// lockDelay widens race windows in concurrency tests.
	lockDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		docs:        map[uuid.UUID]*documents.Document{},
		users:       map[uuid.UUID]directory.User{},
		departments: map[uuid.UUID]bool{},
		sequences:   map[string]int{},
		rowLocks:    map[uuid.UUID]*sync.Mutex{},
	}
}

func (s *memStore) addDocument(doc *documents.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.Version == 0 {
		doc.Version = 1
	}
	s.docs[doc.ID] = doc.Clone()
}

func (s *memStore) addUser(u directory.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *memStore) addDepartment(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[id] = true
}

func (s *memStore) document(id uuid.UUID) *documents.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[id].Clone()
}

func (s *memStore) auditEntries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *memStore) routesFor(id uuid.UUID) []documents.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []documents.Route
	for _, r := range s.routes {
		if r.DocumentID == id {
			out = append(out, r)
		}
	}
	return out
}

func (s *memStore) signaturesFor(id uuid.UUID) []documents.Signature {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []documents.Signature
	for _, sig := range s.signatures {
		if sig.DocumentID == id {
			out = append(out, sig)
		}
	}
	return out
}

func (s *memStore) rowLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[id] = l
	}
	return l
}

func (s *memStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{store: s}
	err := fn(tx)
	if err == nil {
		s.mu.Lock()
		for _, op := range tx.staged {
			op(s)
		}
		s.mu.Unlock()
	}
	for _, l := range tx.held {
		l.Unlock()
	}
	return err
}

func (s *memStore) FindDocument(_ context.Context, id uuid.UUID) (*documents.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, documents.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *memStore) Users(_ context.Context, ids []uuid.UUID) ([]directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []directory.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memStore) DepartmentMembers(_ context.Context, departmentID uuid.UUID) ([]directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []directory.User
	for _, u := range s.users {
		if u.IsActive && u.DepartmentID != nil && *u.DepartmentID == departmentID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memTx struct {
	store  *memStore
	staged []func(*memStore)
	held   []*sync.Mutex
	routes []documents.Route
}

func (t *memTx) stage(op func(*memStore)) {
	t.staged = append(t.staged, op)
}

func (t *memTx) LockDocument(_ context.Context, id uuid.UUID) (*documents.Document, error) {
	l := t.store.rowLock(id)
	l.Lock()
	t.held = append(t.held, l)

	if t.store.lockDelay > 0 {
		time.Sleep(t.store.lockDelay)
	}

	doc, err := t.store.FindDocument(context.Background(), id)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (t *memTx) SaveDocument(_ context.Context, doc *documents.Document, expectedVersion int) error {
	if t.store.saveErr != nil {
		return t.store.saveErr
	}
	t.store.mu.Lock()
	current, ok := t.store.docs[doc.ID]
	t.store.mu.Unlock()
	if !ok {
		return documents.ErrNotFound
	}
	if current.Version != expectedVersion {
		return documents.ErrVersionConflict
	}
	doc.Version = expectedVersion + 1
	saved := doc.Clone()
	t.stage(func(s *memStore) { s.docs[saved.ID] = saved })
	return nil
}

func (t *memTx) CreateDocument(_ context.Context, doc *documents.Document) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, d := range t.store.docs {
		if d.DocumentNumber == doc.DocumentNumber {
			return fmt.Errorf("%w: %s", documents.ErrDuplicateNumber, doc.DocumentNumber)
		}
	}
	saved := doc.Clone()
	t.stage(func(s *memStore) { s.docs[saved.ID] = saved })
	return nil
}

func (t *memTx) DeleteDocument(_ context.Context, id uuid.UUID) error {
	t.stage(func(s *memStore) {
		delete(s.docs, id)
		for i := range s.entries {
			if s.entries[i].DocumentID != nil && *s.entries[i].DocumentID == id {
				s.entries[i].DocumentID = nil
			}
		}
		kept := s.routes[:0]
		for _, r := range s.routes {
			if r.DocumentID != id {
				kept = append(kept, r)
			}
		}
		s.routes = kept
	})
	return nil
}

func (t *memTx) NextSequence(_ context.Context, prefix string, year int) (int, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	key := fmt.Sprintf("%s/%d", prefix, year)
	t.store.sequences[key]++
	return t.store.sequences[key], nil
}

func (t *memTx) CreateRoute(_ context.Context, route *documents.Route) error {
	r := *route
	t.routes = append(t.routes, r)
	t.stage(func(s *memStore) { s.routes = append(s.routes, r) })
	return nil
}

func (t *memTx) RoutedDepartments(_ context.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, r := range append(t.store.routesFor(documentID), t.routes...) {
		if r.DocumentID == documentID {
			out = append(out, r.ToDepartmentID)
		}
	}
	return out, nil
}

func (t *memTx) CreateSignature(_ context.Context, signature *documents.Signature) error {
	sig := *signature
	t.stage(func(s *memStore) { s.signatures = append(s.signatures, sig) })
	return nil
}

func (t *memTx) DepartmentExists(_ context.Context, id uuid.UUID) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.departments[id], nil
}

func (t *memTx) FindUser(_ context.Context, id uuid.UUID) (*directory.User, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	u, ok := t.store.users[id]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return &u, nil
}

func (t *memTx) AuditStore() audit.Store {
	return &memAuditStore{tx: t}
}

type memAuditStore struct {
	tx *memTx
}

func (a *memAuditStore) Insert(_ context.Context, entry *audit.Entry) error {
	e := *entry
	a.tx.stage(func(s *memStore) { s.entries = append(s.entries, e) })
	return nil
}

func (a *memAuditStore) ListByDocument(_ context.Context, documentID uuid.UUID, _ int) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range a.tx.store.auditEntries() {
		if e.DocumentID != nil && *e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *memAuditStore) ListByActor(_ context.Context, actorID uuid.UUID, _ int) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range a.tx.store.auditEntries() {
		if e.ActorID != nil && *e.ActorID == actorID {
			out = append(out, e)
		}
	}
	return out, nil
}

type notifyCall struct {
	recipients []directory.User
	title      string
	event      string
	payload    map[string]interface{}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) Notify(_ context.Context, recipients []directory.User, title, _ string, event string, payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{recipients: recipients, title: title, event: event, payload: payload})
}

func (n *recordingNotifier) Calls() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifyCall, len(n.calls))
	copy(out, n.calls)
	return out
}

func recipientIDs(users []directory.User) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

type stubHasher struct {
	digest string
	err    error
}

func (h stubHasher) Hash(context.Context, string) (string, string, error) {
	if h.err != nil {
		return "", "", h.err
	}
	return h.digest, "sha256", nil
}

var errDiskFull = errors.New("disk full")
