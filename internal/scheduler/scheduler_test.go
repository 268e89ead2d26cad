package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

type MockOverdueFinder struct {
	mock.Mock
}

func (m *MockOverdueFinder) ListOverdue(ctx context.Context, now time.Time, limit int) ([]documents.Document, error) {
	args := m.Called(ctx, now, limit)
	docs, _ := args.Get(0).([]documents.Document)
	return docs, args.Error(1)
}

type MockUserLookup struct {
	mock.Mock
}

func (m *MockUserLookup) GetUsers(ctx context.Context, ids []uuid.UUID) ([]directory.User, error) {
	args := m.Called(ctx, ids)
	users, _ := args.Get(0).([]directory.User)
	return users, args.Error(1)
}

type reminder struct {
	recipients []directory.User
	event      string
	payload    map[string]interface{}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []reminder
}

func (n *recordingNotifier) Notify(_ context.Context, recipients []directory.User, _, _, event string, payload map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, reminder{recipients: recipients, event: event, payload: payload})
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func overdueDocument(now time.Time) (documents.Document, directory.User, directory.User) {
	creator := directory.User{ID: uuid.New(), Name: "Creator", IsActive: true}
	assignee := directory.User{ID: uuid.New(), Name: "Assignee", IsActive: true}
	deadline := now.Add(-3 * time.Hour)
	return documents.Document{
		ID:             uuid.New(),
		DocumentNumber: "PO-2026-0007",
		Title:          "Office supplies",
		Status:         documents.StatusUnderReview,
		CreatedBy:      creator.ID,
		AssignedTo:     &assignee.ID,
		Deadline:       &deadline,
	}, creator, assignee
}

func TestDeadlineSweeper_RemindsCreatorAndAssignee(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	doc, creator, assignee := overdueDocument(now)

	finder := new(MockOverdueFinder)
	users := new(MockUserLookup)
	notifier := &recordingNotifier{}

	finder.On("ListOverdue", mock.Anything, now, 200).Return([]documents.Document{doc}, nil)
	users.On("GetUsers", mock.Anything, []uuid.UUID{creator.ID, assignee.ID}).
		Return([]directory.User{creator, assignee}, nil)

	sweeper := NewDeadlineSweeper(finder, users, notifier, 24*time.Hour, zap.NewNop())
	sweeper.now = func() time.Time { return now }

	require.NoError(t, sweeper.Run(context.Background()))

	require.Equal(t, 1, notifier.count())
	call := notifier.calls[0]
	assert.Equal(t, "document.overdue", call.event)
	assert.Len(t, call.recipients, 2)
	assert.Equal(t, doc.ID.String(), call.payload["document_id"])
	assert.Equal(t, "under_review", call.payload["status"])
	finder.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestDeadlineSweeper_ThrottlesWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	doc, creator, assignee := overdueDocument(now)

	finder := new(MockOverdueFinder)
	users := new(MockUserLookup)
	notifier := &recordingNotifier{}

	finder.On("ListOverdue", mock.Anything, mock.Anything, 200).Return([]documents.Document{doc}, nil)
	users.On("GetUsers", mock.Anything, mock.Anything).Return([]directory.User{creator, assignee}, nil)

	sweeper := NewDeadlineSweeper(finder, users, notifier, 24*time.Hour, nil)
	clock := now
	sweeper.now = func() time.Time { return clock }

	require.NoError(t, sweeper.Run(context.Background()))
	clock = now.Add(30 * time.Minute)
	require.NoError(t, sweeper.Run(context.Background()))
	assert.Equal(t, 1, notifier.count())

	clock = now.Add(25 * time.Hour)
	require.NoError(t, sweeper.Run(context.Background()))
	assert.Equal(t, 2, notifier.count())
}

func TestDeadlineSweeper_ListFailure(t *testing.T) {
	finder := new(MockOverdueFinder)
	finder.On("ListOverdue", mock.Anything, mock.Anything, 200).Return(nil, errors.New("connection refused"))

	sweeper := NewDeadlineSweeper(finder, new(MockUserLookup), &recordingNotifier{}, time.Hour, nil)
	err := sweeper.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list overdue documents")
}

func TestDeadlineSweeper_SkipsUnresolvableRecipients(t *testing.T) {
	now := time.Now().UTC()
	doc, _, _ := overdueDocument(now)

	finder := new(MockOverdueFinder)
	users := new(MockUserLookup)
	notifier := &recordingNotifier{}
	finder.On("ListOverdue", mock.Anything, mock.Anything, 200).Return([]documents.Document{doc}, nil)
	users.On("GetUsers", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	sweeper := NewDeadlineSweeper(finder, users, notifier, time.Hour, nil)
	require.NoError(t, sweeper.Run(context.Background()))
	assert.Zero(t, notifier.count())
}

type stubPruner struct {
	before time.Time
	n      int64
	err    error
}

func (p *stubPruner) Prune(_ context.Context, before time.Time) (int64, error) {
	p.before = before
	return p.n, p.err
}

func TestInboxCleanup(t *testing.T) {
	now := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	pruner := &stubPruner{n: 12}
	job := NewInboxCleanup(pruner, 90*24*time.Hour, nil)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-90*24*time.Hour), pruner.before)

	pruner.err = errors.New("boom")
	assert.Error(t, job.Run(context.Background()))
}

type countingJob struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	return j.err
}

func (j *countingJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

func TestManager_AddJobAndStatus(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)

	require.NoError(t, m.AddJob("0 */30 * * * *", &countingJob{}))
	require.NoError(t, m.AddJob("0 0 3 * * *", &countingJob{}))
	assert.Len(t, m.Status(), 1, "same name replaces the earlier entry")

	assert.Error(t, m.AddJob("not a spec", &countingJob{}))
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)
	job := &countingJob{}
	require.NoError(t, m.AddJob("* * * * * *", job))

	require.NoError(t, m.Start())
	assert.Error(t, m.Start())

	require.Eventually(t, func() bool { return job.count() > 0 }, 3*time.Second, 50*time.Millisecond)
	m.Stop()
	m.Stop()

	status := m.Status()
	require.Len(t, status, 1)
	assert.False(t, status[0].PrevRun.IsZero())
}

func TestManager_RunNow(t *testing.T) {
	m := NewManager(nil, 0)
	job := &countingJob{err: errors.New("failed")}
	assert.Error(t, m.RunNow(context.Background(), job))
	job.err = nil
	assert.NoError(t, m.RunNow(context.Background(), job))
	assert.Equal(t, 2, job.count())
}

func TestValidateSpec(t *testing.T) {
	assert.NoError(t, ValidateSpec("0 */30 * * * *"))
	assert.NoError(t, ValidateSpec("@hourly"))
	assert.Error(t, ValidateSpec("*/5 * * * *"))
}
