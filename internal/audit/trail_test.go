package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Insert(ctx context.Context, entry *Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockStore) ListByDocument(ctx context.Context, documentID uuid.UUID, limit int) ([]Entry, error) {
	args := m.Called(ctx, documentID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Entry), args.Error(1)
}

func (m *MockStore) ListByActor(ctx context.Context, actorID uuid.UUID, limit int) ([]Entry, error) {
	args := m.Called(ctx, actorID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Entry), args.Error(1)
}

func TestTrail_AppendCopiesMetadata(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	trail := NewTrail(store, WithClock(func() time.Time { return fixed }))

	store.On("Insert", ctx, mock.AnythingOfType("*audit.Entry")).Return(nil)

	docID := uuid.New()
	actorID := uuid.New()
	meta := map[string]interface{}{KeyOldStatus: "draft", KeyNewStatus: "submitted"}

	entry, err := trail.Append(ctx, Record{
		DocumentID:     &docID,
		DocumentNumber: "PR-2025-0001",
		ActorID:        &actorID,
		Action:         ActionForwarded,
		Description:    "Forwarded to Budget Office",
		Metadata:       meta,
	})

	require.NoError(t, err)
	assert.Equal(t, ActionForwarded, entry.Action)
	assert.Equal(t, fixed, entry.CreatedAt)
	assert.Equal(t, "draft", entry.Metadata[KeyOldStatus])

	meta[KeyOldStatus] = "tampered"
	assert.Equal(t, "draft", entry.Metadata[KeyOldStatus])
	store.AssertExpectations(t)
}

func TestTrail_TimestampsAreStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	trail := NewTrail(store, WithClock(func() time.Time { return fixed }))
	txTrail := trail.WithStore(store)

	store.On("Insert", ctx, mock.Anything).Return(nil)

	first, err := trail.Append(ctx, Record{Action: ActionCreated})
	require.NoError(t, err)
	second, err := txTrail.Append(ctx, Record{Action: ActionUpdated})
	require.NoError(t, err)
	third, err := trail.Append(ctx, Record{Action: ActionAccessed})
	require.NoError(t, err)

	assert.True(t, second.CreatedAt.After(first.CreatedAt))
	assert.True(t, third.CreatedAt.After(second.CreatedAt))
}

func TestTrail_AppendRejectsEmptyAction(t *testing.T) {
	store := new(MockStore)
	trail := NewTrail(store)

	_, err := trail.Append(context.Background(), Record{Action: "  "})

	assert.ErrorIs(t, err, ErrEmptyAction)
	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestTrail_AppendPropagatesStoreError(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	trail := NewTrail(store)
	boom := errors.New("connection reset")

	store.On("Insert", ctx, mock.Anything).Return(boom)

	_, err := trail.Append(ctx, Record{Action: ActionReceived})
	assert.ErrorIs(t, err, boom)
}

func TestTrail_RecordAccessSwallowsErrors(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	trail := NewTrail(store)
	docID := uuid.New()

	store.On("Insert", ctx, mock.Anything).Return(errors.New("disk full"))

	assert.NotPanics(t, func() {
		trail.RecordAccess(ctx, Record{DocumentID: &docID, Action: ActionTracked})
	})
	store.AssertExpectations(t)
}

func TestTrail_History(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	trail := NewTrail(store)
	docID := uuid.New()
	entries := []Entry{{ID: uuid.New(), Action: ActionCreated}, {ID: uuid.New(), Action: ActionForwarded}}

	store.On("ListByDocument", ctx, docID, 50).Return(entries, nil)

	got, err := trail.History(ctx, docID, 50)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}
