package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/swapvm/reload"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string, at time.Time, outcome reload.EventKind) Record {
	return Record{
		AttemptID:  id,
		Isolate:    "main",
		Outcome:    outcome,
		FinishedAt: at,
		Elapsed:    1500 * time.Microsecond,
		Summary: reload.Summary{
			ScriptURL:     "app:main",
			SavedNumCids:  10,
			NumCids:       12,
			ClassMappings: []reload.Remapping{{OldID: 8, NewID: 10}, {OldID: 9, NewID: 11}},
			Invalidation:  reload.InvalidationStats{ICsReset: 3, FunctionsReset: 4},
		},
	}
}

func TestAppendAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	rec := sampleRecord("a1", at, reload.EventReloadSucceeded)
	require.NoError(t, s.Append(ctx, rec))

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "main", got.Isolate)
	assert.True(t, got.Committed())
	assert.True(t, at.Equal(got.FinishedAt), "nanosecond timestamps survive")
	assert.Equal(t, rec.Elapsed, got.Elapsed)
	assert.Equal(t, rec.Summary, got.Summary)
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAppendDuplicateID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	rec := sampleRecord("dup", time.Now(), reload.EventReloadSucceeded)
	require.NoError(t, s.Append(ctx, rec))
	assert.Error(t, s.Append(ctx, rec))
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, sampleRecord("second", base.Add(time.Second), reload.EventReloadFailed)))
	require.NoError(t, s.Append(ctx, sampleRecord("first", base, reload.EventReloadSucceeded)))
	require.NoError(t, s.Append(ctx, sampleRecord("third", base.Add(2*time.Second), reload.EventReloadSucceeded)))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].AttemptID)
	assert.Equal(t, "second", all[1].AttemptID)
	assert.Equal(t, "first", all[2].AttemptID)
	assert.False(t, all[1].Committed())

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "third", limited[0].AttemptID)
}

func TestListEmpty(t *testing.T) {
	records, err := openStore(t).List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHandleEvent(t *testing.T) {
	s := openStore(t)
	id := uuid.New()

	s.HandleEvent(reload.Event{
		Kind:      reload.EventReloadFailed,
		AttemptID: id,
		Isolate:   "main",
		Err:       errors.New("class Point: field x removed"),
		Summary:   reload.Summary{ScriptURL: "app:main", SavedNumCids: 10, NumCids: 10},
		Time:      time.Now(),
		Elapsed:   time.Millisecond,
	})

	got, err := s.Get(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, reload.EventReloadFailed, got.Outcome)
	assert.Equal(t, "class Point: field x removed", got.Error)
	assert.Equal(t, "app:main", got.Summary.ScriptURL)
}

func TestFileJournalPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, sampleRecord("kept", time.Now(), reload.EventReloadSucceeded)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Len(t, got.Summary.ClassMappings, 2)
}
