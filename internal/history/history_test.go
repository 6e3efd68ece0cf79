package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordRequiresEventAndRoot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.Record(ctx, Entry{ProjectRoot: "/a"}))
	assert.Error(t, store.Record(ctx, Entry{Event: EventActivated}))
}

func TestForProjectReturnsEntriesInOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, Entry{Event: EventActivated, ProjectRoot: "/a", OccurredAt: base}))
	require.NoError(t, store.Record(ctx, Entry{Event: EventDeactivated, ProjectRoot: "/a", OccurredAt: base.Add(time.Minute)}))
	require.NoError(t, store.Record(ctx, Entry{Event: EventActivated, ProjectRoot: "/b", OccurredAt: base.Add(2 * time.Minute)}))

	entries, err := store.ForProject(ctx, "/a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, EventActivated, entries[0].Event)
	assert.Equal(t, EventDeactivated, entries[1].Event)
}

func TestRecentOrdersNewestFirstAndRespectsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, root := range []string{"/a", "/b", "/c"} {
		require.NoError(t, store.Record(ctx, Entry{
			Event:       EventActivated,
			ProjectRoot: root,
			OccurredAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/c", entries[0].ProjectRoot)
	assert.Equal(t, "/b", entries[1].ProjectRoot)
}

func TestRecordCarriesPreviousRootAndDetail(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, Entry{
		Event:        EventActivated,
		ProjectRoot:  "/b",
		PreviousRoot: "/a",
		Detail:       "switched by cmd/symbolsrv serve",
		OccurredAt:   time.Now().UTC(),
	}))

	entries, err := store.ForProject(ctx, "/b")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/a", entries[0].PreviousRoot)
	assert.Equal(t, "switched by cmd/symbolsrv serve", entries[0].Detail)
}

func TestManagerRecorderRecordsActivationAndDeactivation(t *testing.T) {
	store := openTestStore(t)
	recorder := NewManagerRecorder(store)
	ctx := context.Background()

	require.NoError(t, recorder.RecordActivation(ctx, "/proj", ""))
	require.NoError(t, recorder.RecordDeactivation(ctx, "/proj"))

	entries, err := store.ForProject(ctx, "/proj")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, EventActivated, entries[0].Event)
	assert.Equal(t, EventDeactivated, entries[1].Event)
}
