package rollout

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/agent-rollout/internal/models"
)

func TestListSessions(t *testing.T) {
	dir := t.TempDir()
	first := recordFixture(t, dir, fixtureItems())

	rec, err := NewRecorder(dir, models.SessionMetaItem{Cwd: "/work"})
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o640))

	entries, err := ListSessions(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	paths := []string{entries[0].Path, entries[1].Path}
	assert.Contains(t, paths, first)
	assert.Contains(t, paths, rec.Path())
	for _, e := range entries {
		require.NotNil(t, e.Meta, "head line should be read for %s", e.Path)
		assert.Equal(t, e.Meta.ID, e.ID)
	}
}

func TestListSessions_MissingDir(t *testing.T) {
	_, err := ListSessions(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestWatchSessions_SeesNewRollout(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := make(chan SessionEntry, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchSessions(ctx, dir, func(e SessionEntry) { seen <- e })
	}()

	// Give the watcher a beat to register before creating the file.
	time.Sleep(100 * time.Millisecond)
	rec, err := NewRecorder(dir, models.SessionMetaItem{})
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	select {
	case entry := <-seen:
		assert.Equal(t, rec.Path(), entry.Path)
	case <-ctx.Done():
		t.Fatal("watcher never reported the new rollout")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRecorder_RejectsNonUUIDSessionID(t *testing.T) {
	// A non-UUID id would produce a filename ListSessions never matches.
	_, err := NewRecorder(t.TempDir(), models.SessionMetaItem{ID: "session-42"})
	require.Error(t, err)
}

func TestRecorder_NormalizesSessionIDForListing(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, models.SessionMetaItem{ID: "AAAAAAAA-BBBB-4CCC-8DDD-EEEEEEEEEEEE"})
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	assert.Equal(t, "aaaaaaaa-bbbb-4ccc-8ddd-eeeeeeeeeeee", rec.SessionID())

	entries, err := ListSessions(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rec.SessionID(), entries[0].ID)
}

func TestRecorder_WritesMetaHeadLine(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, models.SessionMetaItem{Cwd: "/repo"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.SessionID())
	require.NoError(t, rec.Close())

	meta := readSessionMeta(rec.Path())
	require.NotNil(t, meta)
	assert.Equal(t, rec.SessionID(), meta.ID)
	assert.Equal(t, "/repo", meta.Cwd)
	assert.NotEmpty(t, meta.CreatedAt)
}
