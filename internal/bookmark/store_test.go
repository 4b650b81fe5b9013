package bookmark

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
	path := filepath.Join(t.TempDir(), "bookmarks.db")
	s, err := Open(path, false)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "https://example.com/a.mp3", 42*time.Second, 3*time.Minute))

	b, ok, err := s.Get(ctx, "https://example.com/a.mp3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42*time.Second, b.Position)
	assert.Equal(t, 3*time.Minute, b.Duration)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveOverwritesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "a", 1*time.Second, 10*time.Second))
	require.NoError(t, s.Save(ctx, "a", 5*time.Second, 10*time.Second))

	b, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, b.Position)
}

func TestDeleteRemovesBookmark(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "a", time.Second, time.Minute))
	require.NoError(t, s.Delete(ctx, "a"))

	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListOrdersByMostRecentlyUpdated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "first", time.Second, time.Minute))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Save(ctx, "second", time.Second, time.Minute))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Source)
	assert.Equal(t, "first", list[1].Source)
}

func TestOperationsFailAfterClose(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	err := s.Save(context.Background(), "a", 0, 0)
	assert.Error(t, err)
}
