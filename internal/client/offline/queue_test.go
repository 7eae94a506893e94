package offline

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openQueue(t *testing.T, path string) *SQLiteQueue {
	t.Helper()
	q, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := openQueue(t, filepath.Join(t.TempDir(), "queue.db"))

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		_, err := q.Enqueue(ctx, Item{Filename: name, MIME: "image/png", Data: []byte(name)})
		require.NoError(t, err)
	}

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a.png", items[0].Filename)
	assert.Equal(t, "c.png", items[2].Filename)
	assert.Less(t, items[0].ID, items[1].ID)
	assert.False(t, items[0].QueuedAt.IsZero())

	require.NoError(t, q.Remove(ctx, items[1].ID))
	assert.ErrorIs(t, q.Remove(ctx, items[1].ID), ErrItemNotFound)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Item{Filename: "first.jpg", MIME: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}})
	require.NoError(t, err)
	require.NoError(t, q.Set(ctx, "session_token", "tok"))
	require.NoError(t, q.Close())

	q = openQueue(t, path)
	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "first.jpg", items[0].Filename)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, items[0].Data)

	tok, err := q.Get(ctx, "session_token")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
}

func TestQueueVersionChangeWipes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	q, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, Item{Filename: "old.png", MIME: "image/png", Data: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, q.Close())

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec(`PRAGMA user_version = 99`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	q = openQueue(t, path)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKVMissingKey(t *testing.T) {
	q := openQueue(t, filepath.Join(t.TempDir(), "queue.db"))

	v, err := q.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, q.Set(context.Background(), "k", "1"))
	require.NoError(t, q.Set(context.Background(), "k", "2"))
	v, err = q.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}
