package dlq

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PageDAO/DAO-Tools/internal/logging"
	"github.com/PageDAO/DAO-Tools/internal/proposal"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return q
}

func TestQueue_WriteAndList(t *testing.T) {
	q := newTestQueue(t)
	ctx := logging.ContextWithRunID(context.Background(), "run-1")

	p1 := proposal.Tree{"id": "7", "title": "Pay devs"}
	p2 := proposal.Tree{"id": "8"}
	require.NoError(t, q.Write(ctx, "Dev Team", "osmo1dev", p1, errors.New("bad payload"), "extract"))
	require.NoError(t, q.Write(ctx, "Dev Team", "osmo1dev", p2, nil, "panic"))

	entries, err := q.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "7", entries[0].ProposalID)
	assert.Equal(t, "bad payload", entries[0].Error)
	assert.Equal(t, "extract", entries[0].Reason)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, "Pay devs", entries[0].Proposal.Title())
	assert.Equal(t, "8", entries[1].ProposalID)
	assert.Empty(t, entries[1].Error)

	limited, err := q.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stats := q.Stats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, uint64(2), stats.Written)
	assert.Equal(t, 2, stats.PendingFiles)
}

func TestQueue_DeleteAndPurge(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Write(ctx, "s", "a", proposal.Tree{"id": i}, errors.New("x"), "extract"))
	}
	entries, err := q.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	require.NoError(t, q.Delete(ctx, entries[0].ID))
	assert.ErrorIs(t, q.Delete(ctx, entries[0].ID), ErrNotFound)

	// Unrelated files are left alone.
	require.NoError(t, os.WriteFile(filepath.Join(q.basePath, "notes.txt"), []byte("keep"), 0o644))

	n, err := q.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, q.Stats().PendingFiles)
	assert.FileExists(t, filepath.Join(q.basePath, "notes.txt"))
}

func TestQueue_SkipsCorruptFiles(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Write(ctx, "s", "a", proposal.Tree{"id": "1"}, errors.New("x"), "extract"))
	require.NoError(t, os.WriteFile(filepath.Join(q.basePath, "failed_1_0.json"), []byte("{"), 0o644))

	entries, err := q.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestQueue_Nil(t *testing.T) {
	var q *Queue
	ctx := context.Background()

	assert.NoError(t, q.Write(ctx, "s", "a", proposal.Tree{}, errors.New("x"), "extract"))
	assert.False(t, q.Stats().Enabled)

	_, err := q.List(ctx, 0)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, q.Delete(ctx, "x"), ErrDisabled)
	_, err = q.Purge(ctx)
	assert.ErrorIs(t, err, ErrDisabled)
}
