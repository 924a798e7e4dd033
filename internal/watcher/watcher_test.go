package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitTrigger(t *testing.T, w *Watcher, timeout time.Duration) bool {
	t.Helper()
	select {
	case <-w.Triggers():
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestWatcher_TriggersOnDocumentWrite(t *testing.T) {
	// Given: a running watcher with a short debounce
	root := t.TempDir()
	w, err := New(root, 100*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	// When: a document is written
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("content"), 0o644))

	// Then: a trigger fires after the debounce window
	assert.True(t, waitTrigger(t, w, 5*time.Second))
}

func TestWatcher_CoalescesBurst(t *testing.T) {
	// Given: a running watcher
	root := t.TempDir()
	w, err := New(root, 150*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	// When: several writes land within one debounce window
	for i := 0; i < 5; i++ {
		name := filepath.Join(root, "doc"+string(rune('a'+i))+".md")
		require.NoError(t, os.WriteFile(name, []byte("content"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	// Then: one trigger covers the burst
	require.True(t, waitTrigger(t, w, 5*time.Second))

	// And: no second trigger follows without further events
	assert.False(t, waitTrigger(t, w, 500*time.Millisecond))
}

func TestWatcher_IgnoresUnsupportedFiles(t *testing.T) {
	// Given: a running watcher
	root := t.TempDir()
	w, err := New(root, 100*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	// When: only unsupported files are written
	require.NoError(t, os.WriteFile(filepath.Join(root, "binary.exe"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.md"), []byte("x"), 0o644))

	// Then: no trigger fires
	assert.False(t, waitTrigger(t, w, 600*time.Millisecond))
}

func TestWatcher_WatchesNewSubdirectories(t *testing.T) {
	// Given: a running watcher
	root := t.TempDir()
	w, err := New(root, 100*time.Millisecond)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	// When: a new directory appears and then receives a document
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.True(t, waitTrigger(t, w, 5*time.Second))

	require.NoError(t, os.WriteFile(filepath.Join(sub, "inner.md"), []byte("content"), 0o644))

	// Then: the document write triggers too
	assert.True(t, waitTrigger(t, w, 5*time.Second))
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), time.Second)
	require.NoError(t, err)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
