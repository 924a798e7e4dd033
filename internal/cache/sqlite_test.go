package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docdex/docdex/internal/fingerprint"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "embeddings.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GetMissIsNotError(t *testing.T) {
	// Given: an empty cache
	s := openTestStore(t)

	// When: I get an absent hash
	vec, ok, err := s.Get(context.Background(), fingerprint.Text("absent"))

	// Then: a miss, no error, no computation
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, vec)
}

func TestStore_PutThenGet(t *testing.T) {
	// Given: a stored vector
	s := openTestStore(t)
	hash := fingerprint.Text("chunk text")
	vec := []float32{0.1, -0.2, 0.3, 4}
	require.NoError(t, s.Put(context.Background(), hash, vec, "static-4"))

	// When: I get it back
	got, ok, err := s.Get(context.Background(), hash)

	// Then: the exact vector returns
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestStore_EntriesAreImmutable(t *testing.T) {
	// Given: an existing entry
	s := openTestStore(t)
	hash := fingerprint.Text("chunk")
	first := []float32{1, 2, 3}
	require.NoError(t, s.Put(context.Background(), hash, first, "m"))

	// When: a second put arrives for the same key
	require.NoError(t, s.Put(context.Background(), hash, []float32{9, 9, 9}, "m"))

	// Then: the hot layer may hold the newer value, but the durable row
	// keeps the original
	s.hot.Purge()
	got, ok, err := s.Get(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestStore_SurvivesReopen(t *testing.T) {
	// Given: a cache with one entry, closed
	path := filepath.Join(t.TempDir(), "embeddings.db")
	s, err := Open(path, Options{})
	require.NoError(t, err)

	hash := fingerprint.Text("persistent")
	vec := []float32{0.5, 0.25}
	require.NoError(t, s.Put(context.Background(), hash, vec, "m"))
	require.NoError(t, s.Close())

	// When: I reopen it
	s2, err := Open(path, Options{})
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	// Then: the entry is still there
	got, ok, err := s2.Get(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec, got)
}

func TestStore_Evict(t *testing.T) {
	// Given: two entries
	s := openTestStore(t)
	h1 := fingerprint.Text("one")
	h2 := fingerprint.Text("two")
	require.NoError(t, s.Put(context.Background(), h1, []float32{1}, "m"))
	require.NoError(t, s.Put(context.Background(), h2, []float32{2}, "m"))

	// When: I evict one
	require.NoError(t, s.Evict(context.Background(), []fingerprint.Hash{h1}))

	// Then: only the other remains
	_, ok, err := s.Get(context.Background(), h1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(context.Background(), h2)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := s.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_SweepEvictsUnreferenced(t *testing.T) {
	// Given: three entries, two referenced
	s := openTestStore(t)
	ctx := context.Background()
	keep1 := fingerprint.Text("keep one")
	keep2 := fingerprint.Text("keep two")
	orphan := fingerprint.Text("orphan")
	require.NoError(t, s.Put(ctx, keep1, []float32{1}, "m"))
	require.NoError(t, s.Put(ctx, keep2, []float32{2}, "m"))
	require.NoError(t, s.Put(ctx, orphan, []float32{3}, "m"))

	// When: I sweep with the referenced set
	evicted, err := s.Sweep(ctx, map[fingerprint.Hash]bool{keep1: true, keep2: true})
	require.NoError(t, err)

	// Then: only the orphan was evicted
	assert.Equal(t, 1, evicted)
	_, ok, err := s.Get(ctx, orphan)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_SweepNothingToDo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := fingerprint.Text("referenced")
	require.NoError(t, s.Put(ctx, h, []float32{1}, "m"))

	evicted, err := s.Sweep(ctx, map[fingerprint.Hash]bool{h: true})
	require.NoError(t, err)
	assert.Zero(t, evicted)
}

func TestStore_GetReturnsPrivateCopy(t *testing.T) {
	// Given: a stored vector
	s := openTestStore(t)
	hash := fingerprint.Text("normalized later")
	require.NoError(t, s.Put(context.Background(), hash, []float32{3, 4, 0}, "m"))

	// When: a caller mutates the slice it got back
	got, ok, err := s.Get(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, ok)
	got[0] = 99

	// Then: the next lookup sees the original values
	again, ok, err := s.Get(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4, 0}, again)
}

func TestStore_PutDoesNotAliasCallerSlice(t *testing.T) {
	// Given: a vector the caller mutates after storing it
	s := openTestStore(t)
	hash := fingerprint.Text("aliased")
	vec := []float32{1, 2, 3}
	require.NoError(t, s.Put(context.Background(), hash, vec, "m"))
	vec[0] = -1

	// Then: lookups see the stored values
	got, ok, err := s.Get(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, got)
}

func TestStore_ClosedRejectsOperations(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, _, err := s.Get(context.Background(), "h")
	require.Error(t, err)
	require.Error(t, s.Put(context.Background(), "h", []float32{1}, "m"))

	// Close is idempotent
	require.NoError(t, s.Close())
}

func TestCodec_RoundTrip(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 3.14159}
	got, err := decodeVector(encodeVector(vec), len(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestCodec_TruncatedBlob(t *testing.T) {
	blob := encodeVector([]float32{1, 2, 3})
	_, err := decodeVector(blob[:7], 3)
	require.Error(t, err)
}
