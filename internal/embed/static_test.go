package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	// Given: a static embedder
	e := NewStaticEmbedder(64)
	defer func() { _ = e.Close() }()

	// When: I embed the same text twice
	v1, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)

	// Then: vectors are identical
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 64)
}

func TestStaticEmbedder_DistinctTexts(t *testing.T) {
	e := NewStaticEmbedder(64)
	defer func() { _ = e.Close() }()

	v1, err := e.Embed(context.Background(), "alpha beta gamma")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "completely different words")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	// Given: an embedding of non-empty text
	e := NewStaticEmbedder(64)
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	// Then: the vector has unit length
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestStaticEmbedder_EmptyText(t *testing.T) {
	e := NewStaticEmbedder(16)
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)

	// Then: a zero vector of the right width is returned
	assert.Equal(t, make([]float32, 16), v)
}

func TestStaticEmbedder_Batch(t *testing.T) {
	e := NewStaticEmbedder(32)
	defer func() { _ = e.Close() }()

	texts := []string{"one", "two", "three"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// And: batch results match single embeds
	single, err := e.Embed(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1])
}

func TestStaticEmbedder_ClosedRejectsEmbed(t *testing.T) {
	e := NewStaticEmbedder(16)
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestStaticEmbedder_DefaultDimensions(t *testing.T) {
	e := NewStaticEmbedder(0)
	assert.Equal(t, DefaultDimensions, e.Dimensions())
	assert.Equal(t, "static-384", e.ModelName())
}
