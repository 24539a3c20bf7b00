package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Embed_ReturnsCorrectDimensions(t *testing.T) {
	e := NewStaticEmbedder()
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
}

func TestStaticEmbedder_Embed_IsDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	v1, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestStaticEmbedder_Embed_VectorIsNormalized(t *testing.T) {
	e := NewStaticEmbedder()
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)

	mag := vectorMagnitude(vec)
	assert.InDelta(t, 1.0, mag, 1e-6)
}

func TestStaticEmbedder_Embed_SimilarWordsMoreSimilarThanDissimilar(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	help, err := e.Embed(ctx, "help")
	require.NoError(t, err)
	helpp, err := e.Embed(ctx, "helpp")
	require.NoError(t, err)
	zebra, err := e.Embed(ctx, "zebra")
	require.NoError(t, err)

	assert.Greater(t, cosineSimilarity(help, helpp), cosineSimilarity(help, zebra))
}

func TestStaticEmbedder_Embed_EmptyInput_ReturnsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Equal(t, float32(0), v)
	}
}

func TestStaticEmbedder_Available_AfterClose_ReturnsFalse(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()
	assert.True(t, e.Available(ctx))
	require.NoError(t, e.Close())
	assert.False(t, e.Available(ctx))
}

func TestStaticEmbedder_Embed_AfterClose_ReturnsError(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestStaticEmbedder_EmbedBatch_ReturnsCorrectCount(t *testing.T) {
	e := NewStaticEmbedder()
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
}

func TestStaticEmbedder_EmbedBatch_EmptyList_ReturnsEmpty(t *testing.T) {
	e := NewStaticEmbedder()
	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestStaticEmbedder_Dimensions_Returns256(t *testing.T) {
	e := NewStaticEmbedder()
	assert.Equal(t, 256, e.Dimensions())
}

func TestStaticEmbedder_ModelName_ReturnsStaticV1(t *testing.T) {
	e := NewStaticEmbedder()
	assert.Equal(t, "static-v1", e.ModelName())
}

func TestStaticEmbedder_ImplementsEmbedderInterface(t *testing.T) {
	var _ Embedder = (*StaticEmbedder)(nil)
}
