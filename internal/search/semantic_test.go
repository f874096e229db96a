package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems() []Item {
	return []Item{
		{ID: "auth", ContextData: map[string]any{"title": "Implement authentication", "description": "Add JWT-based authentication to the API"}},
		{ID: "db", ContextData: map[string]any{"title": "Setup database", "description": "Configure PostgreSQL database migrations"}},
		{ID: "deploy", ContextData: map[string]any{"title": "Deploy service", "description": "Roll the service out to production"}},
	}
}

func TestSemanticIndex_GenerateEmbeddingIsNormalized(t *testing.T) {
	idx := NewSemanticIndex(0)

	emb, err := idx.GenerateEmbedding("Deploy the payment service to production")
	require.NoError(t, err)
	assert.Len(t, emb, DefaultDimensions)

	norm := 0.0
	for _, v := range emb {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)

	empty, err := idx.GenerateEmbedding("a an of")
	require.NoError(t, err)
	for _, v := range empty {
		assert.Equal(t, 0.0, v)
	}
}

func TestSemanticIndex_FindSimilarContexts(t *testing.T) {
	idx := NewSemanticIndex(0)
	require.NoError(t, idx.IndexContexts(testItems()))
	assert.Equal(t, 3, idx.Size())

	matches, err := idx.FindSimilarContexts("deploy service", 10, 0.1)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "deploy", matches[0].Item.ID)
	assert.Greater(t, matches[0].SimilarityScore, 0.5)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].SimilarityScore, matches[i].SimilarityScore)
	}
}

func TestSemanticIndex_TopKAndThreshold(t *testing.T) {
	idx := NewSemanticIndex(0)
	require.NoError(t, idx.IndexContexts(testItems()))

	matches, err := idx.FindSimilarContexts("database authentication service", 1, 0)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	matches, err = idx.FindSimilarContexts("deploy service", 10, 0.99)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = idx.FindSimilarContexts("kubernetes", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSemanticIndex_QueryCacheStats(t *testing.T) {
	idx := NewSemanticIndex(0)
	require.NoError(t, idx.IndexContexts(testItems()))

	_, err := idx.FindSimilarContexts("deploy service", 5, 0)
	require.NoError(t, err)
	_, err = idx.FindSimilarContexts("deploy service", 5, 0)
	require.NoError(t, err)

	stats := idx.Stats()
	assert.Equal(t, 2, stats["queries"])
	assert.Equal(t, 1, stats["embedding_cache_hits"])
	assert.Equal(t, 3, stats["indexed_items"])
}

func TestWordOverlap(t *testing.T) {
	assert.Equal(t, 1.0, WordOverlap("deploy service", "Deploy the service."))
	assert.Equal(t, 0.5, WordOverlap("deploy database", "deploy service"))
	assert.Equal(t, 0.0, WordOverlap("", "anything"))
}

func TestSearchableText(t *testing.T) {
	text := SearchableText(map[string]any{
		"title":           "Fix login",
		"description":     "",
		"git_branch_name": "feature/auth",
		"status":          "todo",
	})
	assert.Equal(t, "Fix login feature/auth", text)
}
