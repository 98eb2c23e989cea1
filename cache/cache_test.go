package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	badgerstore "github.com/veritium/corpusqa/storage/badger"
	"github.com/veritium/corpusqa/vector"
)

func setupCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()

	backend, err := badgerstore.OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	c, err := New(backend, opts...)
	require.NoError(t, err)
	return c
}

func TestCache_EmbeddingPutGetIdentity(t *testing.T) {
	c := setupCache(t)

	embedding := []float32{0.1, -0.5, 2.25, 0}
	c.PutEmbedding("text-embedding-3-small", "hello world", embedding)

	got, ok := c.GetEmbedding("text-embedding-3-small", "hello world")
	require.True(t, ok)
	assert.Equal(t, embedding, got)
}

func TestCache_EmbeddingMissOnUnknownText(t *testing.T) {
	c := setupCache(t)

	_, ok := c.GetEmbedding("text-embedding-3-small", "never cached")
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCache_EmbeddingKeysDistinguishModel(t *testing.T) {
	c := setupCache(t)

	c.PutEmbedding("model-a", "same text", []float32{1})
	c.PutEmbedding("model-b", "same text", []float32{2})

	a, ok := c.GetEmbedding("model-a", "same text")
	require.True(t, ok)
	assert.Equal(t, []float32{1}, a)

	b, ok := c.GetEmbedding("model-b", "same text")
	require.True(t, ok)
	assert.Equal(t, []float32{2}, b)
}

func TestCache_EmbeddingTTLExpiry(t *testing.T) {
	c := setupCache(t, WithEmbeddingTTL(100*time.Millisecond))

	c.PutEmbedding("m", "short lived", []float32{1, 2})

	_, ok := c.GetEmbedding("m", "short lived")
	require.True(t, ok)

	time.Sleep(250 * time.Millisecond)

	_, ok = c.GetEmbedding("m", "short lived")
	assert.False(t, ok)
}

func TestCache_EmptyEmbeddingNotStored(t *testing.T) {
	c := setupCache(t)

	c.PutEmbedding("m", "empty", nil)

	_, ok := c.GetEmbedding("m", "empty")
	assert.False(t, ok)
}

func TestCache_SearchResultsRoundtrip(t *testing.T) {
	c := setupCache(t)

	matches := []*vector.Match{
		{DocumentID: 3, ChunkIndex: 2, Content: "vacation policy", Title: "Handbook", Score: 0.87},
		{DocumentID: 5, ChunkIndex: 0, Content: "intro", Title: "Guide", Score: 0.61},
	}
	c.PutSearchResults("vacation days", matches)

	got, ok := c.GetSearchResults("vacation days")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, matches[0].Content, got[0].Content)
	assert.Equal(t, matches[1].Score, got[1].Score)
}

func TestCache_BumpVersionInvalidatesSearchResults(t *testing.T) {
	c := setupCache(t)

	c.PutSearchResults("q", []*vector.Match{{DocumentID: 1, Score: 0.5}})

	_, ok := c.GetSearchResults("q")
	require.True(t, ok)

	c.BumpVersion()

	_, ok = c.GetSearchResults("q")
	assert.False(t, ok)

	// Embeddings survive version bumps.
	c.PutEmbedding("m", "text", []float32{1})
	c.BumpVersion()
	_, ok = c.GetEmbedding("m", "text")
	assert.True(t, ok)
}

func TestCache_ConcurrentBumpsAllLand(t *testing.T) {
	c := setupCache(t)

	const bumps = 16
	var wg sync.WaitGroup
	wg.Add(bumps)
	for i := 0; i < bumps; i++ {
		go func() {
			defer wg.Done()
			c.BumpVersion()
		}()
	}
	wg.Wait()

	// Overlapping bumps must not collapse onto the same version, or a
	// result cached between two of them would survive the second.
	assert.Equal(t, uint64(bumps), c.Version())
}

func TestCache_Stats(t *testing.T) {
	c := setupCache(t)

	c.PutEmbedding("m", "text", []float32{1})
	c.GetEmbedding("m", "text")
	c.GetEmbedding("m", "text")
	c.GetEmbedding("m", "other")

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}
