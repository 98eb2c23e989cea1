package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/storage"
	badgerstore "github.com/veritium/corpusqa/storage/badger"
)

func setupExpander(t *testing.T) (*Expander, storage.ChunkRepository) {
	t.Helper()

	_, chunkRepo, queryRepo, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		queryRepo.Close()
		chunkRepo.Close()
		backend.Close()
	})

	expander, err := NewExpander(chunkRepo)
	require.NoError(t, err)
	return expander, chunkRepo
}

func seedChunks(t *testing.T, chunkRepo storage.ChunkRepository, docID core.ID, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		require.NoError(t, chunkRepo.AddChunks(context.Background(), &core.Chunk{
			DocumentId: docID,
			Index:      i,
			Content:    fmt.Sprintf("content %d", i),
		}))
	}
}

func primaryAt(docID core.ID, index int) *core.RetrievalCandidate {
	return &core.RetrievalCandidate{
		Chunk:   &core.Chunk{DocumentId: docID, Index: index, Content: fmt.Sprintf("content %d", index)},
		Title:   "Doc",
		Primary: true,
	}
}

func expandedIndices(candidates []*core.RetrievalCandidate) []int {
	var indices []int
	for _, c := range candidates {
		indices = append(indices, c.Chunk.Index)
	}
	return indices
}

func TestExpand_MiddleChunk(t *testing.T) {
	expander, chunkRepo := setupExpander(t)
	seedChunks(t, chunkRepo, 1, 10)

	expanded, err := expander.Expand(context.Background(), []*core.RetrievalCandidate{primaryAt(1, 5)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{4, 5, 6}, expandedIndices(expanded))

	for _, c := range expanded {
		assert.Equal(t, c.Chunk.Index == 5, c.Primary)
	}
}

func TestExpand_FirstChunkClampsAtZero(t *testing.T) {
	expander, chunkRepo := setupExpander(t)
	seedChunks(t, chunkRepo, 1, 3)

	expanded, err := expander.Expand(context.Background(), []*core.RetrievalCandidate{primaryAt(1, 0)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1}, expandedIndices(expanded))
}

func TestExpand_LastChunkDropsMissingNeighbor(t *testing.T) {
	expander, chunkRepo := setupExpander(t)
	seedChunks(t, chunkRepo, 1, 3)

	expanded, err := expander.Expand(context.Background(), []*core.RetrievalCandidate{primaryAt(1, 2)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2}, expandedIndices(expanded))
}

func TestExpand_OverlappingPrimariesDeduplicate(t *testing.T) {
	expander, chunkRepo := setupExpander(t)
	seedChunks(t, chunkRepo, 1, 10)

	expanded, err := expander.Expand(context.Background(), []*core.RetrievalCandidate{
		primaryAt(1, 4),
		primaryAt(1, 5),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{3, 4, 5, 6}, expandedIndices(expanded))
}

func TestMerge_ConsecutiveRunsCollapse(t *testing.T) {
	// Primaries at 3,4,5 expanded with neighbors 2 and 6 form one run 2..6.
	var candidates []*core.RetrievalCandidate
	for _, index := range []int{2, 3, 4, 5, 6} {
		candidates = append(candidates, &core.RetrievalCandidate{
			Chunk:   &core.Chunk{DocumentId: 1, Index: index, Content: fmt.Sprintf("content %d", index)},
			Title:   "Doc",
			Primary: index >= 3 && index <= 5,
		})
	}

	passages := Merge(candidates)
	require.Len(t, passages, 1)
	assert.Equal(t, 2, passages[0].FirstIndex)
	assert.Equal(t, 6, passages[0].LastIndex)
	assert.True(t, passages[0].Primary)
	assert.Equal(t, "content 2\n\ncontent 3\n\ncontent 4\n\ncontent 5\n\ncontent 6", passages[0].Content)
}

func TestMerge_GapSplitsRuns(t *testing.T) {
	var candidates []*core.RetrievalCandidate
	for _, index := range []int{0, 1, 5} {
		candidates = append(candidates, &core.RetrievalCandidate{
			Chunk:   &core.Chunk{DocumentId: 1, Index: index, Content: fmt.Sprintf("c%d", index)},
			Primary: true,
		})
	}

	passages := Merge(candidates)
	require.Len(t, passages, 2)
	assert.Equal(t, 0, passages[0].FirstIndex)
	assert.Equal(t, 1, passages[0].LastIndex)
	assert.Equal(t, 5, passages[1].FirstIndex)
	assert.Equal(t, 5, passages[1].LastIndex)
}

func TestMerge_PrimariesOrderFirst(t *testing.T) {
	candidates := []*core.RetrievalCandidate{
		{Chunk: &core.Chunk{DocumentId: 9, Index: 0, Content: "neighbor only"}, Primary: false},
		{Chunk: &core.Chunk{DocumentId: 5, Index: 3, Content: "primary late doc"}, Primary: true},
		{Chunk: &core.Chunk{DocumentId: 2, Index: 7, Content: "primary early doc"}, Primary: true},
	}

	passages := Merge(candidates)
	require.Len(t, passages, 3)
	assert.Equal(t, core.ID(2), passages[0].DocumentId)
	assert.Equal(t, core.ID(5), passages[1].DocumentId)
	assert.Equal(t, core.ID(9), passages[2].DocumentId)
	assert.False(t, passages[2].Primary)
}
