package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/storage"
	badgerstore "github.com/veritium/corpusqa/storage/badger"
)

func setupKeywordSearcher(t *testing.T) (*KeywordSearcher, storage.DocumentRepository, storage.ChunkRepository) {
	t.Helper()

	docRepo, chunkRepo, queryRepo, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		queryRepo.Close()
		chunkRepo.Close()
		docRepo.Close()
		backend.Close()
	})

	searcher, err := NewKeywordSearcher(docRepo, chunkRepo)
	require.NoError(t, err)
	return searcher, docRepo, chunkRepo
}

func addDoc(t *testing.T, docRepo storage.DocumentRepository, chunkRepo storage.ChunkRepository, title string, status core.DocumentStatus, contents ...string) *core.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{Title: title, Status: status})
	require.NoError(t, err)

	for i, content := range contents {
		require.NoError(t, chunkRepo.AddChunks(ctx, &core.Chunk{
			DocumentId: doc.Id,
			Index:      i,
			Content:    content,
		}))
	}
	return doc
}

func TestExtractTokens(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "lowercases and filters short tokens",
			query: "What is THE Vacation Policy?",
			want:  []string{"what", "vacation", "policy"},
		},
		{
			name:  "caps at five tokens",
			query: "alpha bravo charlie delta echo foxtrot golf",
			want:  []string{"alpha", "bravo", "charlie", "delta", "echo"},
		},
		{
			name:  "only short tokens",
			query: "a an is to",
			want:  nil,
		},
		{
			name:  "strips punctuation",
			query: "refunds, returns... (exchanges)",
			want:  []string{"refunds", "returns", "exchanges"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractTokens(tt.query))
		})
	}
}

func TestKeywordSearch_MatchesIndexedDocumentsOnly(t *testing.T) {
	searcher, docRepo, chunkRepo := setupKeywordSearcher(t)

	indexed := addDoc(t, docRepo, chunkRepo, "Handbook", core.DocumentStatusIndexed,
		"Employees accrue vacation days monthly.")
	addDoc(t, docRepo, chunkRepo, "Draft", core.DocumentStatusProcessing,
		"Vacation accrual draft text.")

	candidates, err := searcher.Search(context.Background(), "vacation accrual")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, indexed.Id, candidates[0].Chunk.DocumentId)
	assert.Equal(t, core.SourceKeyword, candidates[0].Source)
	assert.True(t, candidates[0].Primary)
}

func TestKeywordSearch_NoUsableTokens(t *testing.T) {
	searcher, docRepo, chunkRepo := setupKeywordSearcher(t)
	addDoc(t, docRepo, chunkRepo, "Handbook", core.DocumentStatusIndexed, "Some content here.")

	candidates, err := searcher.Search(context.Background(), "a is to")
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestKeywordSearch_CapsResults(t *testing.T) {
	searcher, docRepo, chunkRepo := setupKeywordSearcher(t)

	contents := make([]string, 10)
	for i := range contents {
		contents[i] = "every chunk mentions refunds here"
	}
	addDoc(t, docRepo, chunkRepo, "Policy", core.DocumentStatusIndexed, contents...)

	candidates, err := searcher.Search(context.Background(), "refunds")
	require.NoError(t, err)
	assert.Len(t, candidates, maxKeywordResults)
}
