package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/storage"
)

func setupRepos(t *testing.T) (storage.DocumentRepository, storage.ChunkRepository, storage.QueryLogRepository) {
	t.Helper()

	docRepo, chunkRepo, queryRepo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)

	t.Cleanup(func() {
		queryRepo.Close()
		chunkRepo.Close()
		docRepo.Close()
		backend.Close()
	})

	return docRepo, chunkRepo, queryRepo
}

func TestDocumentRepository_AddAndGet(t *testing.T) {
	docRepo, _, _ := setupRepos(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{
		Title:    "Employee Handbook",
		Filename: "handbook.pdf",
		FileType: "pdf",
		FileSize: 2048,
		Status:   core.DocumentStatusProcessing,
	})
	require.NoError(t, err)
	require.NotZero(t, doc.Id)
	require.False(t, doc.CreatedAt.IsZero())

	got, err := docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, doc.Id, got.Id)
	assert.Equal(t, "Employee Handbook", got.Title)
	assert.Equal(t, core.DocumentStatusProcessing, got.Status)
}

func TestDocumentRepository_GetMissing(t *testing.T) {
	docRepo, _, _ := setupRepos(t)

	_, err := docRepo.GetDocument(context.Background(), core.ID(9999))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentRepository_SetStatus(t *testing.T) {
	docRepo, _, _ := setupRepos(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{
		Title:  "Policies",
		Status: core.DocumentStatusProcessing,
	})
	require.NoError(t, err)

	require.NoError(t, docRepo.SetDocumentStatus(ctx, doc.Id, core.DocumentStatusIndexed))

	got, err := docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentStatusIndexed, got.Status)

	err = docRepo.SetDocumentStatus(ctx, core.ID(9999), core.DocumentStatusFailed)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentRepository_ListAndCount(t *testing.T) {
	docRepo, _, _ := setupRepos(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status := core.DocumentStatusIndexed
		if i == 2 {
			status = core.DocumentStatusFailed
		}
		_, err := docRepo.AddDocument(ctx, &core.Document{
			Title:  fmt.Sprintf("Doc %d", i),
			Status: status,
		})
		require.NoError(t, err)
	}

	docs, err := docRepo.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i := 1; i < len(docs); i++ {
		assert.Less(t, docs[i-1].Id, docs[i].Id)
	}

	indexed, err := docRepo.CountDocumentsByStatus(ctx, core.DocumentStatusIndexed)
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)

	failed, err := docRepo.CountDocumentsByStatus(ctx, core.DocumentStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
}

func TestDocumentRepository_Delete(t *testing.T) {
	docRepo, _, _ := setupRepos(t)
	ctx := context.Background()

	doc, err := docRepo.AddDocument(ctx, &core.Document{
		Title:  "Ephemeral",
		Status: core.DocumentStatusProcessing,
	})
	require.NoError(t, err)

	require.NoError(t, docRepo.DeleteDocument(ctx, doc.Id))

	_, err = docRepo.GetDocument(ctx, doc.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = docRepo.DeleteDocument(ctx, doc.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChunkRepository_AddAndScan(t *testing.T) {
	_, chunkRepo, _ := setupRepos(t)
	ctx := context.Background()
	docID := core.ID(42)

	var chunks []*core.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, &core.Chunk{
			DocumentId: docID,
			Index:      i,
			Content:    fmt.Sprintf("chunk %d content", i),
		})
	}
	require.NoError(t, chunkRepo.AddChunks(ctx, chunks...))

	// Scan yields index order regardless of insertion order.
	var seen []int
	err := chunkRepo.ScanDocumentChunks(ctx, docID, func(chunk *core.Chunk) bool {
		seen = append(seen, chunk.Index)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)

	// Early termination.
	seen = nil
	err = chunkRepo.ScanDocumentChunks(ctx, docID, func(chunk *core.Chunk) bool {
		seen = append(seen, chunk.Index)
		return len(seen) < 2
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestChunkRepository_Upsert(t *testing.T) {
	_, chunkRepo, _ := setupRepos(t)
	ctx := context.Background()
	docID := core.ID(7)

	require.NoError(t, chunkRepo.AddChunks(ctx, &core.Chunk{
		DocumentId: docID, Index: 0, Content: "original",
	}))
	require.NoError(t, chunkRepo.AddChunks(ctx, &core.Chunk{
		DocumentId: docID, Index: 0, Content: "replaced",
	}))

	chunk, err := chunkRepo.GetChunk(ctx, docID, 0)
	require.NoError(t, err)
	assert.Equal(t, "replaced", chunk.Content)

	all, err := chunkRepo.GetChunksByDocument(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestChunkRepository_GetChunksSkipsMissing(t *testing.T) {
	_, chunkRepo, _ := setupRepos(t)
	ctx := context.Background()
	docID := core.ID(7)

	require.NoError(t, chunkRepo.AddChunks(ctx,
		&core.Chunk{DocumentId: docID, Index: 1, Content: "one"},
		&core.Chunk{DocumentId: docID, Index: 2, Content: "two"},
	))

	chunks, err := chunkRepo.GetChunks(ctx, docID, 0, 1, 2, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Index)
	assert.Equal(t, 2, chunks[1].Index)
}

func TestChunkRepository_DeleteByDocument(t *testing.T) {
	_, chunkRepo, _ := setupRepos(t)
	ctx := context.Background()

	require.NoError(t, chunkRepo.AddChunks(ctx,
		&core.Chunk{DocumentId: 1, Index: 0, Content: "keep"},
		&core.Chunk{DocumentId: 2, Index: 0, Content: "drop"},
		&core.Chunk{DocumentId: 2, Index: 1, Content: "drop"},
	))

	require.NoError(t, chunkRepo.DeleteChunksByDocument(ctx, core.ID(2)))

	gone, err := chunkRepo.GetChunksByDocument(ctx, core.ID(2))
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := chunkRepo.GetChunksByDocument(ctx, core.ID(1))
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestQueryLogRepository_AddAndGet(t *testing.T) {
	_, _, queryRepo := setupRepos(t)
	ctx := context.Background()

	record, err := queryRepo.AddQueryRecord(ctx, &core.QueryRecord{
		SessionId: "sess-1",
		Question:  "What is the vacation policy?",
		Answer:    "Twenty days per year [1].",
		Sources: []core.Source{
			{SourceNumber: 1, DocumentId: 3, Title: "Handbook", FirstChunkIndex: 2, LastChunkIndex: 4, Excerpt: "Vacation days..."},
		},
		Status:         core.QueryStatusSuccess,
		ResponseTimeMs: 150,
	})
	require.NoError(t, err)
	require.NotEmpty(t, record.Id)

	got, err := queryRepo.GetQueryRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, record.Question, got.Question)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, core.ID(3), got.Sources[0].DocumentId)
}

func TestQueryLogRepository_RecentOrder(t *testing.T) {
	_, _, queryRepo := setupRepos(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := queryRepo.AddQueryRecord(ctx, &core.QueryRecord{
			Question:  fmt.Sprintf("question %d", i),
			Answer:    "answer",
			Status:    core.QueryStatusSuccess,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	records, err := queryRepo.GetRecentQueryRecords(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "question 4", records[0].Question)
	assert.Equal(t, "question 3", records[1].Question)
	assert.Equal(t, "question 2", records[2].Question)

	// Offset pages past the newest records.
	page, err := queryRepo.GetRecentQueryRecords(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "question 1", page[0].Question)
	assert.Equal(t, "question 0", page[1].Question)

	past, err := queryRepo.GetRecentQueryRecords(ctx, 2, 5)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestQueryLogRepository_Feedback(t *testing.T) {
	_, _, queryRepo := setupRepos(t)
	ctx := context.Background()

	record, err := queryRepo.AddQueryRecord(ctx, &core.QueryRecord{
		Question: "What is the vacation policy?",
		Answer:   "Twenty days.",
		Status:   core.QueryStatusSuccess,
	})
	require.NoError(t, err)

	require.NoError(t, queryRepo.SetQueryFeedback(ctx, &core.QueryFeedback{
		QueryId: record.Id,
		Rating:  1,
		Comment: "spot on",
	}))

	got, err := queryRepo.GetQueryFeedback(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Rating)
	assert.Equal(t, "spot on", got.Comment)
	assert.False(t, got.CreatedAt.IsZero())

	// Resubmission replaces the earlier rating.
	require.NoError(t, queryRepo.SetQueryFeedback(ctx, &core.QueryFeedback{
		QueryId: record.Id,
		Rating:  -1,
	}))
	got, err = queryRepo.GetQueryFeedback(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, -1, got.Rating)
}

func TestQueryLogRepository_FeedbackValidation(t *testing.T) {
	_, _, queryRepo := setupRepos(t)
	ctx := context.Background()

	record, err := queryRepo.AddQueryRecord(ctx, &core.QueryRecord{
		Question: "anything",
		Status:   core.QueryStatusSuccess,
	})
	require.NoError(t, err)

	err = queryRepo.SetQueryFeedback(ctx, &core.QueryFeedback{QueryId: record.Id, Rating: 5})
	assert.ErrorIs(t, err, core.ErrInvalidRating)

	err = queryRepo.SetQueryFeedback(ctx, &core.QueryFeedback{QueryId: "no-such-query", Rating: 1})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = queryRepo.GetQueryFeedback(ctx, record.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQueryLogRepository_SessionTurns(t *testing.T) {
	_, _, queryRepo := setupRepos(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	add := func(session, question string, status core.QueryStatus, offset time.Duration) {
		_, err := queryRepo.AddQueryRecord(ctx, &core.QueryRecord{
			SessionId: session,
			Question:  question,
			Answer:    "answer to " + question,
			Status:    status,
			CreatedAt: base.Add(offset),
		})
		require.NoError(t, err)
	}

	add("sess-a", "first", core.QueryStatusSuccess, 0)
	add("sess-a", "failed one", core.QueryStatusFailed, time.Minute)
	add("sess-a", "second", core.QueryStatusSuccess, 2*time.Minute)
	add("sess-b", "other session", core.QueryStatusSuccess, 3*time.Minute)

	turns, err := queryRepo.GetSessionTurns(ctx, "sess-a", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	// Oldest first, failed queries excluded.
	assert.Equal(t, "first", turns[0].Question)
	assert.Equal(t, "second", turns[1].Question)

	none, err := queryRepo.GetSessionTurns(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
