package qa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veritium/corpusqa/ai/mock"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/retrieval"
	"github.com/veritium/corpusqa/storage"
	badgerstore "github.com/veritium/corpusqa/storage/badger"
	"github.com/veritium/corpusqa/vector"
	vectormemory "github.com/veritium/corpusqa/vector/memory"
)

type engineFixture struct {
	engine    *Engine
	docs      storage.DocumentRepository
	chunks    storage.ChunkRepository
	queryLog  storage.QueryLogRepository
	index     *vectormemory.Index
	embedder  *mock.MockEmbedder
	completer *mock.MockCompleter
}

func setupEngine(t *testing.T) *engineFixture {
	t.Helper()

	docRepo, chunkRepo, queryRepo, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		queryRepo.Close()
		chunkRepo.Close()
		docRepo.Close()
		backend.Close()
	})

	index := vectormemory.New()
	embedder := mock.NewMockEmbedder()
	completer := mock.NewMockCompleter()

	keyword, err := retrieval.NewKeywordSearcher(docRepo, chunkRepo)
	require.NoError(t, err)
	expander, err := retrieval.NewExpander(chunkRepo)
	require.NoError(t, err)
	retriever, err := retrieval.NewRetriever(index, keyword, expander)
	require.NoError(t, err)

	reformulator, err := NewReformulator(completer)
	require.NoError(t, err)
	synthesizer, err := NewSynthesizer(completer)
	require.NoError(t, err)

	engine, err := NewEngine(reformulator, synthesizer, retriever, embedder, queryRepo, docRepo)
	require.NoError(t, err)

	return &engineFixture{
		engine:    engine,
		docs:      docRepo,
		chunks:    chunkRepo,
		queryLog:  queryRepo,
		index:     index,
		embedder:  embedder,
		completer: completer,
	}
}

// seedIndexedDocument stores one indexed document with a single chunk,
// both persisted and vector-indexed.
func seedIndexedDocument(t *testing.T, f *engineFixture, title, content string) *core.Document {
	t.Helper()
	ctx := context.Background()

	doc, err := f.docs.AddDocument(ctx, &core.Document{Title: title, Status: core.DocumentStatusIndexed})
	require.NoError(t, err)

	chunk := &core.Chunk{DocumentId: doc.Id, Index: 0, Content: content}
	require.NoError(t, f.chunks.AddChunks(ctx, chunk))
	require.NoError(t, f.index.Upsert(ctx, &vector.Record{
		Key:        chunk.Key(),
		Vector:     mock.DeterministicVector(content, 8),
		DocumentID: doc.Id,
		ChunkIndex: 0,
		Content:    content,
		Title:      title,
	}))
	return doc
}

func TestEngine_SingleChunkEndToEnd(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	seedIndexedDocument(t, f, "Handbook", "Employees accrue twenty vacation days per year.")

	f.completer.CompleteFunc = func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		if systemPrompt == reformulateSystemPrompt {
			return "vacation days accrual", nil
		}
		return "Twenty days per year [1].", nil
	}

	resp, err := f.engine.Answer(ctx, "How many vacation days do I get?", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Twenty days per year [1].", resp.Answer)
	assert.False(t, resp.NoEvidence)
	assert.NotEmpty(t, resp.SessionId)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 1, resp.Sources[0].SourceNumber)
	assert.Equal(t, "Handbook", resp.Sources[0].Title)

	// The outcome is in the query log.
	record, err := f.queryLog.GetQueryRecord(ctx, resp.QueryId)
	require.NoError(t, err)
	assert.Equal(t, core.QueryStatusSuccess, record.Status)
	assert.Equal(t, resp.Answer, record.Answer)
	require.Len(t, record.Sources, 1)
}

func TestEngine_NoEvidenceOutcome(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	resp, err := f.engine.Answer(ctx, "What is the meaning of life?", "sess-1", "")
	require.NoError(t, err)
	assert.True(t, resp.NoEvidence)
	assert.Empty(t, resp.Sources)
	assert.Contains(t, resp.Answer, "0 indexed document(s)")

	// No-evidence is a normal outcome, logged as success.
	record, err := f.queryLog.GetQueryRecord(ctx, resp.QueryId)
	require.NoError(t, err)
	assert.Equal(t, core.QueryStatusSuccess, record.Status)
	assert.Empty(t, record.Sources)
}

func TestEngine_SynthesisFailureRecordedAsFailed(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	seedIndexedDocument(t, f, "Handbook", "Refunds are issued within thirty days.")

	f.completer.CompleteFunc = func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		if systemPrompt == reformulateSystemPrompt {
			return "refund window", nil
		}
		return "", errors.New("model overloaded")
	}

	_, err := f.engine.Answer(ctx, "What is the refund window?", "sess-2", "")
	require.Error(t, err)

	records, err := f.queryLog.GetRecentQueryRecords(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.QueryStatusFailed, records[0].Status)
	assert.Empty(t, records[0].Answer)
}

func TestEngine_EmptyQuestionRejected(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.Answer(context.Background(), "   ", "", "")
	assert.ErrorIs(t, err, core.ErrEmptyQuestion)
}

func TestEngine_FollowUpSeesConversationHistory(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	seedIndexedDocument(t, f, "Policy", "Refunds are issued within thirty days of purchase.")

	var sawHistory bool
	f.completer.CompleteFunc = func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		if systemPrompt == reformulateSystemPrompt {
			if strings.Contains(userPrompt, "Conversation history:") &&
				strings.Contains(userPrompt, "What is the refund window?") {
				sawHistory = true
			}
			return "refund window sale items", nil
		}
		return "Thirty days [1].", nil
	}

	first, err := f.engine.Answer(ctx, "What is the refund window?", "sess-3", "")
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = f.engine.Answer(ctx, "Does it apply to sale items?", "sess-3", "")
	require.NoError(t, err)
	assert.True(t, sawHistory)
}

func TestEngine_ParentTurnBeatsSessionHistory(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	seedIndexedDocument(t, f, "Policy", "Refunds are issued within thirty days of purchase.")

	// The parent turn lives in a different session than the follow-up.
	parent, err := f.queryLog.AddQueryRecord(ctx, &core.QueryRecord{
		SessionId: "sess-old",
		Question:  "What is the refund window?",
		Answer:    "Thirty days.",
		Status:    core.QueryStatusSuccess,
	})
	require.NoError(t, err)

	var sawParent bool
	f.completer.CompleteFunc = func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		if systemPrompt == reformulateSystemPrompt {
			if strings.Contains(userPrompt, "What is the refund window?") &&
				strings.Contains(userPrompt, "Thirty days.") {
				sawParent = true
			}
			return "refund window sale items", nil
		}
		return "Yes, it applies [1].", nil
	}

	_, err = f.engine.Answer(ctx, "Does it apply to sale items?", "sess-new", parent.Id)
	require.NoError(t, err)
	assert.True(t, sawParent)
}

func TestEngine_UnknownParentFallsBackToSession(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	seedIndexedDocument(t, f, "Policy", "Refunds are issued within thirty days of purchase.")

	f.completer.CompleteFunc = func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		if systemPrompt == reformulateSystemPrompt {
			return "refund window", nil
		}
		return "Thirty days [1].", nil
	}

	// A dangling parent reference never fails the query.
	resp, err := f.engine.Answer(ctx, "What is the refund window?", "sess-4", "no-such-query")
	require.NoError(t, err)
	assert.Equal(t, "Thirty days [1].", resp.Answer)
}
