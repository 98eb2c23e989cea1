// Copyright 2025 Veritium Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veritium/corpusqa/ai"
	"github.com/veritium/corpusqa/cache"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/retrieval"
	"github.com/veritium/corpusqa/storage"
)

// Response is the outcome of one answered query.
type Response struct {
	QueryId        string
	SessionId      string
	Answer         string
	Sources        []core.Source
	NoEvidence     bool
	ResponseTimeMs int64
}

// Engine runs the full query path: reformulate, embed, retrieve,
// synthesize. Every terminal outcome lands in the query log; failed
// queries are recorded with an empty answer.
type Engine struct {
	reformulator *Reformulator
	synthesizer  *Synthesizer
	retriever    *retrieval.Retriever
	embedder     ai.Embedder
	queryLog     storage.QueryLogRepository
	documents    storage.DocumentRepository
	cache        *cache.Cache
	model        string
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithCache enables embedding reuse for repeated queries.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) error {
		if c == nil {
			return errors.New("cache cannot be nil")
		}
		e.cache = c
		return nil
	}
}

// WithEmbeddingModel sets the model name used for cache addressing.
func WithEmbeddingModel(model string) Option {
	return func(e *Engine) error {
		if model != "" {
			e.model = model
		}
		return nil
	}
}

// NewEngine creates a query engine.
func NewEngine(
	reformulator *Reformulator,
	synthesizer *Synthesizer,
	retriever *retrieval.Retriever,
	embedder ai.Embedder,
	queryLog storage.QueryLogRepository,
	documents storage.DocumentRepository,
	opts ...Option,
) (*Engine, error) {
	if reformulator == nil {
		return nil, errors.New("reformulator cannot be nil")
	}
	if synthesizer == nil {
		return nil, errors.New("synthesizer cannot be nil")
	}
	if retriever == nil {
		return nil, errors.New("retriever cannot be nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder cannot be nil")
	}
	if queryLog == nil {
		return nil, errors.New("query log repository cannot be nil")
	}
	if documents == nil {
		return nil, errors.New("document repository cannot be nil")
	}

	e := &Engine{
		reformulator: reformulator,
		synthesizer:  synthesizer,
		retriever:    retriever,
		embedder:     embedder,
		queryLog:     queryLog,
		documents:    documents,
		model:        ai.DefaultConfig().EmbeddingModel,
		logger:       slog.Default().With("component", "qa_engine"),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Answer runs the query path for one question. A blank session ID starts
// a new session. A non-empty parentQueryID names the specific prior
// query the question follows up on; it takes precedence over session
// history. The no-evidence outcome returns a guidance message and is
// logged as a success; it is not an error.
func (e *Engine) Answer(ctx context.Context, question, sessionID, parentQueryID string) (*Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, core.ErrEmptyQuestion
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	start := time.Now()

	turns := e.conversationTurns(ctx, sessionID, parentQueryID)

	searchQuery := e.reformulator.Reformulate(ctx, question, turns)

	embedding := e.embedQuery(ctx, searchQuery)

	passages, err := e.retriever.Retrieve(ctx, searchQuery, embedding)
	if err != nil {
		if errors.Is(err, retrieval.ErrNoEvidence) {
			return e.answerNoEvidence(ctx, question, sessionID, start)
		}
		e.recordOutcome(ctx, question, sessionID, "", nil, core.QueryStatusFailed, start)
		return nil, err
	}

	answer, sources, err := e.synthesizer.Synthesize(ctx, question, passages)
	if err != nil {
		e.logger.Error("synthesis failed", "code", ai.Classify(err), "err", err)
		e.recordOutcome(ctx, question, sessionID, "", nil, core.QueryStatusFailed, start)
		return nil, err
	}

	record := e.recordOutcome(ctx, question, sessionID, answer, sources, core.QueryStatusSuccess, start)

	return &Response{
		QueryId:        record.Id,
		SessionId:      sessionID,
		Answer:         answer,
		Sources:        sources,
		ResponseTimeMs: record.ResponseTimeMs,
	}, nil
}

// conversationTurns resolves the context for a follow-up question. An
// explicit parent turn wins over session history. History only sharpens
// reformulation; a fresh question works without it, so resolution
// failures degrade to no context.
func (e *Engine) conversationTurns(ctx context.Context, sessionID, parentQueryID string) []core.ConversationTurn {
	if parentQueryID != "" {
		parent, err := e.queryLog.GetQueryRecord(ctx, parentQueryID)
		switch {
		case err != nil:
			e.logger.Warn("failed to load parent turn", "parent_query_id", parentQueryID, "err", err)
		case parent.Status == core.QueryStatusSuccess:
			return []core.ConversationTurn{{Question: parent.Question, Answer: parent.Answer}}
		}
	}

	turns, err := e.queryLog.GetSessionTurns(ctx, sessionID, maxConversationTurns)
	if err != nil {
		e.logger.Warn("failed to load conversation history", "session_id", sessionID, "err", err)
	}
	return turns
}

// embedQuery resolves the query embedding, cache first. Embedding
// failure degrades to keyword-only retrieval rather than failing the
// query.
func (e *Engine) embedQuery(ctx context.Context, searchQuery string) []float32 {
	if e.cache != nil {
		if embedding, ok := e.cache.GetEmbedding(e.model, searchQuery); ok {
			return embedding
		}
	}

	embedding, err := e.embedder.EmbedText(ctx, searchQuery)
	if err != nil {
		e.logger.Warn("query embedding failed, degrading to keyword search",
			"code", ai.Classify(err), "err", err)
		return nil
	}

	if e.cache != nil {
		e.cache.PutEmbedding(e.model, searchQuery, embedding)
	}
	return embedding
}

// answerNoEvidence renders the typed empty-retrieval outcome.
func (e *Engine) answerNoEvidence(ctx context.Context, question, sessionID string, start time.Time) (*Response, error) {
	indexed, err := e.documents.CountDocumentsByStatus(ctx, core.DocumentStatusIndexed)
	if err != nil {
		e.logger.Warn("failed to count indexed documents", "err", err)
	}

	answer := fmt.Sprintf(
		"I couldn't find anything in the document library relevant to your question. "+
			"The library currently holds %d indexed document(s). "+
			"Try rephrasing the question or uploading documents that cover this topic.", indexed)

	record := e.recordOutcome(ctx, question, sessionID, answer, nil, core.QueryStatusSuccess, start)

	return &Response{
		QueryId:        record.Id,
		SessionId:      sessionID,
		Answer:         answer,
		NoEvidence:     true,
		ResponseTimeMs: record.ResponseTimeMs,
	}, nil
}

// recordOutcome writes the terminal query log entry. Logging failures
// are reported but never fail the query itself.
func (e *Engine) recordOutcome(ctx context.Context, question, sessionID, answer string, sources []core.Source, status core.QueryStatus, start time.Time) *core.QueryRecord {
	record := &core.QueryRecord{
		SessionId:      sessionID,
		Question:       question,
		Answer:         answer,
		Sources:        sources,
		Status:         status,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}

	stored, err := e.queryLog.AddQueryRecord(ctx, record)
	if err != nil {
		e.logger.Error("failed to record query outcome", "status", status, "err", err)
		return record
	}
	return stored
}
