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

package ingestion

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/veritium/corpusqa/ai"
	"github.com/veritium/corpusqa/cache"
	"github.com/veritium/corpusqa/chunker"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/storage"
	"github.com/veritium/corpusqa/vector"
)

var (
	chunkOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corpusqa_ingestion_chunks_total",
		Help: "Ingested chunks by outcome.",
	}, []string{"outcome"})
)

// Pipeline turns extracted document text into queryable chunks: split,
// embed, persist, index. Work is fanned out per chunk on a bounded
// worker pool and fanned back in before the document status flips.
//
// Submission is fire-and-forget; callers observe completion by polling
// the document status. Cancelling the submitting request does not cancel
// processing.
type Pipeline struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	index     vector.Index
	embedder  ai.Embedder
	cache     *cache.Cache
	splitter  *chunker.Chunker
	pool      *ants.Pool
	model     string
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent chunk processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithChunker sets a custom text splitter.
func WithChunker(splitter *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		if splitter != nil {
			p.splitter = splitter
		}
		return nil
	}
}

// WithEmbeddingModel sets the model name used for cache addressing.
func WithEmbeddingModel(model string) Option {
	return func(p *Pipeline) error {
		if model != "" {
			p.model = model
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. The cache is optional;
// without it every chunk embedding is computed fresh.
func NewPipeline(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	index vector.Index,
	embedder ai.Embedder,
	embeddingCache *cache.Cache,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents: documents,
		chunks:    chunks,
		index:     index,
		embedder:  embedder,
		cache:     embeddingCache,
		splitter:  chunker.New(),
		pool:      pool,
		model:     ai.DefaultConfig().EmbeddingModel,
		logger:    slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// Submit splits the document text and schedules background processing.
// Splitting errors (empty text) surface synchronously; everything after
// that is asynchronous and observed via the document status.
func (p *Pipeline) Submit(ctx context.Context, docID core.ID, title, text string) error {
	pieces, err := p.splitter.Split(text)
	if err != nil {
		return err
	}

	go p.process(docID, title, pieces)
	return nil
}

// process embeds and indexes every chunk, then settles the document
// status. Runs on a background context so the submitting request's
// cancellation cannot orphan a half-indexed document.
func (p *Pipeline) process(docID core.ID, title string, pieces []string) {
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)

	for i, piece := range pieces {
		chunk := &core.Chunk{
			DocumentId: docID,
			Index:      i,
			Content:    piece,
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if err := p.processChunk(ctx, chunk, title); err != nil {
				failures.Add(1)
				chunkOutcomes.WithLabelValues("failed").Inc()
				p.logger.Error("chunk processing failed",
					"document_id", chunk.DocumentId, "chunk_index", chunk.Index, "err", err)
				return
			}
			chunkOutcomes.WithLabelValues("indexed").Inc()
		})
		if err != nil {
			wg.Done()
			failures.Add(1)
			chunkOutcomes.WithLabelValues("failed").Inc()
			p.logger.Error("failed to schedule chunk", "document_id", docID, "err", err)
		}
	}

	wg.Wait()

	failed := int(failures.Load())
	total := len(pieces)

	// A document with any surviving chunk is queryable; only total loss
	// marks it failed. Partial losses are reported, not retried.
	status := core.DocumentStatusIndexed
	if failed == total {
		status = core.DocumentStatusFailed
	}

	if err := p.documents.SetDocumentStatus(ctx, docID, status); err != nil {
		p.logger.Error("failed to update document status", "document_id", docID, "err", err)
		return
	}

	switch {
	case failed == 0:
		p.logger.Info("document indexed", "document_id", docID, "chunks", total)
	case failed < total:
		p.logger.Warn("document indexed with degraded coverage",
			"document_id", docID, "chunks", total, "failed_chunks", failed)
	default:
		p.logger.Error("document ingestion failed", "document_id", docID, "chunks", total)
	}

	if p.cache != nil {
		p.cache.BumpVersion()
	}
}

// processChunk embeds one chunk (cache first), persists it, and writes
// its vector record.
func (p *Pipeline) processChunk(ctx context.Context, chunk *core.Chunk, title string) error {
	var embedding []float32
	cached := false

	if p.cache != nil {
		embedding, cached = p.cache.GetEmbedding(p.model, chunk.Content)
	}
	if !cached {
		var err error
		embedding, err = p.embedder.EmbedText(ctx, chunk.Content)
		if err != nil {
			return err
		}
		if p.cache != nil {
			p.cache.PutEmbedding(p.model, chunk.Content, embedding)
		}
	}

	if err := p.chunks.AddChunks(ctx, chunk); err != nil {
		return err
	}

	return p.index.Upsert(ctx, &vector.Record{
		Key:        chunk.Key(),
		Vector:     embedding,
		DocumentID: chunk.DocumentId,
		ChunkIndex: chunk.Index,
		Content:    chunk.Content,
		Title:      title,
	})
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
