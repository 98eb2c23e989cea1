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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/veritium/corpusqa/ai"
	"github.com/veritium/corpusqa/ai/openai"
	"github.com/veritium/corpusqa/cache"
	"github.com/veritium/corpusqa/chunker"
	"github.com/veritium/corpusqa/config"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/ingestion"
	"github.com/veritium/corpusqa/parser"
	"github.com/veritium/corpusqa/qa"
	"github.com/veritium/corpusqa/retrieval"
	"github.com/veritium/corpusqa/server"
	"github.com/veritium/corpusqa/storage"
	badgerstore "github.com/veritium/corpusqa/storage/badger"
	"github.com/veritium/corpusqa/vector"
	vectormemory "github.com/veritium/corpusqa/vector/memory"
	"github.com/veritium/corpusqa/vector/qdrant"
)

func main() {
	app := &cli.App{
		Name:  "corpusqa",
		Usage: "Question answering over an ingested document corpus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "config.yaml",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API server",
				Action: serveCommand,
			},
			{
				Name:      "ingest",
				Usage:     "Ingest a local file into the corpus and wait for indexing",
				ArgsUsage: "<file>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "title",
						Usage: "Document title (defaults to the file name)",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(c *cli.Context) error {
	// Secrets come from the environment; a .env file is a convenience,
	// not a requirement.
	_ = godotenv.Load()

	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelStr)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

// stack holds everything a command needs, with a single Close for
// teardown in reverse construction order.
type stack struct {
	cfg       *config.AppConfig
	backend   *badgerstore.Backend
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	queryLog  storage.QueryLogRepository
	store     *cache.Cache
	index     vector.Index
	provider  ai.Provider
	pipeline  *ingestion.Pipeline
	engine    *qa.Engine
	extractor *parser.Client
}

func (s *stack) Close() {
	if s.pipeline != nil {
		s.pipeline.Release()
	}
	if s.provider != nil {
		s.provider.Close()
	}
	if s.queryLog != nil {
		s.queryLog.Close()
	}
	if s.chunks != nil {
		s.chunks.Close()
	}
	if s.documents != nil {
		s.documents.Close()
	}
	if s.backend != nil {
		s.backend.Close()
	}
}

func buildStack(ctx context.Context, cfg *config.AppConfig) (*stack, error) {
	s := &stack{cfg: cfg}

	backend, err := badgerstore.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.backend = backend

	if s.documents, err = badgerstore.NewDocumentRepository(backend); err != nil {
		s.Close()
		return nil, err
	}
	if s.chunks, err = badgerstore.NewChunkRepository(backend); err != nil {
		s.Close()
		return nil, err
	}
	if s.queryLog, err = badgerstore.NewQueryLogRepository(backend); err != nil {
		s.Close()
		return nil, err
	}

	if s.store, err = cache.New(backend); err != nil {
		s.Close()
		return nil, err
	}

	if s.index, err = openVectorIndex(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}

	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(cfg.AI.EmbeddingHost),
		ai.WithCompletionHost(cfg.AI.CompletionHost),
		ai.WithEmbeddingModel(cfg.AI.EmbeddingModel),
		ai.WithCompletionModel(cfg.AI.CompletionModel),
		ai.WithAPIKey(cfg.AIAPIKey()),
	)
	if s.provider, err = openai.NewProvider(aiConfig); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}

	keyword, err := retrieval.NewKeywordSearcher(s.documents, s.chunks)
	if err != nil {
		s.Close()
		return nil, err
	}
	expander, err := retrieval.NewExpander(s.chunks)
	if err != nil {
		s.Close()
		return nil, err
	}
	retriever, err := retrieval.NewRetriever(s.index, keyword, expander,
		retrieval.WithResultCache(s.store),
		retrieval.WithTopK(cfg.Retrieval.TopK),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	reformulator, err := qa.NewReformulator(s.provider.Completer())
	if err != nil {
		s.Close()
		return nil, err
	}
	synthesizer, err := qa.NewSynthesizer(s.provider.Completer())
	if err != nil {
		s.Close()
		return nil, err
	}
	if s.engine, err = qa.NewEngine(reformulator, synthesizer, retriever,
		s.provider.Embedder(), s.queryLog, s.documents,
		qa.WithCache(s.store),
		qa.WithEmbeddingModel(cfg.AI.EmbeddingModel),
	); err != nil {
		s.Close()
		return nil, err
	}

	if s.pipeline, err = ingestion.NewPipeline(s.documents, s.chunks, s.index,
		s.provider.Embedder(), s.store,
		ingestion.WithPoolSize(cfg.Ingestion.PoolSize),
		ingestion.WithChunker(chunker.New(
			chunker.WithChunkSize(cfg.Chunking.ChunkSize),
			chunker.WithOverlap(cfg.Chunking.Overlap),
		)),
		ingestion.WithEmbeddingModel(cfg.AI.EmbeddingModel),
	); err != nil {
		s.Close()
		return nil, err
	}

	if s.extractor, err = parser.NewClient(cfg.Parser.BaseURL, cfg.ParserAPIKey()); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func openVectorIndex(ctx context.Context, cfg *config.AppConfig) (vector.Index, error) {
	switch cfg.Vector.Type {
	case "qdrant":
		index, err := qdrant.New(ctx, qdrant.Config{
			URL:        cfg.Vector.Qdrant.URL,
			APIKey:     cfg.QdrantAPIKey(),
			Collection: cfg.Vector.Qdrant.Collection,
			Dimension:  cfg.Vector.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
		}
		return index, nil
	default:
		slog.Warn("using in-memory vector index; embeddings are lost on restart")
		return vectormemory.New(), nil
	}
}

func serveCommand(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	s, err := buildStack(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	srv, err := server.New(s.engine, s.pipeline, s.extractor,
		s.documents, s.chunks, s.queryLog, s.index,
		server.WithMaxUploadBytes(int64(cfg.Server.MaxUploadMB)<<20),
		server.WithHistoryLimit(cfg.Server.HistoryLimit),
		server.WithCache(s.store),
	)
	if err != nil {
		return err
	}

	return srv.Run(cfg.Server.Addr)
}

func ingestCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("usage: corpusqa ingest <file>")
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	filename := filepath.Base(path)
	mimeType := mime.TypeByExtension(filepath.Ext(filename))
	if mimeType == "" {
		mimeType = "text/plain"
	}

	result, err := s.extractor.Parse(ctx, data, filename, mimeType)
	if err != nil {
		return fmt.Errorf("failed to extract text: %w", err)
	}

	title := c.String("title")
	if title == "" {
		title = filename
	}

	doc, err := s.documents.AddDocument(ctx, &core.Document{
		Title:     title,
		Filename:  filename,
		FileType:  mimeType,
		FileSize:  int64(len(data)),
		PageCount: result.Pages,
		Status:    core.DocumentStatusProcessing,
	})
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	if err := s.pipeline.Submit(ctx, doc.Id, doc.Title, result.Text); err != nil {
		if statusErr := s.documents.SetDocumentStatus(ctx, doc.Id, core.DocumentStatusFailed); statusErr != nil {
			slog.Error("failed to mark document failed", "document_id", doc.Id, "err", statusErr)
		}
		return fmt.Errorf("failed to start ingestion: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Document %d (%s) submitted, waiting for indexing...\n", doc.Id, title)

	status, err := waitForIndexing(ctx, s.documents, doc.Id, 5*time.Minute)
	if err != nil {
		return err
	}

	switch status {
	case core.DocumentStatusIndexed:
		fmt.Fprintf(os.Stderr, "Document %d indexed.\n", doc.Id)
		return nil
	default:
		return fmt.Errorf("document %d finished with status %s", doc.Id, status)
	}
}

func waitForIndexing(ctx context.Context, documents storage.DocumentRepository, id core.ID, timeout time.Duration) (core.DocumentStatus, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		doc, err := documents.GetDocument(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check document status: %w", err)
		}
		if doc.Status != core.DocumentStatusProcessing {
			return doc.Status, nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return "", fmt.Errorf("timed out waiting for document %d to finish indexing", id)
}
