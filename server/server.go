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

// Package server exposes the question answering service over HTTP.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veritium/corpusqa/cache"
	"github.com/veritium/corpusqa/ingestion"
	"github.com/veritium/corpusqa/parser"
	"github.com/veritium/corpusqa/qa"
	"github.com/veritium/corpusqa/storage"
	"github.com/veritium/corpusqa/vector"
)

const (
	defaultMaxUploadBytes = 10 << 20
	defaultHistoryLimit   = 50
)

// Server wires the HTTP API to the query engine, ingestion pipeline,
// and repositories. Authentication is an external concern: when a
// trusted identity header is configured, its value is taken as-is.
type Server struct {
	engine    *qa.Engine
	pipeline  *ingestion.Pipeline
	extractor parser.Extractor
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	queryLog  storage.QueryLogRepository
	index     vector.Index
	cache     *cache.Cache
	logger    *slog.Logger

	maxUploadBytes int64
	historyLimit   int
}

// Option configures a Server.
type Option func(*Server) error

// WithMaxUploadBytes overrides the upload size cap.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) error {
		if n <= 0 {
			return errors.New("upload cap must be positive")
		}
		s.maxUploadBytes = n
		return nil
	}
}

// WithHistoryLimit overrides the query history page size.
func WithHistoryLimit(n int) Option {
	return func(s *Server) error {
		if n <= 0 {
			return errors.New("history limit must be positive")
		}
		s.historyLimit = n
		return nil
	}
}

// WithCache enables cache invalidation on document deletion.
func WithCache(c *cache.Cache) Option {
	return func(s *Server) error {
		s.cache = c
		return nil
	}
}

// New creates a Server.
func New(
	engine *qa.Engine,
	pipeline *ingestion.Pipeline,
	extractor parser.Extractor,
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	queryLog storage.QueryLogRepository,
	index vector.Index,
	opts ...Option,
) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if pipeline == nil {
		return nil, errors.New("pipeline cannot be nil")
	}
	if extractor == nil {
		return nil, errors.New("extractor cannot be nil")
	}
	if documents == nil {
		return nil, errors.New("document repository cannot be nil")
	}
	if chunks == nil {
		return nil, errors.New("chunk repository cannot be nil")
	}
	if queryLog == nil {
		return nil, errors.New("query log repository cannot be nil")
	}
	if index == nil {
		return nil, errors.New("vector index cannot be nil")
	}

	s := &Server{
		engine:         engine,
		pipeline:       pipeline,
		extractor:      extractor,
		documents:      documents,
		chunks:         chunks,
		queryLog:       queryLog,
		index:          index,
		logger:         slog.Default().With("component", "http"),
		maxUploadBytes: defaultMaxUploadBytes,
		historyLimit:   defaultHistoryLimit,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api")
	{
		api.POST("/query", s.handleQuery)
		api.GET("/query/history", s.handleQueryHistory)
		api.POST("/query/feedback", s.handleQueryFeedback)
		api.GET("/documents", s.handleListDocuments)
		api.GET("/documents/stats", s.handleDocumentStats)
		api.POST("/documents/upload", s.handleUpload)
		api.DELETE("/documents/:id", s.handleDeleteDocument)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

// requestLogger logs one line per request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status())
	}
}

// Run starts the HTTP server on addr and blocks.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.Router().Run(addr)
}
