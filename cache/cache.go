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

package cache

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/veritium/corpusqa/core"
	badgerstore "github.com/veritium/corpusqa/storage/badger"
	"github.com/veritium/corpusqa/vector"
)

const (
	// DefaultEmbeddingTTL bounds how long an embedding stays cached.
	DefaultEmbeddingTTL = 24 * time.Hour
	// DefaultSearchTTL bounds how long a search result set stays cached.
	// Corpus changes invalidate earlier, via the version marker.
	DefaultSearchTTL = time.Hour

	namespaceEmbedding = "emb"
	namespaceSearch    = "srch"

	versionKey = "cache:version"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corpusqa_cache_lookups_total",
		Help: "Cache lookups by namespace and outcome.",
	}, []string{"namespace", "outcome"})
)

// Cache is a content-addressed cache for embedding vectors and vector
// search results, backed by BadgerDB entries with TTL. The cache is
// strictly advisory: storage errors degrade to misses and are never
// surfaced to callers.
//
// Search results are invalidated corpus-wide by bumping a version
// marker that participates in every search key. Embeddings are pure
// functions of their text and never need invalidation.
type Cache struct {
	backend      *badgerstore.Backend
	logger       *slog.Logger
	embeddingTTL time.Duration
	searchTTL    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache) error

// WithEmbeddingTTL overrides the embedding TTL.
func WithEmbeddingTTL(ttl time.Duration) Option {
	return func(c *Cache) error {
		if ttl <= 0 {
			return errors.New("embedding TTL must be positive")
		}
		c.embeddingTTL = ttl
		return nil
	}
}

// WithSearchTTL overrides the search result TTL.
func WithSearchTTL(ttl time.Duration) Option {
	return func(c *Cache) error {
		if ttl <= 0 {
			return errors.New("search TTL must be positive")
		}
		c.searchTTL = ttl
		return nil
	}
}

// New creates a cache on the given backend.
func New(backend *badgerstore.Backend, opts ...Option) (*Cache, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}

	c := &Cache{
		backend:      backend,
		logger:       slog.Default().With("component", "cache"),
		embeddingTTL: DefaultEmbeddingTTL,
		searchTTL:    DefaultSearchTTL,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// contentKey derives the storage key for a (namespace, scope, text) triple.
// The text length suffix disambiguates the unlikely hash collision between
// texts of different lengths.
func contentKey(namespace, scope, text string) []byte {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return []byte(fmt.Sprintf("cache:%s:%s:%d", namespace, hex.EncodeToString(sum), len(text)))
}

func (c *Cache) miss(namespace string) {
	c.misses.Add(1)
	cacheLookups.WithLabelValues(namespace, "miss").Inc()
}

func (c *Cache) hit(namespace string) {
	c.hits.Add(1)
	cacheLookups.WithLabelValues(namespace, "hit").Inc()
}

// GetEmbedding looks up a cached embedding for (model, text). The second
// return value reports whether the lookup hit; expired entries and
// storage errors both miss.
func (c *Cache) GetEmbedding(model, text string) ([]float32, bool) {
	data, err := c.backend.Get(contentKey(namespaceEmbedding, model, text))
	if err != nil {
		c.miss(namespaceEmbedding)
		return nil, false
	}

	embedding, _, err := core.VectorMUS.Unmarshal(data)
	if err != nil {
		// Corrupt entry. Treat as miss; TTL expiry will evict it.
		c.logger.Warn("discarding undecodable embedding entry", "error", err)
		c.miss(namespaceEmbedding)
		return nil, false
	}

	c.hit(namespaceEmbedding)
	return embedding, true
}

// PutEmbedding stores an embedding. Failures are logged and swallowed;
// a failed put only costs a future recompute.
func (c *Cache) PutEmbedding(model, text string, embedding []float32) {
	if len(embedding) == 0 {
		return
	}

	buf := make([]byte, core.VectorMUS.Size(embedding))
	core.VectorMUS.Marshal(embedding, buf)

	if err := c.backend.SetWithTTL(contentKey(namespaceEmbedding, model, text), buf, c.embeddingTTL); err != nil {
		c.logger.Warn("failed to store embedding entry", "error", err)
	}
}

// GetSearchResults looks up cached vector matches for a query string
// under the current corpus version.
func (c *Cache) GetSearchResults(query string) ([]*vector.Match, bool) {
	data, err := c.backend.Get(contentKey(namespaceSearch, c.versionScope(), query))
	if err != nil {
		c.miss(namespaceSearch)
		return nil, false
	}

	var matches []*vector.Match
	if err := json.Unmarshal(data, &matches); err != nil {
		c.logger.Warn("discarding undecodable search entry", "error", err)
		c.miss(namespaceSearch)
		return nil, false
	}

	c.hit(namespaceSearch)
	return matches, true
}

// PutSearchResults stores vector matches for a query string under the
// current corpus version.
func (c *Cache) PutSearchResults(query string, matches []*vector.Match) {
	data, err := json.Marshal(matches)
	if err != nil {
		c.logger.Warn("failed to encode search entry", "error", err)
		return
	}

	if err := c.backend.SetWithTTL(contentKey(namespaceSearch, c.versionScope(), query), data, c.searchTTL); err != nil {
		c.logger.Warn("failed to store search entry", "error", err)
	}
}

// Version returns the current corpus version marker.
func (c *Cache) Version() uint64 {
	data, err := c.backend.Get([]byte(versionKey))
	if err != nil || len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}

// BumpVersion advances the corpus version, orphaning every cached search
// result at once. Stale entries expire via TTL rather than point deletes.
// The increment is transactional: overlapping bumps (concurrent
// ingestions, deletes) each land on a distinct version.
func (c *Cache) BumpVersion() {
	if _, err := c.backend.Increment([]byte(versionKey)); err != nil {
		c.logger.Warn("failed to bump cache version", "error", err)
	}
}

func (c *Cache) versionScope() string {
	return fmt.Sprintf("v%d", c.Version())
}

// Stats reports lifetime hit and miss counts for this cache instance.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
