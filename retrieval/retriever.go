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

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/veritium/corpusqa/cache"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/vector"
)

const (
	// DefaultTopK is how many vector matches are requested per query.
	DefaultTopK = 5
	// DefaultMaxCandidates caps the vector/keyword union before expansion.
	DefaultMaxCandidates = 5
	// DefaultMaxPassages caps the merged passages handed to synthesis.
	DefaultMaxPassages = 5
)

// ErrNoEvidence reports that neither retrieval path found any chunk for
// the query. It marks a normal outcome, not a failure; callers render it
// as guidance rather than an error.
var ErrNoEvidence = errors.New("no supporting passages found")

// Retriever combines vector similarity and keyword search, then widens
// and merges the winners into contiguous passages.
type Retriever struct {
	index    vector.Index
	keyword  *KeywordSearcher
	expander *Expander
	results  *cache.Cache
	logger   *slog.Logger

	topK          int
	maxCandidates int
	maxPassages   int
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithResultCache enables caching of vector search results per query.
func WithResultCache(results *cache.Cache) Option {
	return func(r *Retriever) error {
		if results == nil {
			return errors.New("result cache cannot be nil")
		}
		r.results = results
		return nil
	}
}

// WithTopK overrides how many vector matches are requested.
func WithTopK(topK int) Option {
	return func(r *Retriever) error {
		if topK <= 0 {
			return errors.New("topK must be positive")
		}
		r.topK = topK
		return nil
	}
}

// NewRetriever creates a hybrid retriever.
func NewRetriever(index vector.Index, keyword *KeywordSearcher, expander *Expander, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, errors.New("vector index cannot be nil")
	}
	if keyword == nil {
		return nil, errors.New("keyword searcher cannot be nil")
	}
	if expander == nil {
		return nil, errors.New("expander cannot be nil")
	}

	r := &Retriever{
		index:         index,
		keyword:       keyword,
		expander:      expander,
		logger:        slog.Default().With("component", "retriever"),
		topK:          DefaultTopK,
		maxCandidates: DefaultMaxCandidates,
		maxPassages:   DefaultMaxPassages,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// searchVector queries the index, consulting the result cache first.
// An unreachable index degrades to zero matches so the keyword path can
// still answer.
func (r *Retriever) searchVector(ctx context.Context, query string, embedding []float32) ([]*vector.Match, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	if r.results != nil {
		if matches, ok := r.results.GetSearchResults(query); ok {
			return matches, nil
		}
	}

	matches, err := r.index.Query(ctx, embedding, r.topK)
	if err != nil {
		if errors.Is(err, vector.ErrUnavailable) {
			r.logger.Warn("vector index unavailable, degrading to keyword search", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if r.results != nil {
		r.results.PutSearchResults(query, matches)
	}
	return matches, nil
}

// Retrieve runs both search paths concurrently and returns merged
// passages ordered primaries-first. Returns ErrNoEvidence when the
// candidate union is empty.
func (r *Retriever) Retrieve(ctx context.Context, query string, embedding []float32) ([]*core.MergedPassage, error) {
	var (
		vectorMatches []*vector.Match
		keywordHits   []*core.RetrievalCandidate
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		vectorMatches, err = r.searchVector(groupCtx, query, embedding)
		return err
	})
	group.Go(func() error {
		var err error
		keywordHits, err = r.keyword.Search(groupCtx, query)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Union keyed by chunk identity. Vector matches enter first, so a
	// chunk found by both paths keeps its similarity score.
	seen := make(map[core.ChunkRef]bool)
	var primaries []*core.RetrievalCandidate

	for _, match := range vectorMatches {
		ref := core.ChunkRef{DocumentId: match.DocumentID, Index: match.ChunkIndex}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		primaries = append(primaries, &core.RetrievalCandidate{
			Chunk: &core.Chunk{
				DocumentId: match.DocumentID,
				Index:      match.ChunkIndex,
				Content:    match.Content,
			},
			Title:   match.Title,
			Score:   match.Score,
			Source:  core.SourceVector,
			Primary: true,
		})
	}

	for _, hit := range keywordHits {
		ref := hit.Chunk.Ref()
		if seen[ref] {
			continue
		}
		seen[ref] = true
		primaries = append(primaries, hit)
	}

	if len(primaries) == 0 {
		return nil, ErrNoEvidence
	}
	if len(primaries) > r.maxCandidates {
		primaries = primaries[:r.maxCandidates]
	}

	expanded, err := r.expander.Expand(ctx, primaries)
	if err != nil {
		return nil, err
	}

	passages := Merge(expanded)
	if len(passages) > r.maxPassages {
		passages = passages[:r.maxPassages]
	}

	r.logger.Debug("retrieval finished",
		"vector_matches", len(vectorMatches),
		"keyword_matches", len(keywordHits),
		"candidates", len(primaries),
		"passages", len(passages))

	return passages, nil
}
