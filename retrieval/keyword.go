package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/storage"
)

const (
	// maxKeywordTokens bounds how many query tokens participate in matching.
	maxKeywordTokens = 5
	// minTokenLength filters out articles, pronouns and other short noise.
	minTokenLength = 3
	// maxKeywordResults bounds how many chunks the keyword path returns.
	maxKeywordResults = 5
)

// KeywordSearcher finds chunks by literal substring match against the
// query's tokens. It is the fallback path when vector similarity finds
// nothing, so it favors recall over ranking: any chunk containing any
// token matches, and matches carry no score.
type KeywordSearcher struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
	logger    *slog.Logger
}

// NewKeywordSearcher creates a keyword searcher over the given repositories.
func NewKeywordSearcher(documents storage.DocumentRepository, chunks storage.ChunkRepository) (*KeywordSearcher, error) {
	if documents == nil {
		return nil, errors.New("document repository cannot be nil")
	}
	if chunks == nil {
		return nil, errors.New("chunk repository cannot be nil")
	}

	return &KeywordSearcher{
		documents: documents,
		chunks:    chunks,
		logger:    slog.Default().With("component", "keyword_search"),
	}, nil
}

// extractTokens lowercases the query and keeps the first maxKeywordTokens
// tokens longer than minTokenLength-1 characters.
func extractTokens(query string) []string {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		token := strings.Trim(field, `.,;:!?"'()[]{}`)
		if len(token) < minTokenLength {
			continue
		}
		tokens = append(tokens, token)
		if len(tokens) == maxKeywordTokens {
			break
		}
	}
	return tokens
}

// Search scans chunks of indexed documents for query tokens.
// A query with no usable tokens yields zero results and a nil error.
func (s *KeywordSearcher) Search(ctx context.Context, query string) ([]*core.RetrievalCandidate, error) {
	tokens := extractTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	docs, err := s.documents.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	var candidates []*core.RetrievalCandidate
	for _, doc := range docs {
		if doc.Status != core.DocumentStatusIndexed {
			continue
		}
		if len(candidates) >= maxKeywordResults {
			break
		}

		title := doc.Title
		err := s.chunks.ScanDocumentChunks(ctx, doc.Id, func(chunk *core.Chunk) bool {
			content := strings.ToLower(chunk.Content)
			for _, token := range tokens {
				if strings.Contains(content, token) {
					candidates = append(candidates, &core.RetrievalCandidate{
						Chunk:   chunk,
						Title:   title,
						Source:  core.SourceKeyword,
						Primary: true,
					})
					break
				}
			}
			return len(candidates) < maxKeywordResults
		})
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
	}

	s.logger.Debug("keyword search finished", "tokens", tokens, "matches", len(candidates))
	return candidates, nil
}
