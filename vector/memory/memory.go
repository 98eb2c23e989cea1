package memory

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/vector"
)

// Index is an embedded in-memory implementation of vector.Index using
// exact cosine similarity. It backs tests and single-node deployments
// that run without a Qdrant instance.
type Index struct {
	mu      sync.RWMutex
	records map[string]*vector.Record
}

var _ vector.Index = (*Index)(nil)

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		records: make(map[string]*vector.Record),
	}
}

// Upsert writes records, replacing records with the same key.
func (idx *Index) Upsert(ctx context.Context, records ...*vector.Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, record := range records {
		idx.records[record.Key] = record
	}
	return nil
}

// Query returns up to limit records most similar to the vector.
func (idx *Index) Query(ctx context.Context, queryVector []float32, limit int) ([]*vector.Match, error) {
	if limit <= 0 {
		limit = 5
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var matches []*vector.Match
	for _, record := range idx.records {
		matches = append(matches, &vector.Match{
			DocumentID: record.DocumentID,
			ChunkIndex: record.ChunkIndex,
			Content:    record.Content,
			Title:      record.Title,
			Score:      cosineSimilarity(queryVector, record.Vector),
		})
	}

	slices.SortFunc(matches, func(a, b *vector.Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteByDocument removes every record belonging to a document.
func (idx *Index) DeleteByDocument(ctx context.Context, docID core.ID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for key, record := range idx.records {
		if record.DocumentID == docID {
			delete(idx.records, key)
		}
	}
	return nil
}

// Len returns the number of records currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths compare over the shorter prefix.
func cosineSimilarity(a, b []float32) float32 {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < minLen; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
