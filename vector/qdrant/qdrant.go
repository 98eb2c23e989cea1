package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/vector"
)

const defaultTimeout = 15 * time.Second

// Index is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Index struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	logger     *slog.Logger
}

var _ vector.Index = (*Index)(nil)

// Config holds connection parameters for a Qdrant instance.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// New creates a Qdrant-backed index and ensures the collection exists.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant URL cannot be empty")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection cannot be empty")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("qdrant vector dimension must be positive")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	idx := &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "qdrant_index"),
	}

	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return idx, nil
}

// ensureCollection creates the collection if it doesn't exist.
// Qdrant returns 200 for an existing collection with the same schema.
func (idx *Index) ensureCollection(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     idx.dimension,
			"distance": "Cosine",
		},
	}
	return idx.putJSON(ctx, fmt.Sprintf("%s/collections/%s", idx.url, idx.collection), body)
}

// pointID derives a stable numeric point ID from a record key.
// Qdrant point IDs must be unsigned integers or UUIDs; hashing the key
// keeps upserts idempotent per (document, chunk index).
func pointID(key string) uint64 {
	return uint64(core.IDFromContent(key))
}

// Upsert writes records to the collection, waiting for durability.
func (idx *Index) Upsert(ctx context.Context, records ...*vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]map[string]any, len(records))
	for i, record := range records {
		points[i] = map[string]any{
			"id":     pointID(record.Key),
			"vector": record.Vector,
			"payload": map[string]any{
				"key":         record.Key,
				"document_id": uint64(record.DocumentID),
				"chunk_index": record.ChunkIndex,
				"content":     record.Content,
				"title":       record.Title,
			},
		}
	}
	body := map[string]any{"points": points}
	return idx.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", idx.url, idx.collection), body)
}

// Query returns up to limit matches ordered by descending score.
func (idx *Index) Query(ctx context.Context, queryVector []float32, limit int) ([]*vector.Match, error) {
	if limit <= 0 {
		limit = 5
	}

	req := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := idx.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", idx.url, idx.collection), req, &resp); err != nil {
		return nil, err
	}

	matches := make([]*vector.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		match := &vector.Match{Score: r.Score}
		if v, ok := r.Payload["document_id"].(float64); ok {
			match.DocumentID = core.ID(v)
		}
		if v, ok := r.Payload["chunk_index"].(float64); ok {
			match.ChunkIndex = int(v)
		}
		if v, ok := r.Payload["content"].(string); ok {
			match.Content = v
		}
		if v, ok := r.Payload["title"].(string); ok {
			match.Title = v
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// DeleteByDocument removes every point whose payload references the document.
func (idx *Index) DeleteByDocument(ctx context.Context, docID core.ID) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "document_id",
					"match": map[string]any{"value": uint64(docID)},
				},
			},
		},
	}
	return idx.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", idx.url, idx.collection), body, nil)
}

func (idx *Index) putJSON(ctx context.Context, url string, body any) error {
	return idx.doJSON(ctx, http.MethodPut, url, body, nil)
}

func (idx *Index) postJSON(ctx context.Context, url string, body any, out any) error {
	return idx.doJSON(ctx, http.MethodPost, url, body, out)
}

func (idx *Index) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idx.apiKey != "" {
		req.Header.Set("api-key", idx.apiKey)
	}

	resp, err := idx.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return fmt.Errorf("%w: %w", vector.ErrUnavailable, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
