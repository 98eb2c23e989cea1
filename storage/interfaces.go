package storage

import (
	"context"

	"github.com/veritium/corpusqa/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close closes the repository and releases resources.
	Close() error
}

// DocumentRepository provides operations for managing document records.
type DocumentRepository interface {
	Repository

	// AddDocument adds a document to storage.
	// For documents with ID=0, generates a new ID from sequence.
	// Sets CreatedAt/UpdatedAt timestamps if not already set.
	// Returns the document with the generated ID populated.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments retrieves all documents, ordered by ID ascending.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// SetDocumentStatus flips a document's lifecycle status and refreshes
	// its UpdatedAt timestamp. Returns ErrNotFound if the document
	// doesn't exist.
	SetDocumentStatus(ctx context.Context, id core.ID, status core.DocumentStatus) error

	// DeleteDocument removes the document record.
	// Chunk cascade is the caller's responsibility (vector index and
	// cache entries live outside this repository).
	DeleteDocument(ctx context.Context, id core.ID) error

	// CountDocumentsByStatus counts documents currently in the given status.
	CountDocumentsByStatus(ctx context.Context, status core.DocumentStatus) (int, error)
}

// ChunkRepository provides operations for managing document chunks.
// Chunks are keyed by (document ID, chunk index); writes are idempotent
// for the same key.
type ChunkRepository interface {
	Repository

	// AddChunks upserts one or more chunks. Sets CreatedAt if not already set.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) error

	// GetChunk retrieves a single chunk by document ID and index.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, docID core.ID, index int) (*core.Chunk, error)

	// GetChunks retrieves chunks of a document at the given indices.
	// Returns only the chunks that exist (no error for missing indices).
	GetChunks(ctx context.Context, docID core.ID, indices ...int) ([]*core.Chunk, error)

	// GetChunksByDocument retrieves all chunks of a document in index order.
	GetChunksByDocument(ctx context.Context, docID core.ID) ([]*core.Chunk, error)

	// DeleteChunksByDocument removes every chunk belonging to a document.
	DeleteChunksByDocument(ctx context.Context, docID core.ID) error

	// ScanDocumentChunks iterates a document's chunks in index order,
	// calling fn for each. Iteration stops when fn returns false.
	ScanDocumentChunks(ctx context.Context, docID core.ID, fn func(chunk *core.Chunk) bool) error
}

// QueryLogRepository records terminal query outcomes and supplies prior
// conversation turns for follow-up questions.
type QueryLogRepository interface {
	Repository

	// AddQueryRecord persists a query outcome. Generates the record ID if
	// empty and sets CreatedAt if not already set.
	AddQueryRecord(ctx context.Context, record *core.QueryRecord) (*core.QueryRecord, error)

	// GetQueryRecord retrieves a single query record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetQueryRecord(ctx context.Context, id string) (*core.QueryRecord, error)

	// GetRecentQueryRecords retrieves up to limit query records newest
	// first, skipping the offset most recent ones for paging.
	GetRecentQueryRecords(ctx context.Context, limit, offset int) ([]*core.QueryRecord, error)

	// GetSessionTurns retrieves the most recent successful question/answer
	// pairs of a session, oldest first, for conversation context.
	GetSessionTurns(ctx context.Context, sessionID string, limit int) ([]core.ConversationTurn, error)

	// SetQueryFeedback records a rating against an existing query,
	// replacing any earlier feedback. Returns ErrNotFound when the query
	// doesn't exist and ErrInvalidInput for a rating outside {+1, -1}.
	SetQueryFeedback(ctx context.Context, feedback *core.QueryFeedback) error

	// GetQueryFeedback retrieves the feedback recorded for a query.
	// Returns ErrNotFound when none exists.
	GetQueryFeedback(ctx context.Context, queryID string) (*core.QueryFeedback, error)
}
