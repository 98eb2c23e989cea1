package core

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// DocumentStatus tracks a document through its ingestion lifecycle.
type DocumentStatus string

const (
	// DocumentStatusProcessing means the document is uploaded but not yet indexed.
	DocumentStatusProcessing DocumentStatus = "processing"
	// DocumentStatusIndexed means the document's chunks are embedded and queryable.
	DocumentStatusIndexed DocumentStatus = "indexed"
	// DocumentStatusFailed means every chunk of the document failed to index.
	DocumentStatusFailed DocumentStatus = "failed"
)

// Document represents an uploaded document in the corpus.
// Status is mutated only by the ingestion pipeline.
type Document struct {
	Id        ID
	Title     string
	Filename  string
	FileType  string
	FileSize  int64
	PageCount int
	OwnerId   ID
	Status    DocumentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is a size-bounded segment of a document's extracted text.
// Indices are 0-based, dense and contiguous within a document.
type Chunk struct {
	DocumentId ID
	Index      int
	Content    string
	CreatedAt  time.Time
}

// Key returns the stable external identifier used as the vector-index key.
// Format: "documentID:chunkIndex".
func (c *Chunk) Key() string {
	return fmt.Sprintf("%d:%d", c.DocumentId, c.Index)
}

// Ref returns the chunk's identity pair.
func (c *Chunk) Ref() ChunkRef {
	return ChunkRef{DocumentId: c.DocumentId, Index: c.Index}
}

// ChunkRef identifies a chunk by document and index without carrying content.
type ChunkRef struct {
	DocumentId ID
	Index      int
}

// CandidateSource identifies which retrieval path produced a candidate.
type CandidateSource int

const (
	// SourceVector marks a candidate found by vector similarity search.
	SourceVector CandidateSource = iota + 1
	// SourceKeyword marks a candidate found by keyword fallback search.
	SourceKeyword
)

// RetrievalCandidate is a query-scoped record of a matched or neighboring chunk.
// It exists only for the duration of one query execution.
type RetrievalCandidate struct {
	Chunk   *Chunk
	Title   string
	Score   float32
	Source  CandidateSource
	Primary bool // directly matched, as opposed to fetched as a neighbor
}

// MergedPassage groups a run of contiguous chunks into a single text block.
// Query-scoped; discarded after the response is produced.
type MergedPassage struct {
	DocumentId ID
	Title      string
	FirstIndex int
	LastIndex  int
	Content    string
	Primary    bool // true if any member chunk was a primary match
}

// ConversationTurn is a prior question/answer pair supplied by the query history.
// Read-only to the retrieval core.
type ConversationTurn struct {
	Question string
	Answer   string
}

// QueryStatus records the terminal outcome of a query.
type QueryStatus string

const (
	// QueryStatusSuccess marks a query that produced an answer, including
	// the no-evidence outcome.
	QueryStatusSuccess QueryStatus = "success"
	// QueryStatusFailed marks a query that terminated with an error.
	QueryStatusFailed QueryStatus = "failed"
)

// Source describes one cited passage in a generated answer.
type Source struct {
	SourceNumber    int
	DocumentId      ID
	Title           string
	FirstChunkIndex int
	LastChunkIndex  int
	Excerpt         string
}

// QueryRecord is the persisted log entry for one query, successful or not.
// Failed queries carry an empty answer.
type QueryRecord struct {
	Id             string
	SessionId      string
	Question       string
	Answer         string
	Sources        []Source
	Status         QueryStatus
	ResponseTimeMs int64
	CreatedAt      time.Time
}

// QueryFeedback is a user rating attached to an answered query.
// Rating is +1 or -1; the comment is optional. A query carries at most
// one feedback entry and resubmission replaces it.
type QueryFeedback struct {
	QueryId   string
	Rating    int
	Comment   string
	CreatedAt time.Time
}
