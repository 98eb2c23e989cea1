package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/veritium/corpusqa/core"
)

// Key prefixes for different data types
const (
	documentRecordPrefix = "docrec"
	documentIDSeq        = "docrecseq"
	chunkRecordPrefix    = "chkrec"
	queryRecordPrefix    = "qryrec"
	queryTimePrefix      = "qrytime"
	querySessionPrefix   = "qrysess"
	queryFeedbackPrefix  = "qryfb"
)

// makeDocumentKey generates a key for a document record by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentRecordPrefix, id))
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix:documentID:index
func makeChunkKey(docID core.ID, index int) []byte {
	prefix := chunkRecordPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 16 // 8 bytes for document ID + 8 bytes for index
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort follows chunk index
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(index))
	return buf
}

// makePartialChunkKey generates a partial key for scanning a document's chunks.
// Format: prefix:documentID
func makePartialChunkKey(docID core.ID) []byte {
	prefix := chunkRecordPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 // 8 bytes for document ID
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	return buf
}

// makeQueryRecordKey generates a key for a query record by ID.
func makeQueryRecordKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", queryRecordPrefix, id))
}

// makeQueryFeedbackKey generates a key for the feedback attached to a query.
func makeQueryFeedbackKey(queryID string) []byte {
	return []byte(fmt.Sprintf("%s:%s", queryFeedbackPrefix, queryID))
}

// makeQueryTimeKey generates a composite key for the recency index.
// Format: prefix:timestamp:id
func makeQueryTimeKey(timestampMicros int64, id string) []byte {
	prefix := queryTimePrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 + len(id)
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort follows time
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestampMicros))
	offset += 8
	copy(buf[offset:], []byte(id))
	return buf
}

// makeQuerySessionKey generates a composite key for the session index.
// Format: prefix:sessionID:timestamp:id
func makeQuerySessionKey(sessionID string, timestampMicros int64, id string) []byte {
	prefix := querySessionPrefix + ":" + sessionID + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 + len(id)
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestampMicros))
	offset += 8
	copy(buf[offset:], []byte(id))
	return buf
}

// makePartialQuerySessionKey generates a partial key for session scans.
// Format: prefix:sessionID
func makePartialQuerySessionKey(sessionID string) []byte {
	return []byte(querySessionPrefix + ":" + sessionID + ":")
}
