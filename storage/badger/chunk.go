package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/storage"
)

// ChunkRepository implements storage.ChunkRepository using BadgerDB.
// Chunks are stored under composite keys ordered by (document ID, index),
// so prefix scans yield a document's chunks in index order.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new chunk repository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	return &ChunkRepository{backend: backend}, nil
}

// Close is a no-op. The backend is shared and stays open.
func (r *ChunkRepository) Close() error {
	return nil
}

// AddChunks upserts one or more chunks. Re-adding a (document, index)
// pair overwrites the previous record.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) error {
	now := time.Now().UTC()
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return fmt.Errorf("%w: %w", storage.ErrInvalidInput, err)
		}
		if chunk.CreatedAt.IsZero() {
			chunk.CreatedAt = now
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.DocumentId, chunk.Index)
			if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("%w: failed to store chunks: %w", storage.ErrStorageFailure, err)
	}

	return nil
}

// readChunk reads a single chunk within a transaction.
// Returns nil without error when the chunk doesn't exist.
func readChunk(tx *badger.Txn, docID core.ID, index int) (*core.Chunk, error) {
	item, err := tx.Get(makeChunkKey(docID, index))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// GetChunk retrieves a single chunk by document ID and index.
func (r *ChunkRepository) GetChunk(ctx context.Context, docID core.ID, index int) (*core.Chunk, error) {
	var chunk *core.Chunk

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		chunk, err = readChunk(tx, docID, index)
		return err
	}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read chunk: %w", storage.ErrStorageFailure, err)
	}
	if chunk == nil {
		return nil, storage.ErrNotFound
	}

	return chunk, nil
}

// GetChunks retrieves chunks of a document at the given indices.
// Missing indices are skipped without error.
func (r *ChunkRepository) GetChunks(ctx context.Context, docID core.ID, indices ...int) ([]*core.Chunk, error) {
	var chunks []*core.Chunk

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, index := range indices {
			chunk, err := readChunk(tx, docID, index)
			if err != nil {
				return err
			}
			if chunk != nil {
				chunks = append(chunks, chunk)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read chunks: %w", storage.ErrStorageFailure, err)
	}

	return chunks, nil
}

// GetChunksByDocument retrieves all chunks of a document in index order.
func (r *ChunkRepository) GetChunksByDocument(ctx context.Context, docID core.ID) ([]*core.Chunk, error) {
	var chunks []*core.Chunk

	err := r.ScanDocumentChunks(ctx, docID, func(chunk *core.Chunk) bool {
		chunks = append(chunks, chunk)
		return true
	})
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// DeleteChunksByDocument removes every chunk belonging to a document.
func (r *ChunkRepository) DeleteChunksByDocument(ctx context.Context, docID core.ID) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkKey(docID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)

		var keys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("%w: failed to delete chunks: %w", storage.ErrStorageFailure, err)
	}

	return nil
}

// ScanDocumentChunks iterates a document's chunks in index order.
func (r *ChunkRepository) ScanDocumentChunks(ctx context.Context, docID core.ID, fn func(chunk *core.Chunk) bool) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialChunkKey(docID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if !fn(chunk) {
				return nil
			}
		}
		return nil
	}, false)
	if err != nil {
		return fmt.Errorf("%w: failed to scan chunks: %w", storage.ErrStorageFailure, err)
	}

	return nil
}
