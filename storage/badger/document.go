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

package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/storage"
)

// DocumentRepository implements storage.DocumentRepository using BadgerDB.
type DocumentRepository struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}

	seq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create ID sequence: %w", storage.ErrStorageFailure, err)
	}

	return &DocumentRepository{
		backend: backend,
		seq:     seq,
	}, nil
}

// Close releases the ID sequence. The backend is shared and stays open.
func (r *DocumentRepository) Close() error {
	return r.seq.Release()
}

// nextID returns the next document ID, skipping 0 which is reserved
// for "unassigned".
func (r *DocumentRepository) nextID() (core.ID, error) {
	for {
		num, err := r.seq.Next()
		if err != nil {
			return 0, err
		}
		if num != 0 {
			return core.ID(num), nil
		}
	}
}

// AddDocument adds a document to storage, generating an ID when unset.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidInput, err)
	}

	if doc.Id == 0 {
		id, err := r.nextID()
		if err != nil {
			return nil, fmt.Errorf("%w: failed to generate ID: %w", storage.ErrStorageFailure, err)
		}
		doc.Id = id
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeDocumentKey(doc.Id), storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to store document: %w", storage.ErrStorageFailure, err)
	}

	return doc, nil
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var doc *core.Document

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			doc, err = storage.UnmarshalDocument(val)
			return err
		})
	}, false)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to read document: %w", storage.ErrStorageFailure, err)
	}

	return doc, nil
}

// ListDocuments retrieves all documents, ordered by ID ascending.
// Document keys use decimal IDs, so the scan collects and sorts by ID
// rather than relying on key order.
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	var docs []*core.Document

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list documents: %w", storage.ErrStorageFailure, err)
	}

	slices.SortFunc(docs, func(a, b *core.Document) int {
		return cmp.Compare(a.Id, b.Id)
	})
	return docs, nil
}

// SetDocumentStatus updates a document's lifecycle status.
func (r *DocumentRepository) SetDocumentStatus(ctx context.Context, id core.ID, status core.DocumentStatus) error {
	if err := core.ValidateDocumentStatus(status); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrInvalidInput, err)
	}

	doc, err := r.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	doc.Status = status
	doc.UpdatedAt = time.Now().UTC()

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeDocumentKey(doc.Id), storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("%w: failed to update document: %w", storage.ErrStorageFailure, err)
	}

	return nil
}

// DeleteDocument removes the document record.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id core.ID) error {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := tx.Get(makeDocumentKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		if err := tx.Delete(makeDocumentKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: failed to delete document: %w", storage.ErrStorageFailure, err)
	}

	return nil
}

// CountDocumentsByStatus counts documents currently in the given status.
func (r *DocumentRepository) CountDocumentsByStatus(ctx context.Context, status core.DocumentStatus) (int, error) {
	docs, err := r.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, doc := range docs {
		if doc.Status == status {
			count++
		}
	}
	return count, nil
}
