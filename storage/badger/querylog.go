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
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/storage"
)

// QueryLogRepository implements storage.QueryLogRepository using BadgerDB.
// Records are stored by ID with two composite indexes: a recency index
// keyed by timestamp and a per-session index keyed by (session, timestamp).
type QueryLogRepository struct {
	backend *Backend
}

var _ storage.QueryLogRepository = (*QueryLogRepository)(nil)

// NewQueryLogRepository creates a new query log repository.
func NewQueryLogRepository(backend *Backend) (*QueryLogRepository, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	return &QueryLogRepository{backend: backend}, nil
}

// Close is a no-op. The backend is shared and stays open.
func (r *QueryLogRepository) Close() error {
	return nil
}

// AddQueryRecord persists a query outcome and maintains the indexes.
func (r *QueryLogRepository) AddQueryRecord(ctx context.Context, record *core.QueryRecord) (*core.QueryRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: record cannot be nil", storage.ErrInvalidInput)
	}
	if record.Question == "" {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidInput, core.ErrEmptyQuestion)
	}

	if record.Id == "" {
		record.Id = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	micros := record.CreatedAt.UnixMicro()
	idBytes := []byte(record.Id)

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeQueryRecordKey(record.Id), storage.MarshalQueryRecord(record)); err != nil {
			return err
		}
		if err := tx.Set(makeQueryTimeKey(micros, record.Id), idBytes); err != nil {
			return err
		}
		if record.SessionId != "" {
			if err := tx.Set(makeQuerySessionKey(record.SessionId, micros, record.Id), idBytes); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to store query record: %w", storage.ErrStorageFailure, err)
	}

	return record, nil
}

// GetQueryRecord retrieves a single query record by ID.
func (r *QueryLogRepository) GetQueryRecord(ctx context.Context, id string) (*core.QueryRecord, error) {
	var record *core.QueryRecord

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		record, err = readQueryRecord(tx, id)
		return err
	}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read query record: %w", storage.ErrStorageFailure, err)
	}
	if record == nil {
		return nil, storage.ErrNotFound
	}

	return record, nil
}

// readQueryRecord reads a single record within a transaction.
// Returns nil without error when the record doesn't exist.
func readQueryRecord(tx *badger.Txn, id string) (*core.QueryRecord, error) {
	item, err := tx.Get(makeQueryRecordKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.QueryRecord
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalQueryRecord(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// collectIndexedRecords walks an index prefix newest-first and resolves
// record IDs to records, skipping dangling index entries. The first
// offset kept records are discarded for paging.
func (r *QueryLogRepository) collectIndexedRecords(prefix []byte, limit, offset int, keep func(*core.QueryRecord) bool) ([]*core.QueryRecord, error) {
	var records []*core.QueryRecord

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the highest possible timestamp so the reverse
		// iterator starts at the newest entry.
		seekKey := make([]byte, len(prefix)+8)
		copy(seekKey, prefix)
		for i := len(prefix); i < len(seekKey); i++ {
			seekKey[i] = 0xFF
		}

		for iter.Seek(seekKey); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Item().Key(), prefix) {
				break
			}

			var id string
			err := iter.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			})
			if err != nil {
				return err
			}

			record, err := readQueryRecord(tx, id)
			if err != nil {
				return err
			}
			if record == nil || (keep != nil && !keep(record)) {
				continue
			}
			if offset > 0 {
				offset--
				continue
			}

			records = append(records, record)
			if limit > 0 && len(records) >= limit {
				break
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	return records, nil
}

// GetRecentQueryRecords retrieves up to limit query records newest first,
// skipping the offset most recent ones.
func (r *QueryLogRepository) GetRecentQueryRecords(ctx context.Context, limit, offset int) ([]*core.QueryRecord, error) {
	records, err := r.collectIndexedRecords([]byte(queryTimePrefix+":"), limit, offset, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read recent query records: %w", storage.ErrStorageFailure, err)
	}
	return records, nil
}

// SetQueryFeedback records a rating against an existing query. A second
// submission for the same query replaces the first.
func (r *QueryLogRepository) SetQueryFeedback(ctx context.Context, feedback *core.QueryFeedback) error {
	if feedback == nil || feedback.QueryId == "" {
		return fmt.Errorf("%w: feedback needs a query id", storage.ErrInvalidInput)
	}
	if feedback.Rating != 1 && feedback.Rating != -1 {
		return fmt.Errorf("%w: %w", storage.ErrInvalidInput, core.ErrInvalidRating)
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		record, err := readQueryRecord(tx, feedback.QueryId)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		if err := tx.Set(makeQueryFeedbackKey(feedback.QueryId), storage.MarshalQueryFeedback(feedback)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: failed to store query feedback: %w", storage.ErrStorageFailure, err)
	}
	return nil
}

// GetQueryFeedback retrieves the feedback recorded for a query.
func (r *QueryLogRepository) GetQueryFeedback(ctx context.Context, queryID string) (*core.QueryFeedback, error) {
	var feedback *core.QueryFeedback

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeQueryFeedbackKey(queryID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			feedback, err = storage.UnmarshalQueryFeedback(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read query feedback: %w", storage.ErrStorageFailure, err)
	}
	if feedback == nil {
		return nil, storage.ErrNotFound
	}

	return feedback, nil
}

// GetSessionTurns retrieves the most recent successful question/answer
// pairs of a session, oldest first.
func (r *QueryLogRepository) GetSessionTurns(ctx context.Context, sessionID string, limit int) ([]core.ConversationTurn, error) {
	if sessionID == "" {
		return nil, nil
	}

	records, err := r.collectIndexedRecords(makePartialQuerySessionKey(sessionID), limit, 0, func(record *core.QueryRecord) bool {
		return record.Status == core.QueryStatusSuccess
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read session records: %w", storage.ErrStorageFailure, err)
	}

	slices.Reverse(records)

	turns := make([]core.ConversationTurn, 0, len(records))
	for _, record := range records {
		turns = append(turns, core.ConversationTurn{
			Question: record.Question,
			Answer:   record.Answer,
		})
	}
	return turns, nil
}
