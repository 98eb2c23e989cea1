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

// Package vector defines the similarity index abstraction used for
// retrieval. Implementations live in subpackages: qdrant for the REST
// backend and memory for the embedded one.
package vector

import (
	"context"
	"errors"

	"github.com/veritium/corpusqa/core"
)

// ErrUnavailable is returned when the index backend cannot be reached.
var ErrUnavailable = errors.New("vector index unavailable")

// Record is one indexed chunk with its embedding and payload metadata.
// Key is the stable external identifier "documentID:chunkIndex"; writing
// the same key again replaces the previous record.
type Record struct {
	Key        string
	Vector     []float32
	DocumentID core.ID
	ChunkIndex int
	Content    string
	Title      string
}

// Match is one similarity hit with its payload metadata.
type Match struct {
	DocumentID core.ID
	ChunkIndex int
	Content    string
	Title      string
	Score      float32
}

// Index stores chunk embeddings and answers nearest-neighbor queries.
type Index interface {
	// Upsert writes records to the index, replacing records with the
	// same key.
	Upsert(ctx context.Context, records ...*Record) error

	// Query returns up to limit records most similar to the vector,
	// ordered by descending score.
	Query(ctx context.Context, vector []float32, limit int) ([]*Match, error)

	// DeleteByDocument removes every record belonging to a document.
	DeleteByDocument(ctx context.Context, docID core.ID) error
}
