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


package core

import "errors"

// Domain validation errors
var (
	// ErrEmptyContent indicates that document or chunk text is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidChunkIndex indicates a negative chunk index.
	ErrInvalidChunkIndex = errors.New("chunk index cannot be negative")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyTitle indicates the document Title field is empty.
	ErrEmptyTitle = errors.New("document title cannot be empty")

	// ErrInvalidStatus indicates an unknown DocumentStatus value.
	ErrInvalidStatus = errors.New("invalid document status")

	// ErrEmptyQuestion indicates a query with no question text.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrInvalidRating indicates a feedback rating outside {+1, -1}.
	ErrInvalidRating = errors.New("rating must be 1 or -1")
)
