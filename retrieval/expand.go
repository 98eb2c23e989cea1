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

package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/veritium/corpusqa/core"
	"github.com/veritium/corpusqa/storage"
)

// Expander widens primary matches with their immediate neighbors and
// merges contiguous runs into single passages. A chunk boundary often
// splits a sentence or a clause from its antecedent; pulling in the
// chunks on either side restores enough context for synthesis.
type Expander struct {
	chunks storage.ChunkRepository
}

// NewExpander creates an expander over the given chunk repository.
func NewExpander(chunks storage.ChunkRepository) (*Expander, error) {
	if chunks == nil {
		return nil, errors.New("chunk repository cannot be nil")
	}
	return &Expander{chunks: chunks}, nil
}

// Expand returns, for each primary candidate, the set
// {max(0, idx-1), idx, idx+1} intersected with the chunks that exist,
// deduplicated by chunk identity. Members at a primary index keep their
// primary flag; pure neighbors are non-primary.
func (e *Expander) Expand(ctx context.Context, primaries []*core.RetrievalCandidate) ([]*core.RetrievalCandidate, error) {
	if len(primaries) == 0 {
		return nil, nil
	}

	// Wanted indices per document, plus primary markers and titles.
	wanted := make(map[core.ID]map[int]bool)
	primaryAt := make(map[core.ID]map[int]bool)
	titles := make(map[core.ID]string)

	for _, candidate := range primaries {
		docID := candidate.Chunk.DocumentId
		index := candidate.Chunk.Index

		if wanted[docID] == nil {
			wanted[docID] = make(map[int]bool)
			primaryAt[docID] = make(map[int]bool)
		}
		if index > 0 {
			wanted[docID][index-1] = true
		}
		wanted[docID][index] = true
		wanted[docID][index+1] = true
		primaryAt[docID][index] = true
		if candidate.Title != "" {
			titles[docID] = candidate.Title
		}
	}

	var expanded []*core.RetrievalCandidate
	for docID, indexSet := range wanted {
		indices := make([]int, 0, len(indexSet))
		for index := range indexSet {
			indices = append(indices, index)
		}
		slices.Sort(indices)

		chunks, err := e.chunks.GetChunks(ctx, docID, indices...)
		if err != nil {
			return nil, fmt.Errorf("context expansion: %w", err)
		}

		for _, chunk := range chunks {
			expanded = append(expanded, &core.RetrievalCandidate{
				Chunk:   chunk,
				Title:   titles[docID],
				Primary: primaryAt[docID][chunk.Index],
			})
		}
	}

	return expanded, nil
}

// Merge groups candidates by document, splits each document's indices
// into maximal consecutive runs, and merges every run into one passage
// with member contents joined by a blank line. Passages containing a
// primary match come first; within each group, document ID ascending
// then first index ascending.
func Merge(candidates []*core.RetrievalCandidate) []*core.MergedPassage {
	if len(candidates) == 0 {
		return nil
	}

	byDoc := make(map[core.ID][]*core.RetrievalCandidate)
	for _, candidate := range candidates {
		docID := candidate.Chunk.DocumentId
		byDoc[docID] = append(byDoc[docID], candidate)
	}

	var passages []*core.MergedPassage
	for docID, docCandidates := range byDoc {
		slices.SortFunc(docCandidates, func(a, b *core.RetrievalCandidate) int {
			return cmp.Compare(a.Chunk.Index, b.Chunk.Index)
		})

		runStart := 0
		for i := 1; i <= len(docCandidates); i++ {
			if i < len(docCandidates) && docCandidates[i].Chunk.Index == docCandidates[i-1].Chunk.Index+1 {
				continue
			}

			run := docCandidates[runStart:i]
			var contents []string
			primary := false
			for _, member := range run {
				contents = append(contents, member.Chunk.Content)
				primary = primary || member.Primary
			}

			passages = append(passages, &core.MergedPassage{
				DocumentId: docID,
				Title:      run[0].Title,
				FirstIndex: run[0].Chunk.Index,
				LastIndex:  run[len(run)-1].Chunk.Index,
				Content:    strings.Join(contents, "\n\n"),
				Primary:    primary,
			})
			runStart = i
		}
	}

	slices.SortFunc(passages, func(a, b *core.MergedPassage) int {
		if a.Primary != b.Primary {
			if a.Primary {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(a.DocumentId, b.DocumentId); c != 0 {
			return c
		}
		return cmp.Compare(a.FirstIndex, b.FirstIndex)
	})

	return passages
}
