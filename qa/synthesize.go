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

package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veritium/corpusqa/ai"
	"github.com/veritium/corpusqa/core"
)

// excerptLength bounds the source excerpt carried in query responses.
const excerptLength = 200

// Synthesizer produces an answer from retrieved passages via a
// completion call. It numbers each passage and instructs the model to
// cite by number; the citations stay in the answer text uninterpreted.
type Synthesizer struct {
	completer ai.Completer
	logger    *slog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(completer ai.Completer) (*Synthesizer, error) {
	if completer == nil {
		return nil, errors.New("completer cannot be nil")
	}
	return &Synthesizer{
		completer: completer,
		logger:    slog.Default().With("component", "synthesizer"),
	}, nil
}

// buildContext renders passages as a numbered context payload.
func buildContext(passages []*core.MergedPassage) string {
	var b strings.Builder
	for i, passage := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Source %d] %s (section %d-%d)\n%s",
			i+1, passage.Title, passage.FirstIndex, passage.LastIndex, passage.Content)
	}
	return b.String()
}

// excerpt returns the first excerptLength characters of text.
func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength])
}

// Synthesize answers the question from the passages. The returned
// sources are ordered by source number and mirror the numbering the
// model was shown.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, passages []*core.MergedPassage) (string, []core.Source, error) {
	userPrompt := fmt.Sprintf("Sources:\n\n%s\n\nQuestion: %s", buildContext(passages), question)

	answer, err := s.completer.Complete(ctx, synthesizeSystemPrompt, userPrompt)
	if err != nil {
		return "", nil, fmt.Errorf("answer synthesis: %w", err)
	}

	sources := make([]core.Source, 0, len(passages))
	for i, passage := range passages {
		sources = append(sources, core.Source{
			SourceNumber:    i + 1,
			DocumentId:      passage.DocumentId,
			Title:           passage.Title,
			FirstChunkIndex: passage.FirstIndex,
			LastChunkIndex:  passage.LastIndex,
			Excerpt:         excerpt(passage.Content),
		})
	}

	return strings.TrimSpace(answer), sources, nil
}
