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

// maxConversationTurns bounds how much history feeds reformulation.
const maxConversationTurns = 3

// Reformulator rewrites a user question into a retrieval-friendly
// search query, resolving references against recent conversation turns.
// Reformulation is best-effort: any failure falls back to the original
// question, so it can never fail a query.
type Reformulator struct {
	completer ai.Completer
	logger    *slog.Logger
}

// NewReformulator creates a reformulator.
func NewReformulator(completer ai.Completer) (*Reformulator, error) {
	if completer == nil {
		return nil, errors.New("completer cannot be nil")
	}
	return &Reformulator{
		completer: completer,
		logger:    slog.Default().With("component", "reformulator"),
	}, nil
}

// Reformulate returns the search query to retrieve with. On any
// completion failure, or an empty completion, it returns the question
// unchanged.
func (r *Reformulator) Reformulate(ctx context.Context, question string, turns []core.ConversationTurn) string {
	if len(turns) > maxConversationTurns {
		turns = turns[len(turns)-maxConversationTurns:]
	}

	var b strings.Builder
	if len(turns) > 0 {
		b.WriteString("Conversation history:\n")
		for _, turn := range turns {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", turn.Question, turn.Answer)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s", question)

	reformulated, err := r.completer.Complete(ctx, reformulateSystemPrompt, b.String())
	if err != nil {
		r.logger.Warn("reformulation failed, using original question",
			"code", ai.Classify(err), "err", err)
		return question
	}

	reformulated = strings.TrimSpace(reformulated)
	if reformulated == "" {
		return question
	}
	return reformulated
}
