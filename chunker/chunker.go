// Package chunker splits extracted document text into overlapping,
// size-bounded segments suitable for embedding.
package chunker

import (
	"regexp"
	"strings"

	"github.com/veritium/corpusqa/core"
)

const (
	// DefaultChunkSize is the target chunk size in characters.
	DefaultChunkSize = 1000
	// DefaultOverlap is the approximate number of characters shared
	// between adjacent chunks.
	DefaultOverlap = 200
)

var (
	crlfRe      = regexp.MustCompile(`\r\n`)
	multiLineRe = regexp.MustCompile(`\n{3,}`)
	paragraphRe = regexp.MustCompile(`\n\n+`)
)

// Chunker splits text into paragraph-aligned chunks.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap size in characters. The overlap is
// approximated as overlap/5 words carried over from the previous chunk.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker with the default chunk size and overlap.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split splits text into an ordered sequence of chunks. Paragraphs
// (blank-line-delimited) are accumulated greedily until the next one
// would exceed the chunk size; the following chunk is seeded with the
// trailing words of the previous one so adjacent chunks share context.
// The returned slice is 0-indexed by position and covers the whole
// input exactly once; overlap text is duplicated by design.
//
// Empty or whitespace-only input returns core.ErrEmptyContent.
func (c *Chunker) Split(text string) ([]string, error) {
	cleaned := crlfRe.ReplaceAllString(text, "\n")
	cleaned = multiLineRe.ReplaceAllString(cleaned, "\n\n")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return nil, core.ErrEmptyContent
	}

	paragraphs := paragraphRe.Split(cleaned, -1)

	var chunks []string
	var current string

	for _, paragraph := range paragraphs {
		trimmed := strings.TrimSpace(paragraph)
		if trimmed == "" {
			continue
		}

		if len(current)+len(trimmed) > c.chunkSize && current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
			current = c.overlapSeed(current)
		}

		current += trimmed + "\n\n"
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	return chunks, nil
}

// overlapSeed returns the trailing overlap/5 words of the closed chunk,
// used to seed the next one.
func (c *Chunker) overlapSeed(closed string) string {
	overlapWords := c.overlap / 5
	if overlapWords == 0 {
		return ""
	}
	words := strings.Fields(closed)
	if len(words) > overlapWords {
		words = words[len(words)-overlapWords:]
	}
	return strings.Join(words, " ") + "\n\n"
}
