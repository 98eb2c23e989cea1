// Package parser extracts plain text from uploaded files. Plain text
// and markdown are handled locally; binary formats go through an
// external parsing service.
package parser

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrNoExtractableText indicates the file produced no usable text.
	ErrNoExtractableText = errors.New("no extractable text in file")

	// ErrParseTimeout indicates the parsing service did not finish in time.
	ErrParseTimeout = errors.New("parsing job timed out")

	// ErrUnsupportedFileType indicates a file type no extractor handles.
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// Result is the outcome of text extraction.
type Result struct {
	Text  string
	Pages int
}

// Extractor turns an uploaded file into plain text.
type Extractor interface {
	Parse(ctx context.Context, data []byte, filename, mimeType string) (*Result, error)
}

// charsPerPage approximates page count for formats without page structure.
const charsPerPage = 3000

var (
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasisRe   = regexp.MustCompile(`(\*\*|__|\*|_|~~)`)
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	imageRe      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	codeFenceRe  = regexp.MustCompile("(?m)^```[^\n]*$")
	inlineCodeRe = regexp.MustCompile("`([^`]*)`")
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
)

// estimatePages approximates a page count from text length.
func estimatePages(text string) int {
	pages := (len(text) + charsPerPage - 1) / charsPerPage
	if pages < 1 {
		pages = 1
	}
	return pages
}

// extractPlainText validates and wraps raw text content.
func extractPlainText(data []byte) (*Result, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, ErrNoExtractableText
	}
	return &Result{Text: text, Pages: estimatePages(text)}, nil
}

// extractMarkdown strips markdown syntax down to readable text.
func extractMarkdown(data []byte) (*Result, error) {
	text := string(data)
	text = codeFenceRe.ReplaceAllString(text, "")
	text = imageRe.ReplaceAllString(text, "")
	text = linkRe.ReplaceAllString(text, "$1")
	text = headingRe.ReplaceAllString(text, "")
	text = emphasisRe.ReplaceAllString(text, "")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = htmlTagRe.ReplaceAllString(text, "")

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoExtractableText
	}
	return &Result{Text: text, Pages: estimatePages(text)}, nil
}

// isMarkdown reports whether the upload should take the markdown path.
func isMarkdown(filename, mimeType string) bool {
	if mimeType == "text/markdown" {
		return true
	}
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}

// isPlainText reports whether the upload should take the plain-text path.
func isPlainText(filename, mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/plain") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".txt")
}
