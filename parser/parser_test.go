package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PlainText(t *testing.T) {
	c, err := NewClient("", "")
	require.NoError(t, err)

	result, err := c.Parse(context.Background(), []byte("  Hello corpus.  "), "notes.txt", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "Hello corpus.", result.Text)
	assert.Equal(t, 1, result.Pages)
}

func TestParse_PlainTextEmpty(t *testing.T) {
	c, err := NewClient("", "")
	require.NoError(t, err)

	_, err = c.Parse(context.Background(), []byte("   \n\n "), "empty.txt", "text/plain")
	assert.ErrorIs(t, err, ErrNoExtractableText)
}

func TestParse_MarkdownStripsSyntax(t *testing.T) {
	c, err := NewClient("", "")
	require.NoError(t, err)

	md := "# Title\n\nSome **bold** and _italic_ text with a [link](https://example.com).\n\n```go\ncode here\n```\n\n`inline`"
	result, err := c.Parse(context.Background(), []byte(md), "readme.md", "text/markdown")
	require.NoError(t, err)

	assert.NotContains(t, result.Text, "#")
	assert.NotContains(t, result.Text, "**")
	assert.NotContains(t, result.Text, "](")
	assert.Contains(t, result.Text, "Title")
	assert.Contains(t, result.Text, "bold")
	assert.Contains(t, result.Text, "link")
	assert.Contains(t, result.Text, "inline")
}

func TestParse_UnsupportedWithoutService(t *testing.T) {
	c, err := NewClient("", "")
	require.NoError(t, err)

	_, err = c.Parse(context.Background(), []byte{0x25, 0x50}, "doc.pdf", "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
}

// fakeParseService simulates the upload/poll/result flow, succeeding
// after a configurable number of polls.
func fakeParseService(t *testing.T, pollsUntilDone int) *httptest.Server {
	t.Helper()
	var polls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/parsing/upload", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		json.NewEncoder(w).Encode(map[string]string{"id": "job-1", "status": "PENDING"})
	})
	mux.HandleFunc("GET /api/parsing/job/job-1", func(w http.ResponseWriter, r *http.Request) {
		status := "PENDING"
		if int(polls.Add(1)) >= pollsUntilDone {
			status = "SUCCESS"
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})
	mux.HandleFunc("GET /api/parsing/job/job-1/result/markdown", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"markdown":     "# Parsed\n\nDocument body text.",
			"job_metadata": map[string]int{"job_pages": 4},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestParse_RemoteFlow(t *testing.T) {
	server := fakeParseService(t, 2)

	c, err := NewClient(server.URL, "test-key", WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	result, err := c.Parse(context.Background(), []byte("%PDF-"), "doc.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Contains(t, result.Text, "Document body text.")
	assert.Equal(t, 4, result.Pages)
}

func TestParse_RemoteTimeout(t *testing.T) {
	server := fakeParseService(t, 1000)

	c, err := NewClient(server.URL, "",
		WithPollInterval(5*time.Millisecond), WithMaxPolls(3))
	require.NoError(t, err)

	_, err = c.Parse(context.Background(), []byte("%PDF-"), "doc.pdf", "application/pdf")
	assert.ErrorIs(t, err, ErrParseTimeout)
}

func TestParse_RemoteJobError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/parsing/upload", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "job-2"})
	})
	mux.HandleFunc("GET /api/parsing/job/job-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ERROR"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "", WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Parse(context.Background(), []byte("%PDF-"), "doc.pdf", "application/pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERROR")
}

func TestEstimatePages(t *testing.T) {
	assert.Equal(t, 1, estimatePages("short"))
	assert.Equal(t, 2, estimatePages(fmt.Sprintf("%*s", charsPerPage+1, "x")))
}
