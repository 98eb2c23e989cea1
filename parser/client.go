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

package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 30
	defaultHTTPTimeout  = 60 * time.Second
)

// Client extracts text from uploaded files. Text-like formats are
// handled locally; everything else is sent to a LlamaParse-style
// parsing service: upload the file, poll the job on a fixed interval,
// fetch the result once the job succeeds.
type Client struct {
	baseURL      string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
}

var _ Extractor = (*Client)(nil)

// Option configures a Client.
type Option func(*Client) error

// WithPollInterval overrides the job polling interval.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) error {
		if interval <= 0 {
			return errors.New("poll interval must be positive")
		}
		c.pollInterval = interval
		return nil
	}
}

// WithMaxPolls overrides the number of poll attempts before timing out.
func WithMaxPolls(maxPolls int) Option {
	return func(c *Client) error {
		if maxPolls <= 0 {
			return errors.New("max polls must be positive")
		}
		c.maxPolls = maxPolls
		return nil
	}
}

// NewClient creates a parsing client. An empty baseURL disables the
// remote path; only local text extraction will work.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		http:         &http.Client{Timeout: defaultHTTPTimeout},
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
		logger:       slog.Default().With("component", "parser"),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Parse extracts text from the file. Plain text and markdown never
// leave the process.
func (c *Client) Parse(ctx context.Context, data []byte, filename, mimeType string) (*Result, error) {
	switch {
	case isMarkdown(filename, mimeType):
		return extractMarkdown(data)
	case isPlainText(filename, mimeType):
		return extractPlainText(data)
	}

	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: %s (no parsing service configured)", ErrUnsupportedFileType, mimeType)
	}
	return c.parseRemote(ctx, data, filename, mimeType)
}

type uploadResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type jobResponse struct {
	Status string `json:"status"`
}

type resultResponse struct {
	Markdown    string `json:"markdown"`
	JobMetadata struct {
		PageCount int `json:"job_pages"`
	} `json:"job_metadata"`
}

// parseRemote runs the upload / poll / fetch-result flow.
func (c *Client) parseRemote(ctx context.Context, data []byte, filename, mimeType string) (*Result, error) {
	jobID, err := c.upload(ctx, data, filename, mimeType)
	if err != nil {
		return nil, fmt.Errorf("parse upload: %w", err)
	}

	c.logger.Debug("parsing job submitted", "job_id", jobID, "filename", filename)

	if err := c.awaitJob(ctx, jobID); err != nil {
		return nil, err
	}

	var result resultResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/api/parsing/job/%s/result/markdown", c.baseURL, jobID), &result); err != nil {
		return nil, fmt.Errorf("parse result: %w", err)
	}

	parsed, err := extractMarkdown([]byte(result.Markdown))
	if err != nil {
		return nil, err
	}
	if result.JobMetadata.PageCount > 0 {
		parsed.Pages = result.JobMetadata.PageCount
	}
	return parsed, nil
}

// awaitJob polls the job status on a fixed interval until it settles.
func (c *Client) awaitJob(ctx context.Context, jobID string) error {
	for attempt := 0; attempt < c.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}

		var job jobResponse
		if err := c.getJSON(ctx, fmt.Sprintf("%s/api/parsing/job/%s", c.baseURL, jobID), &job); err != nil {
			return fmt.Errorf("parse poll: %w", err)
		}

		switch job.Status {
		case "SUCCESS":
			return nil
		case "ERROR", "CANCELED":
			return fmt.Errorf("parsing job %s ended with status %s", jobID, job.Status)
		}
	}
	return fmt.Errorf("%w: job %s after %d attempts", ErrParseTimeout, jobID, c.maxPolls)
}

// upload sends the file as multipart form data and returns the job ID.
func (c *Client) upload(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/parsing/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload failed: %s", resp.Status)
	}

	var upload uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&upload); err != nil {
		return "", err
	}
	if upload.ID == "" {
		return "", errors.New("upload response missing job id")
	}
	return upload.ID, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s failed: %s: %s", url, resp.Status, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
