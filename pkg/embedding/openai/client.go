// Package openai implements the embedding.Provider interface against
// the OpenAI embeddings API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ShreyashSoni/llm-semantic-book-recommender/pkg/embedding"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "text-embedding-3-small"
	defaultTimeout = 30 * time.Second
)

// Config holds OpenAI client configuration.
type Config struct {
	// APIKey is the OpenAI API key (required)
	APIKey string

	// Model is the embedding model to use
	Model string

	// BaseURL is the API base URL (default: https://api.openai.com/v1)
	BaseURL string

	// Timeout for API requests
	Timeout time.Duration
}

// Client implements embedding.Provider over the OpenAI REST API. It
// performs exactly one API call per operation; retry and rate limiting
// are the caller's concern (see embedding.LimitedProvider).
type Client struct {
	cfg       Config
	http      *http.Client
	dimension int
}

// NewClient creates a new OpenAI embedding client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		dimension: dimensionFor(cfg.Model),
	}, nil
}

// dimensionFor returns the vector width of a known model; unknown
// models assume the small-model width.
func dimensionFor(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}

type apiRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type apiResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Embed converts one text into a vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, embedding.ErrEmptyInput
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch converts texts into vectors with one API call, preserving
// input order. Empty texts are rejected: the ingest pipeline filters
// unembeddable books before it gets here, so an empty string reaching
// this point is a caller bug, not data to paper over.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, embedding.ErrEmptyInput
	}
	for _, text := range texts {
		if text == "" {
			return nil, embedding.ErrEmptyInput
		}
	}

	body, err := json.Marshal(apiRequest{Input: texts, Model: c.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// The API may return entries out of order; Index restores it
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// post sends the embeddings request and decodes the response.
func (c *Client) post(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, statusError(httpResp.StatusCode, respBody)
	}

	var resp apiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// statusError maps API failures onto the provider sentinels so the
// retry layer can classify them.
func statusError(status int, body []byte) error {
	var apiErr apiError
	parsed := json.Unmarshal(body, &apiErr) == nil

	switch status {
	case http.StatusUnauthorized:
		return embedding.ErrInvalidAPIKey
	case http.StatusTooManyRequests:
		return embedding.ErrRateLimited
	case http.StatusNotFound:
		return embedding.ErrModelNotFound
	case http.StatusBadRequest:
		if parsed && apiErr.Error.Code == "context_length_exceeded" {
			return embedding.ErrContextTooLong
		}
	}

	if parsed && apiErr.Error.Message != "" {
		return fmt.Errorf("API error: %s", apiErr.Error.Message)
	}
	return fmt.Errorf("API error: status %d", status)
}

// Dimension returns the embedding dimension for this model.
func (c *Client) Dimension() int {
	return c.dimension
}

// ModelName returns the model name.
func (c *Client) ModelName() string {
	return c.cfg.Model
}
