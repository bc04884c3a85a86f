// Package embeddings talks to the OpenAI embeddings API.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/pkg/apperror"
	"github.com/jamaly87/code-reader/pkg/config"
)

// Client generates embeddings for queries and documents
type Client interface {
	EmbedQuery(ctx context.Context, model, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, model string, texts []string) ([][]float32, error)
}

const (
	// maxBatchSize caps how many texts go into a single provider call
	maxBatchSize = 20
	// maxAttempts bounds retries per provider call
	maxAttempts = 3
)

// OpenAIClient is the HTTP client for the OpenAI embeddings endpoint
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger

	// retry tuning, overridden in tests
	retryInitial time.Duration
	retryMax     time.Duration
}

// NewOpenAIClient creates a client for the configured provider
func NewOpenAIClient(cfg config.OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // generous timeout for large batches
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		logger:       logger.Named("embeddings"),
		retryInitial: time.Second,
		retryMax:     60 * time.Second,
	}
}

type embedRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedQuery generates an embedding for a single text
func (c *OpenAIClient) EmbedQuery(ctx context.Context, model, text string) ([]float32, error) {
	vectors, err := c.EmbedDocuments(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocuments generates embeddings for texts, preserving input order:
// the vector at position i belongs to texts[i]. Texts are sent in groups of
// at most 20; each group is retried on rate-limit (429) or server (5xx)
// responses with exponential backoff, and the backoff sleep is abandoned
// when ctx is cancelled.
func (c *OpenAIClient) EmbedDocuments(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.embedBatch(ctx, model, texts[start:end])
		if err != nil {
			return nil, err
		}
		copy(vectors[start:end], batch)
	}
	return vectors, nil
}

// embedBatch performs one provider call with the retry policy
func (c *OpenAIClient) embedBatch(ctx context.Context, model string, texts []string) ([][]float32, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInitial
	bo.Multiplier = 2
	bo.MaxInterval = c.retryMax
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var vectors [][]float32
	attempt := 0
	operation := func() error {
		attempt++
		out, err := c.doEmbed(ctx, model, texts)
		if err != nil {
			var retryable *retryableError
			if errors.As(err, &retryable) {
				c.logger.Warn("embedding request failed, retrying",
					zap.Int("attempt", attempt),
					zap.Int("status", retryable.status),
				)
				return err
			}
			return backoff.Permanent(err)
		}
		vectors = out
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx))
	if err != nil {
		var retryable *retryableError
		if errors.As(err, &retryable) {
			return nil, apperror.ErrProvider.WithDetail("embedding provider returned status %d after %d attempts", retryable.status, attempt).WithErr(retryable)
		}
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperror.ErrProvider.WithDetail("embedding request failed").WithErr(err)
	}
	return vectors, nil
}

// retryableError marks a provider response worth retrying
type retryableError struct {
	status int
	body   string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("embedding provider returned status %d: %s", e.status, e.body)
}

func (c *OpenAIClient) doEmbed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{
		Model:          model,
		Input:          texts,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Only 429 and 5xx responses are retried; a transport failure
		// aborts the batch immediately.
		return nil, apperror.ErrProvider.WithDetail("embedding request failed").WithErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &retryableError{status: resp.StatusCode, body: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, apperror.ErrProvider.WithDetail("embedding provider returned status %d", resp.StatusCode).
			WithErr(fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperror.ErrProvider.WithDetail("failed to decode embedding response").WithErr(err)
	}
	if len(decoded.Data) != len(texts) {
		return nil, apperror.ErrProvider.WithDetail("embedding provider returned %d vectors for %d inputs", len(decoded.Data), len(texts))
	}

	// Place by the provider's index so ordering survives any reordering
	vectors := make([][]float32, len(texts))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, apperror.ErrProvider.WithDetail("embedding provider returned out-of-range index %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, apperror.ErrProvider.WithDetail("embedding provider returned no vector for input %d", i)
		}
	}
	return vectors, nil
}
