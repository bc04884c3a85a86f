package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jamaly87/code-reader/pkg/apperror"
	"github.com/jamaly87/code-reader/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*OpenAIClient, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client := NewOpenAIClient(config.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: ts.URL,
	}, zap.NewNop())
	client.retryInitial = time.Millisecond
	client.retryMax = 5 * time.Millisecond
	return client, ts
}

func embedHandler(t *testing.T, vector []float32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: vector})
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestEmbedQuery(t *testing.T) {
	var gotAuth, gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		embedHandler(t, []float32{0.1, 0.2})(w, r)
	})

	vec, err := client.EmbedQuery(context.Background(), "text-embedding-3-small", "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "/embeddings", gotPath)
}

func TestEmbedDocuments_BatchesOfTwenty(t *testing.T) {
	var calls []int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls = append(calls, len(req.Input))

		resp := embedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i)}})
		}
		json.NewEncoder(w).Encode(resp)
	})

	texts := make([]string, 45)
	for i := range texts {
		texts[i] = "chunk"
	}

	vectors, err := client.EmbedDocuments(context.Background(), "text-embedding-3-small", texts)
	require.NoError(t, err)
	require.Len(t, vectors, 45)
	assert.Equal(t, []int{20, 20, 5}, calls)
}

func TestEmbedDocuments_OrderPreservedAcrossProviderReordering(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Answer in reverse order; the index field must restore placement
		resp := embedResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i)}})
		}
		json.NewEncoder(w).Encode(resp)
	})

	vectors, err := client.EmbedDocuments(context.Background(), "m", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0}, {1}, {2}}, vectors)
}

func TestEmbedDocuments_RetriesOn429ThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		embedHandler(t, []float32{1})(w, r)
	})

	vectors, err := client.EmbedDocuments(context.Background(), "m", []string{"a"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestEmbedDocuments_ExhaustsRetriesOn500(t *testing.T) {
	var attempts atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.EmbedDocuments(context.Background(), "m", []string{"a"})
	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "OPENAI_ERROR", appErr.Code)
}

func TestEmbedDocuments_NoRetryOn400(t *testing.T) {
	var attempts atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.EmbedDocuments(context.Background(), "m", []string{"a"})
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "OPENAI_ERROR", appErr.Code)
}

// failingTransport fails every request at the transport level
type failingTransport struct {
	calls atomic.Int32
}

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestEmbedDocuments_NoRetryOnTransportError(t *testing.T) {
	client := NewOpenAIClient(config.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: "http://embeddings.invalid",
	}, zap.NewNop())
	client.retryInitial = time.Millisecond
	client.retryMax = 5 * time.Millisecond
	transport := &failingTransport{}
	client.httpClient = &http.Client{Transport: transport}

	_, err := client.EmbedDocuments(context.Background(), "m", []string{"a"})
	require.Error(t, err)
	assert.Equal(t, int32(1), transport.calls.Load())

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "OPENAI_ERROR", appErr.Code)
}

func TestEmbedDocuments_CountMismatchIsFatal(t *testing.T) {
	var attempts atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		json.NewEncoder(w).Encode(embedResponse{})
	})

	_, err := client.EmbedDocuments(context.Background(), "m", []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestEmbedDocuments_EmptyInput(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty input")
	})

	vectors, err := client.EmbedDocuments(context.Background(), "m", nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedDocuments_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, embedHandler(t, []float32{1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.EmbedDocuments(ctx, "m", []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}
