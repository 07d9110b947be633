package embed

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts provider calls.
type countingEmbedder struct {
	*StaticEmbedder
	queryCalls int
	batchCalls int
	failNext   int
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.queryCalls++
	if c.failNext > 0 {
		c.failNext--
		return nil, NewProviderError("fake", "embed_query", errors.New("transient"))
	}
	return c.StaticEmbedder.EmbedQuery(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	if c.failNext > 0 {
		c.failNext--
		return nil, NewProviderError("fake", "embed_batch", errors.New("transient"))
	}
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

// --- Static -----------------------------------------------------------------

func TestStaticEmbedder_Deterministic(t *testing.T) {
	// Given: a static embedder
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()
	ctx := context.Background()

	// When: embedding the same text twice
	v1, err := e.EmbedQuery(ctx, "red apple pie")
	require.NoError(t, err)
	v2, err := e.EmbedQuery(ctx, "red apple pie")
	require.NoError(t, err)

	// Then: vectors are identical and unit length
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, StaticDimensions)

	var norm float64
	for _, x := range v1 {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestStaticEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()
	ctx := context.Background()

	v1, err := e.EmbedQuery(ctx, "red apple pie")
	require.NoError(t, err)
	v2, err := e.EmbedQuery(ctx, "blue sky today")
	require.NoError(t, err)

	assert.NotEqual(t, v1, v2)
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.EmbedQuery(context.Background(), "   ")
	require.NoError(t, err)
	for _, x := range vec {
		assert.Zero(t, x)
	}
}

func TestStaticEmbedder_Batch(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, StaticDimensions)
	}
}

func TestStaticEmbedder_ClosedFailsWithProviderError(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.EmbedQuery(context.Background(), "x")
	require.Error(t, err)

	var pe *ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.False(t, e.Available(context.Background()))
}

func TestStaticEmbedder_CostEstimateIsFree(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	est := e.CostEstimate([]string{"some text to embed"})

	assert.Equal(t, 1, est.Texts)
	assert.Zero(t, est.EstimatedUSD)
}

// --- Cached -----------------------------------------------------------------

func TestCachedEmbedder_ServesRepeatsFromCache(t *testing.T) {
	// Given: a counting provider behind the cache
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	defer func() { _ = cached.Close() }()
	ctx := context.Background()

	// When: embedding the same query twice
	v1, err := cached.EmbedQuery(ctx, "apple")
	require.NoError(t, err)
	v2, err := cached.EmbedQuery(ctx, "apple")
	require.NoError(t, err)

	// Then: the provider was called once
	assert.Equal(t, 1, inner.queryCalls)
	assert.Equal(t, v1, v2)
}

func TestCachedEmbedder_BatchOnlyFetchesMisses(t *testing.T) {
	// Given: one text already cached
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	defer func() { _ = cached.Close() }()
	ctx := context.Background()

	_, err := cached.EmbedQuery(ctx, "apple")
	require.NoError(t, err)

	// When: batching a hit and two misses
	vecs, err := cached.EmbedBatch(ctx, []string{"apple", "sky", "mix"})
	require.NoError(t, err)

	// Then: all three come back, only the misses hit the provider
	require.Len(t, vecs, 3)
	assert.Equal(t, 1, inner.batchCalls)

	direct, err := inner.StaticEmbedder.EmbedQuery(ctx, "apple")
	require.NoError(t, err)
	assert.Equal(t, direct, vecs[0])
}

// --- Retry ------------------------------------------------------------------

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryEmbedder_RecoversFromTransientFailures(t *testing.T) {
	// Given: a provider that fails twice then succeeds
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(), failNext: 2}
	r := NewRetryEmbedder(inner, fastRetryConfig())
	defer func() { _ = r.Close() }()

	// When: embedding
	vec, err := r.EmbedQuery(context.Background(), "apple")

	// Then: the call succeeds after retries
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
	assert.Equal(t, 3, inner.queryCalls)
}

func TestRetryEmbedder_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(), failNext: 100}
	r := NewRetryEmbedder(inner, fastRetryConfig())
	defer func() { _ = r.Close() }()

	_, err := r.EmbedQuery(context.Background(), "apple")

	require.Error(t, err)
	var pe *ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, 4, inner.queryCalls) // initial + 3 retries
}

func TestRetryEmbedder_ContextCancellationAborts(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(), failNext: 100}
	cfg := fastRetryConfig()
	cfg.InitialDelay = time.Hour
	r := NewRetryEmbedder(inner, cfg)
	defer func() { _ = r.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.EmbedQuery(ctx, "apple")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// --- Ollama -----------------------------------------------------------------

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	// Given: a fake Ollama server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		texts := req.Input.([]any)

		embeddings := make([][]float32, len(texts))
		for i := range texts {
			embeddings[i] = []float32{3, 4} // normalizes to {0.6, 0.8}
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            server.URL,
		Model:           "test-model",
		Dimensions:      2,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// When: embedding a batch
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	// Then: vectors are returned normalized
	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][1], 1e-6)
	assert.Equal(t, "test-model", e.ModelName())
	assert.Equal(t, 2, e.Dimensions())
}

func TestOllamaEmbedder_ServerErrorIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            server.URL,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.EmbedBatch(context.Background(), []string{"a"})

	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "ollama", pe.Provider)
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewProviderError("test", "embed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "test")
	assert.Contains(t, err.Error(), "boom")
}
