// Package embed defines the embedding provider contract and its
// implementations: a local Ollama HTTP provider, an OpenAI-compatible
// API provider, and a deterministic hash-based provider for on-premise
// and test use. Wrappers add LRU caching and retry with backoff.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// errClosed reports use after Close.
var errClosed = errors.New("embedder is closed")

const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout bounds one provider round trip.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// StaticDimensions is the embedding dimension of the hash-based
	// provider.
	StaticDimensions = 256
)

// CostEstimate describes the expected cost of embedding a set of texts.
// Local providers report zero dollars.
type CostEstimate struct {
	Texts           int
	EstimatedTokens int
	EstimatedUSD    float64
}

// ProviderError is the distinguishable failure type for embedding
// providers. The orchestrator treats it as non-fatal for ingestion and
// as fallback-to-lexical for search.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err as a provider failure.
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedQuery generates an embedding for a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector
	// per input in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// CostEstimate predicts the cost of embedding the given texts.
	CostEstimate(texts []string) CostEstimate

	// Available checks if the provider is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length. Zero vectors are
// returned as-is.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// estimateTokens approximates token count as chars/4, the usual
// rule of thumb for English text.
func estimateTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		total += len(t) / 4
	}
	return total
}
