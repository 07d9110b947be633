package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
)

// Weights for hash-based vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var staticTokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// StaticEmbedder generates embeddings with a deterministic hash-based
// scheme: no network, no model download. Semantic quality is reduced,
// but identical texts always map to identical vectors, which makes it
// the on-premise fallback and the test workhorse.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// EmbedQuery implements Embedder.
func (e *StaticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, NewProviderError("static", "embed_query", errClosed)
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(e.generateVector(trimmed)), nil
}

// EmbedBatch implements Embedder.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions implements Embedder.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName implements Embedder.
func (e *StaticEmbedder) ModelName() string {
	return "static-hash-v1"
}

// CostEstimate implements Embedder. Hash embeddings are free.
func (e *StaticEmbedder) CostEstimate(texts []string) CostEstimate {
	return CostEstimate{
		Texts:           len(texts),
		EstimatedTokens: estimateTokens(texts),
	}
}

// Available implements Embedder.
func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close implements Embedder.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// generateVector hashes tokens (weight 0.7) and character trigrams
// (weight 0.3) into a fixed-width vector.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, word := range staticTokenRegex.FindAllString(text, -1) {
		vector[hashToIndex(strings.ToLower(word), StaticDimensions)] += tokenWeight
	}

	lowered := strings.ToLower(text)
	for i := 0; i+ngramSize <= len(lowered); i++ {
		vector[hashToIndex(lowered[i:i+ngramSize], StaticDimensions)] += ngramWeight
	}

	return vector
}

// hashToIndex maps a string into [0, dims).
func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}

var _ Embedder = (*StaticEmbedder)(nil)
