// Package rerank defines the cross-encoder rerank provider contract.
// Cross-encoders jointly encode query-document pairs for more accurate
// relevance scoring than bi-encoders, at higher cost, so they run only
// on a shortlist of fused candidates.
package rerank

import (
	"context"
	"fmt"
)

// ProviderError is the distinguishable failure type for rerank
// providers. Rerank failures are never fatal to the overall search.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("rerank provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err as a provider failure.
func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// Reranker scores documents for relevance to a query.
type Reranker interface {
	// Rerank returns one relevance score per input document, in input
	// order.
	Rerank(ctx context.Context, query string, docs []string) ([]float64, error)

	// Available checks if the reranker service is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NoOpReranker preserves the incoming order. Used when reranking is
// disabled or unavailable.
type NoOpReranker struct{}

// Rerank assigns gently decreasing scores so downstream sorting keeps
// the original order.
func (n *NoOpReranker) Rerank(_ context.Context, _ string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	for i := range docs {
		scores[i] = 1.0 - float64(i)*0.01
	}
	return scores, nil
}

// Available implements Reranker.
func (n *NoOpReranker) Available(_ context.Context) bool {
	return true
}

// Close implements Reranker.
func (n *NoOpReranker) Close() error {
	return nil
}

var _ Reranker = (*NoOpReranker)(nil)
