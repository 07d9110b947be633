// Package hybrid orchestrates the full search pipeline: document
// store, lexical index, vector index, fusion, and optional reranking.
// Components are injected at construction; the orchestrator owns their
// lifecycle and degrades gracefully when optional components fail.
package hybrid

import (
	"time"

	"github.com/lexivec/lexivec/internal/docstore"
	"github.com/lexivec/lexivec/internal/fusion"
	"github.com/lexivec/lexivec/internal/index"
)

const (
	// DefaultCandidateFloor is the minimum candidate pool fetched from
	// each index before fusion, regardless of the requested k.
	DefaultCandidateFloor = 50
	// DefaultRerankPool is how many top fused candidates go to the
	// reranker.
	DefaultRerankPool = 50
	// DefaultRerankTimeout bounds one rerank call; on expiry the fused
	// order stands.
	DefaultRerankTimeout = 30 * time.Second
	// candidateMultiplier widens the per-index pool relative to k so
	// fusion has overlap to work with.
	candidateMultiplier = 4
)

// Config tunes the query pipeline.
type Config struct {
	CandidateFloor int
	RerankPool     int
	RerankTimeout  time.Duration
}

// DefaultConfig returns the standard pipeline tuning.
func DefaultConfig() Config {
	return Config{
		CandidateFloor: DefaultCandidateFloor,
		RerankPool:     DefaultRerankPool,
		RerankTimeout:  DefaultRerankTimeout,
	}
}

// SearchOptions tune one HybridSearch call.
type SearchOptions struct {
	// EnableReranking sends the top fused candidates through the
	// cross-encoder. It has no effect when no reranker is configured.
	EnableReranking bool
}

// DefaultSearchOptions enables every configured pipeline stage.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{EnableReranking: true}
}

// SearchResult is one document returned to the caller, enriched with
// content and metadata from the document store.
type SearchResult struct {
	DocID    string
	Content  string
	Metadata map[string]string

	// Score is the final relevance score the result list is ordered by.
	Score float64
	// Component scores, zero when the document missed that list.
	BM25Score   float64
	VectorScore float64
	// RerankScore is set only when the cross-encoder ran successfully.
	RerankScore float64
	Reranked    bool
}

// AddReport summarizes one ingestion batch. Embedding failures degrade
// documents to lexical-only rather than failing the batch.
type AddReport struct {
	Received int
	Added    int
	// Degraded documents are searchable lexically but have no vector.
	Degraded int
	// Failed documents were rejected (no id) and skipped.
	Failed int
}

// Stats is a nested snapshot of every component.
type Stats struct {
	Documents docstore.Stats
	Lexical   index.LexicalStats
	Vector    index.VectorStats
	Fusion    fusion.Strategy
	Embedder  string
	Reranker  bool
}
