// Package index provides the lexical (BM25) and vector (ANN) indices
// backing hybrid search. Each index holds only document IDs and numeric
// or token representations; full content lives in the document store.
package index

import (
	"context"
	"errors"
	"fmt"
)

// LexicalBackend selects the lexical index implementation.
type LexicalBackend string

const (
	// LexicalBackendCorpus is the in-memory corpus BM25 index (default).
	// Statistics are rebuilt from the full corpus on every mutation.
	LexicalBackendCorpus LexicalBackend = "corpus"
	// LexicalBackendBleve is the Bleve-backed index for large corpora
	// where incremental indexing matters.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// VectorBackend selects the vector index implementation.
type VectorBackend string

const (
	// VectorBackendHNSW is the graph-based ANN index (default).
	VectorBackendHNSW VectorBackend = "hnsw"
	// VectorBackendIVFPQ is the clustered index with optional product
	// quantization, for very large corpora.
	VectorBackendIVFPQ VectorBackend = "ivfpq"
)

// Metric identifies the distance metric of a vector index.
type Metric string

const (
	MetricCosine Metric = "cos"
	MetricL2     Metric = "l2"
)

// ErrDocNotFound indicates an update/remove targeted an absent document.
var ErrDocNotFound = errors.New("document not found in index")

// ErrNotTrained indicates an insertion or probe into a clustered index
// before its training phase completed.
var ErrNotTrained = errors.New("index not trained")

// ErrClosed indicates an operation on a closed index.
var ErrClosed = errors.New("index is closed")

// ErrDimensionMismatch indicates a vector with the wrong dimensionality.
// All vectors in one index instance must share the configured dimension;
// violating this is a caller error.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// LexicalResult is one scored lexical match.
type LexicalResult struct {
	DocID string
	Score float64
}

// VectorResult is one scored vector match. Score is a similarity derived
// from the configured metric (cosine: 1-distance; l2: 1/(1+distance)).
type VectorResult struct {
	DocID    string
	Score    float64
	Distance float64
}

// LexicalStats is a read-only snapshot of a lexical index.
type LexicalStats struct {
	DocumentCount int
	TotalTokens   int
	AvgDocLength  float64
	Backend       LexicalBackend
}

// VectorStats is a read-only snapshot of a vector index.
type VectorStats struct {
	Count      int
	Dimensions int
	Backend    VectorBackend
	Metric     Metric
	// GraphNodes counts nodes including lazy-deleted orphans (hnsw only).
	GraphNodes int
	// Trained reports whether the clustering phase ran (ivfpq only).
	Trained bool
}

// LexicalIndex is a keyword index with BM25-style relevance scoring.
// It carries no embedding dependency, so search stays usable when the
// vector path is degraded.
type LexicalIndex interface {
	// Add tokenizes and indexes the given texts under the given ids.
	Add(ctx context.Context, ids []string, texts []string) error
	// Search returns the top-k documents by BM25 score descending.
	// A query that tokenizes to nothing returns an empty list, not an
	// error. Zero-score documents are excluded.
	Search(ctx context.Context, query string, k int) ([]*LexicalResult, error)
	// Update replaces the text stored under id. Returns ErrDocNotFound
	// if id is absent.
	Update(ctx context.Context, id string, text string) error
	// Remove deletes id from the index. Returns ErrDocNotFound if absent.
	Remove(ctx context.Context, id string) error
	// DocLength returns the token count of a document, 0 if absent.
	// Fusion uses this for length-normalized features.
	DocLength(id string) int
	// Save persists the index to path.
	Save(path string) error
	// Load restores the index from path.
	Load(path string) error
	// Stats returns a snapshot recomputed on demand.
	Stats() LexicalStats
	// Close releases resources.
	Close() error
}

// VectorIndex is an approximate nearest-neighbor index over
// fixed-dimension embedding vectors.
type VectorIndex interface {
	// Add inserts vectors under the given ids. An existing id is
	// replaced. Wrong-dimension vectors return ErrDimensionMismatch.
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns the k most similar vectors, best first. k is
	// clamped to the current count; an empty or untrained index
	// returns empty results, never an error.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	// Delete removes ids. Lazily deleted entries never surface in
	// Search results.
	Delete(ctx context.Context, ids []string) error
	// Contains reports whether id is indexed and visible.
	Contains(id string) bool
	// Count returns the number of visible vectors.
	Count() int
	// Save persists the index (plus a sidecar metadata file) to path.
	Save(path string) error
	// Load restores the index from path.
	Load(path string) error
	// Stats returns a snapshot recomputed on demand.
	Stats() VectorStats
	// Close releases resources.
	Close() error
}

// TrainableIndex is implemented by vector backends that need a
// clustering phase before accepting insertions. Callers buffer vectors
// until TrainingThreshold is reached, train once, then add normally.
type TrainableIndex interface {
	// Trained reports whether the clustering phase has run.
	Trained() bool
	// TrainingThreshold returns the minimum number of vectors Train
	// accepts.
	TrainingThreshold() int
	// Train runs the clustering phase on the given vectors.
	Train(vectors [][]float32) error
}

// LexicalConfig configures a lexical index.
type LexicalConfig struct {
	Backend LexicalBackend
	// K1 controls term-frequency saturation (default 1.2).
	K1 float64
	// B controls document-length normalization (default 0.75).
	B float64
	// MinTokenLength drops shorter tokens (default 2).
	MinTokenLength int
	// StopWords overrides the default English stop-word list.
	StopWords []string
}

// DefaultLexicalConfig returns the standard BM25 parameters.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		Backend:        LexicalBackendCorpus,
		K1:             1.2,
		B:              0.75,
		MinTokenLength: 2,
	}
}

// VectorConfig configures a vector index.
type VectorConfig struct {
	Backend    VectorBackend
	Dimensions int
	Metric     Metric

	// HNSW parameters.
	M              int // graph degree per node (default 16)
	EfConstruction int // construction breadth (default 200)
	EfSearch       int // search breadth (default 20)

	// IVF/PQ parameters.
	NClusters          int  // inverted-file cluster count (default 16)
	NProbes            int  // clusters probed per search (default 4)
	MinTrainingVectors int  // minimum vectors required to train (default NClusters)
	UseQuantization    bool // enable product quantization
	PQSubspaces        int  // PQ subvector count (default 8, must divide Dimensions)
	PQCentroids        int  // centroids per subspace (default 256, max 256)
}

// DefaultVectorConfig returns an HNSW config for the given dimension.
func DefaultVectorConfig(dimensions int) VectorConfig {
	return VectorConfig{
		Backend:        VectorBackendHNSW,
		Dimensions:     dimensions,
		Metric:         MetricCosine,
		M:              16,
		EfConstruction: 200,
		EfSearch:       20,
	}
}

// NewLexicalIndex constructs the configured lexical backend.
// The backend enum is matched exhaustively; unknown values error.
func NewLexicalIndex(cfg LexicalConfig, path string) (LexicalIndex, error) {
	switch cfg.Backend {
	case LexicalBackendCorpus, "":
		return NewCorpusBM25(cfg), nil
	case LexicalBackendBleve:
		return NewBleveBM25(path, cfg)
	default:
		return nil, fmt.Errorf("unknown lexical backend: %q", cfg.Backend)
	}
}

// NewVectorIndex constructs the configured vector backend.
func NewVectorIndex(cfg VectorConfig) (VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index requires positive dimensions, got %d", cfg.Dimensions)
	}
	switch cfg.Backend {
	case VectorBackendHNSW, "":
		return NewHNSWIndex(cfg)
	case VectorBackendIVFPQ:
		return NewIVFPQIndex(cfg)
	default:
		return nil, fmt.Errorf("unknown vector backend: %q", cfg.Backend)
	}
}
