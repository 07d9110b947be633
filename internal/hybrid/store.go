package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lexivec/lexivec/internal/docstore"
	"github.com/lexivec/lexivec/internal/embed"
	"github.com/lexivec/lexivec/internal/errors"
	"github.com/lexivec/lexivec/internal/fusion"
	"github.com/lexivec/lexivec/internal/index"
	"github.com/lexivec/lexivec/internal/rerank"
)

// Deps are the injected components. Documents, Lexical, and Ranker are
// required. Embedder and Vector enable the semantic path; Reranker
// enables cross-encoder reranking. Nil optional components disable
// their stage.
type Deps struct {
	Documents *docstore.Store
	Lexical   index.LexicalIndex
	Vector    index.VectorIndex
	Ranker    fusion.Ranker
	Embedder  embed.Embedder
	Reranker  rerank.Reranker
}

// Store is the hybrid search orchestrator. It owns the injected
// components and closes them with itself.
type Store struct {
	mu     sync.RWMutex
	closed bool

	docs      *docstore.Store
	lexical   index.LexicalIndex
	vector    index.VectorIndex
	ranker    fusion.Ranker
	embedder  embed.Embedder
	reranker  rerank.Reranker
	tokenizer *index.Tokenizer
	cfg       Config
	logger    *slog.Logger

	// Embedded vectors held back while a trainable vector backend has
	// not reached its training threshold yet. Guarded by mu.
	pendingIDs  []string
	pendingVecs [][]float32
}

// New wires the orchestrator from its components.
func New(deps Deps, cfg Config) (*Store, error) {
	if deps.Documents == nil {
		return nil, errors.ConfigError("hybrid store requires a document store", nil)
	}
	if deps.Lexical == nil {
		return nil, errors.ConfigError("hybrid store requires a lexical index", nil)
	}
	if deps.Ranker == nil {
		return nil, errors.ConfigError("hybrid store requires a fusion ranker", nil)
	}
	if deps.Vector != nil && deps.Embedder == nil {
		return nil, errors.ConfigError("vector index requires an embedder", nil)
	}

	if cfg.CandidateFloor <= 0 {
		cfg.CandidateFloor = DefaultCandidateFloor
	}
	if cfg.RerankPool <= 0 {
		cfg.RerankPool = DefaultRerankPool
	}
	if cfg.RerankTimeout <= 0 {
		cfg.RerankTimeout = DefaultRerankTimeout
	}

	return &Store{
		docs:      deps.Documents,
		lexical:   deps.Lexical,
		vector:    deps.Vector,
		ranker:    deps.Ranker,
		embedder:  deps.Embedder,
		reranker:  deps.Reranker,
		tokenizer: index.NewTokenizer(nil, 0),
		cfg:       cfg,
		logger:    slog.Default().With(slog.String("component", "hybrid")),
	}, nil
}

// AddDocuments ingests a batch. Every valid document lands in the
// store and the lexical index; documents without an id are counted in
// AddReport.Failed and skipped, and embedding failures degrade the
// affected documents to lexical-only. Neither aborts the batch.
func (s *Store) AddDocuments(ctx context.Context, docs []*docstore.Document) (*AddReport, error) {
	report := &AddReport{Received: len(docs)}
	if len(docs) == 0 {
		return report, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("hybrid store is closed")
	}

	valid := make([]*docstore.Document, 0, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			s.logger.Warn("skipping document with empty id", slog.Int("position", i))
			report.Failed++
			continue
		}
		valid = append(valid, doc)
	}
	if len(valid) == 0 {
		return report, nil
	}

	// Content first: the store is the source of truth.
	if err := s.docs.Put(ctx, valid); err != nil {
		return nil, errors.IndexError("failed to persist documents", err)
	}

	ids := make([]string, len(valid))
	texts := make([]string, len(valid))
	for i, doc := range valid {
		ids[i] = doc.ID
		texts[i] = doc.Content
	}

	if err := s.lexical.Add(ctx, ids, texts); err != nil {
		return nil, errors.IndexError("failed to index documents", err)
	}
	report.Added = len(valid)

	if s.vector == nil || s.embedder == nil {
		report.Degraded = len(valid)
		return report, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.logger.Warn("embedding failed, batch degraded to lexical-only",
			slog.Int("count", len(valid)),
			slog.String("error", err.Error()))
		report.Degraded = len(valid)
		return report, nil
	}

	if trainable, ok := s.vector.(index.TrainableIndex); ok && !trainable.Trained() {
		waiting, err := s.bufferForTraining(ctx, trainable, ids, vectors)
		if err != nil {
			s.logger.Warn("vector training failed, batch degraded to lexical-only",
				slog.Int("count", len(valid)),
				slog.String("error", err.Error()))
			report.Degraded = len(valid)
			return report, nil
		}
		if waiting > 0 {
			s.logger.Info("vectors buffered until training threshold",
				slog.Int("pending", waiting),
				slog.Int("threshold", trainable.TrainingThreshold()))
			report.Degraded = len(valid)
		}
		return report, nil
	}

	if err := s.vector.Add(ctx, ids, vectors); err != nil {
		s.logger.Warn("vector indexing failed, batch degraded to lexical-only",
			slog.Int("count", len(valid)),
			slog.String("error", err.Error()))
		report.Degraded = len(valid)
		return report, nil
	}

	return report, nil
}

// bufferForTraining holds embedded vectors until the trainable backend
// has seen enough to run its clustering phase, then trains on the
// buffer and flushes it into the index. Returns the number of
// documents still waiting; zero means every buffered vector is
// indexed. Caller holds the write lock.
func (s *Store) bufferForTraining(ctx context.Context, trainable index.TrainableIndex, ids []string, vectors [][]float32) (int, error) {
	s.pendingIDs = append(s.pendingIDs, ids...)
	s.pendingVecs = append(s.pendingVecs, vectors...)

	if len(s.pendingVecs) < trainable.TrainingThreshold() {
		return len(s.pendingIDs), nil
	}

	if err := trainable.Train(s.pendingVecs); err != nil {
		return len(s.pendingIDs), err
	}
	if err := s.vector.Add(ctx, s.pendingIDs, s.pendingVecs); err != nil {
		return len(s.pendingIDs), err
	}

	s.logger.Info("vector index trained",
		slog.Int("vectors", len(s.pendingIDs)))
	s.pendingIDs, s.pendingVecs = nil, nil
	return 0, nil
}

// DeleteDocuments removes documents. The document store delete is
// authoritative; index removals are best-effort because enrichment
// filters deleted ids out of every result anyway.
func (s *Store) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("hybrid store is closed")
	}

	if err := s.docs.Delete(ctx, ids); err != nil {
		return errors.IndexError("failed to delete documents", err)
	}

	for _, id := range ids {
		if err := s.lexical.Remove(ctx, id); err != nil && err != index.ErrDocNotFound {
			s.logger.Warn("lexical removal failed",
				slog.String("doc_id", id),
				slog.String("error", err.Error()))
		}
	}

	if s.vector != nil {
		if err := s.vector.Delete(ctx, ids); err != nil {
			s.logger.Warn("vector removal failed",
				slog.Int("count", len(ids)),
				slog.String("error", err.Error()))
		}
	}

	// Deleted documents must not flush into the vector index later.
	if len(s.pendingIDs) > 0 {
		gone := make(map[string]bool, len(ids))
		for _, id := range ids {
			gone[id] = true
		}
		keptIDs := s.pendingIDs[:0]
		keptVecs := s.pendingVecs[:0]
		for i, id := range s.pendingIDs {
			if gone[id] {
				continue
			}
			keptIDs = append(keptIDs, id)
			keptVecs = append(keptVecs, s.pendingVecs[i])
		}
		s.pendingIDs, s.pendingVecs = keptIDs, keptVecs
	}

	return nil
}

// Stats snapshots every component.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("hybrid store is closed")
	}

	docStats, err := s.docs.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Documents: *docStats,
		Lexical:   s.lexical.Stats(),
		Fusion:    s.ranker.Strategy(),
		Reranker:  s.reranker != nil,
	}
	if s.vector != nil {
		stats.Vector = s.vector.Stats()
	}
	if s.embedder != nil {
		stats.Embedder = s.embedder.ModelName()
	}
	return stats, nil
}

// Close shuts down every owned component. The first error wins but all
// components are closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(s.docs.Close())
	record(s.lexical.Close())
	if s.vector != nil {
		record(s.vector.Close())
	}
	if s.embedder != nil {
		record(s.embedder.Close())
	}
	if s.reranker != nil {
		record(s.reranker.Close())
	}
	return firstErr
}
