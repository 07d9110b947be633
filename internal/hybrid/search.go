package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/lexivec/lexivec/internal/errors"
	"github.com/lexivec/lexivec/internal/fusion"
	"github.com/lexivec/lexivec/internal/index"
)

// Search runs a lexical-only query. It never touches the embedding
// provider, so it stays available when the semantic path is down.
func (s *Store) Search(ctx context.Context, query string, k int) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("hybrid store is closed")
	}
	if k <= 0 {
		return []*SearchResult{}, nil
	}

	hits, err := s.lexical.Search(ctx, query, k)
	if err != nil {
		return nil, errors.SearchError("lexical search failed", err)
	}

	results := make([]*fusion.Result, len(hits))
	for i, h := range hits {
		results[i] = &fusion.Result{
			DocID:     h.DocID,
			Score:     h.Score,
			BM25Score: h.Score,
		}
	}
	return s.enrich(ctx, results, nil, k)
}

// HybridSearch runs the full pipeline: lexical and vector retrieval in
// parallel, fusion, optional reranking, then enrichment. A vector-path
// failure degrades the query to lexical-only; a lexical failure
// surfaces as an error.
func (s *Store) HybridSearch(ctx context.Context, query string, k int, opts SearchOptions) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("hybrid store is closed")
	}
	if k <= 0 {
		return []*SearchResult{}, nil
	}

	pool := candidateMultiplier * k
	if pool < s.cfg.CandidateFloor {
		pool = s.cfg.CandidateFloor
	}

	var (
		lexHits []*index.LexicalResult
		vecHits []*index.VectorResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.lexical.Search(gctx, query, pool)
		if err != nil {
			return errors.SearchError("lexical search failed", err)
		}
		lexHits = hits
		return nil
	})
	if s.vector != nil && s.embedder != nil {
		g.Go(func() error {
			hits, err := s.vectorSearch(gctx, query, pool)
			if err != nil {
				// Degrade, do not fail: the lexical list alone is still
				// a valid answer.
				s.logger.Warn("vector search failed, degrading to lexical-only",
					slog.String("query", query),
					slog.String("error", err.Error()))
				return nil
			}
			vecHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := s.ranker.Fuse(fusion.Input{
		Lexical:     lexHits,
		Vector:      vecHits,
		QueryTokens: len(s.tokenizer.Tokenize(query)),
		DocTokens:   s.docTokens(lexHits, vecHits),
	})

	var rerankScores map[string]float64
	if opts.EnableReranking && s.reranker != nil && len(fused) > 1 {
		fused, rerankScores = s.rerankCandidates(ctx, query, fused)
	}

	return s.enrich(ctx, fused, rerankScores, k)
}

// vectorSearch embeds the query and probes the vector index.
func (s *Store) vectorSearch(ctx context.Context, query string, k int) ([]*index.VectorResult, error) {
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.vector.Search(ctx, vec, k)
}

// docTokens collects indexed token counts for every candidate, feeding
// the learned ranker's length features.
func (s *Store) docTokens(lex []*index.LexicalResult, vec []*index.VectorResult) map[string]int {
	tokens := make(map[string]int, len(lex)+len(vec))
	for _, h := range lex {
		tokens[h.DocID] = s.lexical.DocLength(h.DocID)
	}
	for _, h := range vec {
		if _, seen := tokens[h.DocID]; !seen {
			tokens[h.DocID] = s.lexical.DocLength(h.DocID)
		}
	}
	return tokens
}

// rerankCandidates sends the top fused candidates through the
// cross-encoder under a bounded timeout. Any failure keeps the fused
// order and returns a nil score map; scores are recorded only on
// success.
func (s *Store) rerankCandidates(ctx context.Context, query string, fused []*fusion.Result) ([]*fusion.Result, map[string]float64) {
	n := len(fused)
	if n > s.cfg.RerankPool {
		n = s.cfg.RerankPool
	}
	head, tail := fused[:n], fused[n:]

	ids := make([]string, n)
	for i, r := range head {
		ids[i] = r.DocID
	}
	docs, err := s.docs.GetMany(ctx, ids)
	if err != nil || len(docs) != n {
		s.logger.Warn("rerank skipped, candidate content unavailable",
			slog.String("query", query))
		return fused, nil
	}
	texts := make([]string, n)
	for i, d := range docs {
		texts[i] = d.Content
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RerankTimeout)
	defer cancel()

	scores, err := s.reranker.Rerank(rctx, query, texts)
	if err != nil || len(scores) != n {
		s.logger.Warn("rerank failed, keeping fused order",
			slog.String("query", query),
			slog.Any("error", err))
		return fused, nil
	}

	byID := make(map[string]float64, n)
	for i, r := range head {
		byID[r.DocID] = scores[i]
	}

	reranked := make([]*fusion.Result, n)
	copy(reranked, head)
	sort.SliceStable(reranked, func(i, j int) bool {
		return byID[reranked[i].DocID] > byID[reranked[j].DocID]
	})
	for _, r := range reranked {
		r.Score = byID[r.DocID]
	}

	// Rerank and fused scores live on different scales. Tail candidates
	// beyond the rerank pool keep their relative fused order but are
	// capped at the lowest reranked score so the full list stays sorted.
	floor := byID[reranked[n-1].DocID]
	for _, r := range tail {
		if r.Score > floor {
			r.Score = floor
		}
	}

	out := make([]*fusion.Result, 0, len(fused))
	out = append(out, reranked...)
	out = append(out, tail...)
	return out, byID
}

// enrich resolves fused results against the document store, dropping
// ids whose documents have been deleted, and truncates to k.
func (s *Store) enrich(ctx context.Context, fused []*fusion.Result, rerankScores map[string]float64, k int) ([]*SearchResult, error) {
	if len(fused) == 0 {
		return []*SearchResult{}, nil
	}

	ids := make([]string, len(fused))
	byID := make(map[string]*fusion.Result, len(fused))
	for i, r := range fused {
		ids[i] = r.DocID
		byID[r.DocID] = r
	}

	docs, err := s.docs.GetMany(ctx, ids)
	if err != nil {
		return nil, errors.SearchError("failed to load result documents", err)
	}

	results := make([]*SearchResult, 0, k)
	for _, doc := range docs {
		if len(results) == k {
			break
		}
		r := byID[doc.ID]
		sr := &SearchResult{
			DocID:       doc.ID,
			Content:     doc.Content,
			Metadata:    doc.Metadata,
			Score:       r.Score,
			BM25Score:   r.BM25Score,
			VectorScore: r.VectorScore,
		}
		if score, ok := rerankScores[doc.ID]; ok {
			sr.RerankScore = score
			sr.Reranked = true
		}
		results = append(results, sr)
	}
	return results, nil
}
