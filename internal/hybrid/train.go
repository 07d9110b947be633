package hybrid

import (
	"context"
	"fmt"

	"github.com/lexivec/lexivec/internal/errors"
	"github.com/lexivec/lexivec/internal/fusion"
)

// TrainingExample is one labeled query for fusion training: the query
// string and the ids of the documents a human judged relevant to it.
type TrainingExample struct {
	Query       string
	RelevantIDs []string
}

// TrainFusion fits the learned fusion model from labeled queries.
// For each example the component searches run as they would at query
// time, and every retrieved candidate becomes one feature sample
// labeled by membership in RelevantIDs. Requires the learned strategy.
func (s *Store) TrainFusion(ctx context.Context, examples []TrainingExample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("hybrid store is closed")
	}

	learned, ok := s.ranker.(*fusion.LearnedRanker)
	if !ok {
		return errors.New(errors.ErrCodeTrainingFailed,
			fmt.Sprintf("fusion training requires the learned strategy, active strategy is %q",
				s.ranker.Strategy()), nil)
	}
	if len(examples) == 0 {
		return errors.New(errors.ErrCodeTrainingFailed,
			"fusion training requires at least one labeled query", nil)
	}

	var samples []fusion.Sample
	for _, ex := range examples {
		built, err := s.buildSamples(ctx, ex)
		if err != nil {
			return err
		}
		samples = append(samples, built...)
	}
	if len(samples) == 0 {
		return errors.New(errors.ErrCodeTrainingFailed,
			"labeled queries produced no candidates to train on", nil)
	}

	return learned.Train(samples)
}

// buildSamples runs the component searches for one labeled query and
// extracts one feature sample per retrieved candidate.
func (s *Store) buildSamples(ctx context.Context, ex TrainingExample) ([]fusion.Sample, error) {
	pool := s.cfg.CandidateFloor

	lexHits, err := s.lexical.Search(ctx, ex.Query, pool)
	if err != nil {
		return nil, errors.SearchError("lexical search failed during training", err)
	}

	type candidate struct {
		bm25 float64
		vec  float64
	}
	candidates := make(map[string]*candidate, len(lexHits))
	for _, h := range lexHits {
		candidates[h.DocID] = &candidate{bm25: h.Score}
	}

	if s.vector != nil && s.embedder != nil {
		vecHits, err := s.vectorSearch(ctx, ex.Query, pool)
		if err != nil {
			return nil, errors.SearchError("vector search failed during training", err)
		}
		for _, h := range vecHits {
			c, seen := candidates[h.DocID]
			if !seen {
				c = &candidate{}
				candidates[h.DocID] = c
			}
			c.vec = h.Score
		}
	}

	relevant := make(map[string]bool, len(ex.RelevantIDs))
	for _, id := range ex.RelevantIDs {
		relevant[id] = true
	}
	queryTokens := len(s.tokenizer.Tokenize(ex.Query))

	samples := make([]fusion.Sample, 0, len(candidates))
	for id, c := range candidates {
		label := 0.0
		if relevant[id] {
			label = 1.0
		}
		samples = append(samples, fusion.Sample{
			Features: fusion.ExtractFeatures(c.bm25, c.vec, s.lexical.DocLength(id), queryTokens),
			Label:    label,
		})
	}
	return samples, nil
}
