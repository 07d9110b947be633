package fusion

import (
	"fmt"
	"math"

	"github.com/lexivec/lexivec/internal/errors"
)

// weightEpsilon tolerates float noise when validating the weight sum.
const weightEpsilon = 1e-9

// WeightedRanker computes score = wLex*bm25 + wVec*vector. A document
// appearing in only one list contributes 0.0 for the missing component.
type WeightedRanker struct {
	wLex float64
	wVec float64
}

// NewWeightedRanker validates that the weights sum to 1.0. An invalid
// configuration is a fatal construction-time error, never a runtime one.
func NewWeightedRanker(wLex, wVec float64) (*WeightedRanker, error) {
	if wLex < 0 || wVec < 0 || math.Abs(wLex+wVec-1.0) > weightEpsilon {
		return nil, errors.FusionError(
			fmt.Sprintf("fusion weights must be non-negative and sum to 1.0, got lexical=%g vector=%g", wLex, wVec),
			nil)
	}
	return &WeightedRanker{wLex: wLex, wVec: wVec}, nil
}

// Fuse implements Ranker.
func (w *WeightedRanker) Fuse(in Input) []*Result {
	results := merge(in)
	for _, r := range results {
		r.Score = w.wLex*r.BM25Score + w.wVec*r.VectorScore
	}
	return finalize(results)
}

// Strategy implements Ranker.
func (w *WeightedRanker) Strategy() Strategy {
	return StrategyWeighted
}

var _ Ranker = (*WeightedRanker)(nil)
