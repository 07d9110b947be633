package fusion

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains.
const DefaultRRFConstant = 60

// RRFRanker implements parameter-free Reciprocal Rank Fusion:
//
//	score(d) = Σ 1 / (k + rank_i)
//
// summed over every list d appears in, with rank 1-based per list.
// Because it is rank-based rather than magnitude-based, the output is
// invariant to any score renumbering that preserves relative order
// within each input list. It needs no training and no weight tuning,
// which makes it the safe default without labeled relevance data.
type RRFRanker struct {
	k int
}

// NewRRFRanker creates an RRF ranker. k <= 0 selects the default 60.
func NewRRFRanker(k int) *RRFRanker {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFRanker{k: k}
}

// Fuse implements Ranker. Lists are assumed already sorted by their
// own score descending, which is how the indices return them.
func (f *RRFRanker) Fuse(in Input) []*Result {
	results := merge(in)
	for _, r := range results {
		if r.BM25Rank > 0 {
			r.Score += 1 / float64(f.k+r.BM25Rank)
		}
		if r.VectorRank > 0 {
			r.Score += 1 / float64(f.k+r.VectorRank)
		}
	}
	return finalize(results)
}

// Strategy implements Ranker.
func (f *RRFRanker) Strategy() Strategy {
	return StrategyRRF
}

var _ Ranker = (*RRFRanker)(nil)
