// Package fusion combines lexical and vector result lists into one
// relevance-ordered list. Three interchangeable strategies: static
// weighted sum, parameter-free reciprocal rank fusion, and a learned
// logistic model.
package fusion

import (
	"fmt"
	"sort"

	"github.com/lexivec/lexivec/internal/index"
)

// Strategy selects the fusion implementation.
type Strategy string

const (
	StrategyWeighted Strategy = "weighted"
	StrategyRRF      Strategy = "rrf"
	StrategyLearned  Strategy = "learned"
)

// Input carries everything a ranker may need for one query. The
// weighted and RRF rankers use only the result lists; the learned
// ranker also consumes the token-length fields for its features.
type Input struct {
	Lexical []*index.LexicalResult
	Vector  []*index.VectorResult
	// QueryTokens is the token count of the query after normalization.
	QueryTokens int
	// DocTokens maps doc id to its indexed token count.
	DocTokens map[string]int
}

// Result is one fused result. Component scores and 1-based ranks are
// preserved for downstream inspection; a rank of 0 means the document
// was absent from that list.
type Result struct {
	DocID       string
	Score       float64
	BM25Score   float64
	VectorScore float64
	BM25Rank    int
	VectorRank  int
}

// Ranker fuses component result lists into one ordered list.
// Output is sorted by fused score descending with a stable, determinis-
// tic tie-break; only positive fused scores are retained.
type Ranker interface {
	Fuse(in Input) []*Result
	// Strategy identifies the active implementation for stats.
	Strategy() Strategy
}

// Config configures ranker construction.
type Config struct {
	Strategy Strategy
	// Weighted-sum weights; must sum to 1.0.
	WeightLexical float64
	WeightVector  float64
	// RRF smoothing constant (default 60).
	KRRF int
	// Learned-model training parameters.
	LearningRate float64
	Epochs       int
}

// DefaultConfig returns the parameter-free RRF strategy, the safe
// default when no labeled relevance data exists.
func DefaultConfig() Config {
	return Config{
		Strategy:      StrategyRRF,
		WeightLexical: 0.5,
		WeightVector:  0.5,
		KRRF:          DefaultRRFConstant,
		LearningRate:  0.1,
		Epochs:        200,
	}
}

// DefaultConfigWithStrategy returns the defaults with the strategy
// overridden.
func DefaultConfigWithStrategy(s Strategy) Config {
	cfg := DefaultConfig()
	cfg.Strategy = s
	return cfg
}

// NewRanker constructs the configured strategy. The enum is matched
// exhaustively; invalid weights are a fatal construction-time error.
func NewRanker(cfg Config) (Ranker, error) {
	switch cfg.Strategy {
	case StrategyWeighted:
		return NewWeightedRanker(cfg.WeightLexical, cfg.WeightVector)
	case StrategyRRF, "":
		return NewRRFRanker(cfg.KRRF), nil
	case StrategyLearned:
		return NewLearnedRanker(cfg)
	default:
		return nil, fmt.Errorf("unknown fusion strategy: %q", cfg.Strategy)
	}
}

// merge builds one Result per distinct document, recording component
// scores and 1-based ranks. Entries keep first-seen order (lexical
// list first), which the stable sort preserves for ties.
func merge(in Input) []*Result {
	byID := make(map[string]*Result, len(in.Lexical)+len(in.Vector))
	ordered := make([]*Result, 0, len(in.Lexical)+len(in.Vector))

	for rank, r := range in.Lexical {
		res := &Result{
			DocID:     r.DocID,
			BM25Score: r.Score,
			BM25Rank:  rank + 1,
		}
		byID[r.DocID] = res
		ordered = append(ordered, res)
	}
	for rank, r := range in.Vector {
		res, seen := byID[r.DocID]
		if !seen {
			res = &Result{DocID: r.DocID}
			byID[r.DocID] = res
			ordered = append(ordered, res)
		}
		res.VectorScore = r.Score
		res.VectorRank = rank + 1
	}

	return ordered
}

// finalize applies the shared output invariant: stable sort by fused
// score descending, positive scores only.
func finalize(results []*Result) []*Result {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	out := make([]*Result, 0, len(results))
	for _, r := range results {
		if r.Score > 0 {
			out = append(out, r)
		}
	}
	return out
}
