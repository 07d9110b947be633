package fusion

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/lexivec/lexivec/internal/errors"
)

// FeatureCount is the fixed width of the learned model's feature
// vector: bm25, vector, product, normalized doc length, normalized
// query length, max, min, absolute difference.
const FeatureCount = 8

// lengthSaturation smooths token counts into [0,1) via l/(l+c).
const lengthSaturation = 10.0

// Sample is one labeled training example for the learned model.
// Label is 1 for relevant, 0 for not relevant.
type Sample struct {
	Features [FeatureCount]float64
	Label    float64
}

// LearnedRanker applies a logistic regression over per-(query, doc)
// features; the fused score is the predicted relevance probability.
// Until Train has run it falls back explicitly to weighted-sum fusion
// and logs that it is untrained, never silently.
type LearnedRanker struct {
	mu       sync.RWMutex
	weights  [FeatureCount]float64
	bias     float64
	trained  bool
	fallback *WeightedRanker
	lr       float64
	epochs   int

	warnOnce sync.Once
}

// NewLearnedRanker creates an untrained learned ranker. The fallback
// weighted-sum weights are validated the same way as for the weighted
// strategy.
func NewLearnedRanker(cfg Config) (*LearnedRanker, error) {
	fallback, err := NewWeightedRanker(cfg.WeightLexical, cfg.WeightVector)
	if err != nil {
		return nil, err
	}
	lr := cfg.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	epochs := cfg.Epochs
	if epochs <= 0 {
		epochs = 200
	}
	return &LearnedRanker{
		fallback: fallback,
		lr:       lr,
		epochs:   epochs,
	}, nil
}

// Trained reports whether the model has been fit.
func (l *LearnedRanker) Trained() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.trained
}

// Train fits the logistic model by full-batch gradient descent on the
// cross-entropy loss. Training with no samples is an error.
func (l *LearnedRanker) Train(samples []Sample) error {
	if len(samples) == 0 {
		return errors.New(errors.ErrCodeTrainingFailed,
			"fusion training requires at least one labeled sample", nil)
	}
	for i, s := range samples {
		if s.Label != 0 && s.Label != 1 {
			return errors.New(errors.ErrCodeTrainingFailed,
				fmt.Sprintf("sample %d has label %g, want 0 or 1", i, s.Label), nil)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var weights [FeatureCount]float64
	var bias float64

	n := float64(len(samples))
	for epoch := 0; epoch < l.epochs; epoch++ {
		var gradW [FeatureCount]float64
		var gradB float64
		for _, s := range samples {
			p := sigmoid(dot(weights, s.Features) + bias)
			err := p - s.Label
			for j := range gradW {
				gradW[j] += err * s.Features[j]
			}
			gradB += err
		}
		for j := range weights {
			weights[j] -= l.lr * gradW[j] / n
		}
		bias -= l.lr * gradB / n
	}

	l.weights = weights
	l.bias = bias
	l.trained = true
	return nil
}

// learnedSnapshot is the gob persistence format for a fitted model.
type learnedSnapshot struct {
	Weights [FeatureCount]float64
	Bias    float64
}

// Save persists the fitted model as a gob blob, written atomically.
// There is nothing to save before training.
func (l *LearnedRanker) Save(path string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.trained {
		return errors.New(errors.ErrCodeTrainingFailed,
			"cannot save an untrained fusion model", nil)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create fusion model file: %w", err)
	}
	snap := learnedSnapshot{Weights: l.weights, Bias: l.bias}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode fusion model: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load restores a fitted model from a gob blob. A loaded ranker scores
// exactly as the one that saved it.
func (l *LearnedRanker) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open fusion model file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var snap learnedSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode fusion model: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.weights = snap.Weights
	l.bias = snap.Bias
	l.trained = true
	return nil
}

// Fuse implements Ranker. Trained: fused score is the model's
// relevance probability per document. Untrained: explicit weighted-sum
// fallback with a logged warning.
func (l *LearnedRanker) Fuse(in Input) []*Result {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.trained {
		l.warnOnce.Do(func() {
			slog.Warn("learned fusion ranker is untrained, falling back to weighted-sum",
				slog.String("strategy", string(StrategyLearned)))
		})
		return l.fallback.Fuse(in)
	}

	results := merge(in)
	for _, r := range results {
		features := ExtractFeatures(
			r.BM25Score, r.VectorScore,
			in.DocTokens[r.DocID], in.QueryTokens)
		r.Score = sigmoid(dot(l.weights, features) + l.bias)
	}
	return finalize(results)
}

// Strategy implements Ranker.
func (l *LearnedRanker) Strategy() Strategy {
	return StrategyLearned
}

// ExtractFeatures builds the fixed feature vector for one
// (query, document) pair. Token lengths are saturated into [0,1) so
// long documents cannot dominate the linear model.
func ExtractFeatures(bm25, vec float64, docTokens, queryTokens int) [FeatureCount]float64 {
	return [FeatureCount]float64{
		bm25,
		vec,
		bm25 * vec,
		saturate(docTokens),
		saturate(queryTokens),
		math.Max(bm25, vec),
		math.Min(bm25, vec),
		math.Abs(bm25 - vec),
	}
}

func saturate(tokens int) float64 {
	l := float64(tokens)
	return l / (l + lengthSaturation)
}

// sigmoid converts a logit to a probability in (0, 1).
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func dot(w, x [FeatureCount]float64) float64 {
	var sum float64
	for i := range w {
		sum += w[i] * x[i]
	}
	return sum
}

var _ Ranker = (*LearnedRanker)(nil)
