package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig configures exponential-backoff retries around a provider.
type RetryConfig struct {
	MaxRetries   int           // retry attempts beyond the initial call
	InitialDelay time.Duration // delay before first retry
	MaxDelay     time.Duration // backoff cap
	Multiplier   float64       // backoff growth factor
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryEmbedder wraps an Embedder and retries transient failures with
// exponential backoff. Context cancellation aborts immediately.
type RetryEmbedder struct {
	inner Embedder
	cfg   RetryConfig
}

// NewRetryEmbedder wraps inner with retry behavior.
func NewRetryEmbedder(inner Embedder, cfg RetryConfig) *RetryEmbedder {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 1 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 16 * time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}
	return &RetryEmbedder{inner: inner, cfg: cfg}
}

// withRetry executes fn with exponential backoff.
func (r *RetryEmbedder) withRetry(ctx context.Context, op string, fn func() error) error {
	delay := r.cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err != nil {
			lastErr = err
			if attempt >= r.cfg.MaxRetries {
				break
			}

			slog.Debug("embedding call failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * r.cfg.Multiplier)
			if delay > r.cfg.MaxDelay {
				delay = r.cfg.MaxDelay
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", r.cfg.MaxRetries, lastErr)
}

// EmbedQuery implements Embedder.
func (r *RetryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.withRetry(ctx, "embed_query", func() error {
		var innerErr error
		vec, innerErr = r.inner.EmbedQuery(ctx, text)
		return innerErr
	})
	return vec, err
}

// EmbedBatch implements Embedder.
func (r *RetryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := r.withRetry(ctx, "embed_batch", func() error {
		var innerErr error
		vecs, innerErr = r.inner.EmbedBatch(ctx, texts)
		return innerErr
	})
	return vecs, err
}

// Dimensions implements Embedder.
func (r *RetryEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// ModelName implements Embedder.
func (r *RetryEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// CostEstimate implements Embedder.
func (r *RetryEmbedder) CostEstimate(texts []string) CostEstimate {
	return r.inner.CostEstimate(texts)
}

// Available implements Embedder.
func (r *RetryEmbedder) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}

// Close implements Embedder.
func (r *RetryEmbedder) Close() error {
	return r.inner.Close()
}

var _ Embedder = (*RetryEmbedder)(nil)
