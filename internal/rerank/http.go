package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// DefaultEndpoint is the default cross-encoder server URL.
	DefaultEndpoint = "http://localhost:9659"
	// DefaultModel is the default reranker model alias.
	DefaultModel = "reranker-small"
	// DefaultTimeout bounds one rerank round trip.
	DefaultTimeout = 30 * time.Second
)

// HTTPConfig configures the HTTP cross-encoder client.
type HTTPConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
	// SkipHealthCheck disables the startup probe (used in tests).
	SkipHealthCheck bool
}

// HTTPReranker calls an external cross-encoder service over HTTP.
type HTTPReranker struct {
	client *http.Client
	cfg    HTTPConfig

	mu     sync.RWMutex
	closed bool
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// NewHTTPReranker creates the client and, unless skipped, verifies the
// service is healthy.
func NewHTTPReranker(ctx context.Context, cfg HTTPConfig) (*HTTPReranker, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	r := &HTTPReranker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		cfg: cfg,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := r.healthCheck(checkCtx); err != nil {
			return nil, NewProviderError("http", "health_check", err)
		}
	}

	return r, nil
}

func (r *HTTPReranker) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to rerank server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("rerank server unhealthy (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Rerank implements Reranker. Scores come back one per input document
// in input order.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, NewProviderError("http", "rerank", fmt.Errorf("reranker is closed"))
	}
	r.mu.RUnlock()

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(rerankRequest{
		Query:     query,
		Documents: docs,
		Model:     r.cfg.Model,
	})
	if err != nil {
		return nil, NewProviderError("http", "rerank", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		r.cfg.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError("http", "rerank", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, NewProviderError("http", "rerank", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, NewProviderError("http", "rerank",
			fmt.Errorf("rerank server returned %d: %s", resp.StatusCode, string(data)))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, NewProviderError("http", "rerank", fmt.Errorf("failed to decode response: %w", err))
	}

	// The server may return results sorted by score; map back to input
	// positions.
	scores := make([]float64, len(docs))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(docs) {
			return nil, NewProviderError("http", "rerank",
				fmt.Errorf("result index %d out of range", res.Index))
		}
		scores[res.Index] = res.Score
	}
	return scores, nil
}

// Available implements Reranker.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return false
	}
	r.mu.RUnlock()
	return r.healthCheck(ctx) == nil
}

// Close implements Reranker.
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

var _ Reranker = (*HTTPReranker)(nil)
