package cmd

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/lexivec/lexivec/internal/config"
	"github.com/lexivec/lexivec/internal/docstore"
	"github.com/lexivec/lexivec/internal/embed"
	"github.com/lexivec/lexivec/internal/fusion"
	"github.com/lexivec/lexivec/internal/hybrid"
	"github.com/lexivec/lexivec/internal/index"
	"github.com/lexivec/lexivec/internal/rerank"
)

// openStore wires the hybrid store from configuration and loads any
// persisted indices from the data directory. Optional components that
// fail to come up degrade the store rather than failing the command.
func openStore(ctx context.Context, cfg *config.Config) (*hybrid.Store, error) {
	docs, err := docstore.Open(filepath.Join(cfg.DataDir, hybrid.DocumentsFile))
	if err != nil {
		return nil, err
	}

	lexical, err := index.NewLexicalIndex(
		cfg.LexicalIndexConfig(), filepath.Join(cfg.DataDir, "bleve"))
	if err != nil {
		_ = docs.Close()
		return nil, err
	}

	ranker, err := fusion.NewRanker(cfg.FusionRankerConfig())
	if err != nil {
		_ = docs.Close()
		_ = lexical.Close()
		return nil, err
	}

	embedder := buildEmbedder(ctx, cfg)

	var vector index.VectorIndex
	if embedder != nil {
		vector, err = index.NewVectorIndex(cfg.VectorIndexConfig(embedder.Dimensions()))
		if err != nil {
			slog.Warn("vector index unavailable, running lexical-only",
				slog.String("error", err.Error()))
			_ = embedder.Close()
			embedder = nil
		}
	}

	store, err := hybrid.New(hybrid.Deps{
		Documents: docs,
		Lexical:   lexical,
		Vector:    vector,
		Ranker:    ranker,
		Embedder:  embedder,
		Reranker:  buildReranker(ctx, cfg),
	}, hybrid.Config{
		CandidateFloor: cfg.Search.CandidateFloor,
		RerankPool:     cfg.Search.RerankPool,
		RerankTimeout:  cfg.Search.RerankTimeout,
	})
	if err != nil {
		return nil, err
	}

	if err := store.Load(cfg.DataDir); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// buildEmbedder constructs the configured provider behind cache and
// retry wrappers. A provider that fails its startup probe degrades the
// store to lexical-only instead of failing the command.
func buildEmbedder(ctx context.Context, cfg *config.Config) embed.Embedder {
	if cfg.Embeddings.OnPremise && cfg.Embeddings.Provider != "static" {
		slog.Info("on-premise mode, external embedding providers disabled")
		return nil
	}

	var (
		provider embed.Embedder
		err      error
	)
	switch cfg.Embeddings.Provider {
	case "ollama":
		provider, err = embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
		})
	case "openai":
		provider, err = embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			APIKey:     cfg.Embeddings.APIKey,
			BaseURL:    cfg.Embeddings.BaseURL,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
		})
	case "static", "":
		provider = embed.NewStaticEmbedder()
	}
	if err != nil {
		slog.Warn("embedding provider unavailable, running lexical-only",
			slog.String("provider", cfg.Embeddings.Provider),
			slog.String("error", err.Error()))
		return nil
	}
	if provider == nil {
		return nil
	}

	cacheSize := cfg.Embeddings.CacheSize
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	return embed.NewCachedEmbedder(
		embed.NewRetryEmbedder(provider, embed.DefaultRetryConfig()), cacheSize)
}

// buildReranker constructs the cross-encoder client when enabled.
// Failure to connect disables reranking, never the search.
func buildReranker(ctx context.Context, cfg *config.Config) rerank.Reranker {
	if !cfg.Rerank.Enabled {
		return nil
	}

	r, err := rerank.NewHTTPReranker(ctx, rerank.HTTPConfig{
		Endpoint: cfg.Rerank.Endpoint,
		Model:    cfg.Rerank.Model,
		Timeout:  cfg.Rerank.Timeout,
	})
	if err != nil {
		slog.Warn("reranker unavailable, search runs without reranking",
			slog.String("error", err.Error()))
		return nil
	}
	return r
}
