package cmd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexivec/lexivec/internal/hybrid"
	"github.com/lexivec/lexivec/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit       int
	lexicalOnly bool
	rerank      bool
	explain     bool
	jsonOutput  bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search the index using hybrid retrieval: BM25 keyword matching
and semantic embeddings fused into one ranked list.

Examples:
  lexivec search "connection timeout"
  lexivec search "setup instructions" --limit 5
  lexivec search "handleRequest" --lexical-only
  lexivec search "error handling" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.lexicalOnly, "lexical-only", false, "Use keyword search only (skip semantic search)")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", true, "Rerank top candidates when a reranker is configured")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show component scores and metadata")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

// searchResultJSON is the JSON output shape for one result.
type searchResultJSON struct {
	DocID       string            `json:"doc_id"`
	Score       float64           `json:"score"`
	BM25Score   float64           `json:"bm25_score"`
	VectorScore float64           `json:"vector_score"`
	RerankScore *float64          `json:"rerank_score,omitempty"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var results []*hybrid.SearchResult
	if opts.lexicalOnly {
		results, err = store.Search(ctx, query, opts.limit)
	} else {
		results, err = store.HybridSearch(ctx, query, opts.limit,
			hybrid.SearchOptions{EnableReranking: opts.rerank})
	}
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		out := make([]searchResultJSON, len(results))
		for i, r := range results {
			out[i] = searchResultJSON{
				DocID:       r.DocID,
				Score:       r.Score,
				BM25Score:   r.BM25Score,
				VectorScore: r.VectorScore,
				Content:     r.Content,
				Metadata:    r.Metadata,
			}
			if r.Reranked {
				score := r.RerankScore
				out[i].RerankScore = &score
			}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	ui.New(cmd.OutOrStdout()).Results(query, results, opts.explain)
	return nil
}
