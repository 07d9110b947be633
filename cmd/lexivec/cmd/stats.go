package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/lexivec/lexivec/internal/hybrid"
	"github.com/lexivec/lexivec/internal/ui"
)

// statsJSON is the JSON output shape for index statistics.
type statsJSON struct {
	Documents struct {
		Count     int   `json:"count"`
		SizeBytes int64 `json:"size_bytes"`
	} `json:"documents"`
	Lexical struct {
		Backend      string  `json:"backend"`
		Documents    int     `json:"documents"`
		TotalTokens  int     `json:"total_tokens"`
		AvgDocLength float64 `json:"avg_doc_length"`
	} `json:"lexical"`
	Vector struct {
		Backend    string `json:"backend,omitempty"`
		Count      int    `json:"count"`
		Dimensions int    `json:"dimensions"`
		Metric     string `json:"metric,omitempty"`
	} `json:"vector"`
	Fusion   string `json:"fusion_strategy"`
	Embedder string `json:"embedding_model,omitempty"`
	Reranker bool   `json:"reranker_enabled"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long:  `Display per-component statistics: documents, lexical index, vector index, and the active fusion strategy.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(toStatsJSON(stats))
			}

			ui.New(cmd.OutOrStdout()).Stats(stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func toStatsJSON(stats *hybrid.Stats) statsJSON {
	var out statsJSON
	out.Documents.Count = stats.Documents.DocumentCount
	out.Documents.SizeBytes = stats.Documents.SizeBytes
	out.Lexical.Backend = string(stats.Lexical.Backend)
	out.Lexical.Documents = stats.Lexical.DocumentCount
	out.Lexical.TotalTokens = stats.Lexical.TotalTokens
	out.Lexical.AvgDocLength = stats.Lexical.AvgDocLength
	out.Vector.Backend = string(stats.Vector.Backend)
	out.Vector.Count = stats.Vector.Count
	out.Vector.Dimensions = stats.Vector.Dimensions
	out.Vector.Metric = string(stats.Vector.Metric)
	out.Fusion = string(stats.Fusion)
	out.Embedder = stats.Embedder
	out.Reranker = stats.Reranker
	return out
}
