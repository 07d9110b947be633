// Package ui renders search results and statistics for the terminal.
// Color is enabled only when writing to an interactive terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/lexivec/lexivec/internal/hybrid"
)

// snippetLength caps the content preview per result line.
const snippetLength = 120

// Printer renders human-readable output to a writer.
type Printer struct {
	w      io.Writer
	styles Styles
}

// New creates a printer for w. Color is auto-detected: enabled only
// when w is an interactive terminal.
func New(w io.Writer) *Printer {
	return &Printer{w: w, styles: GetStyles(!isTerminal(w))}
}

// NewPlain creates a printer that never emits color.
func NewPlain(w io.Writer) *Printer {
	return &Printer{w: w, styles: NoColorStyles()}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Results renders a ranked result list. Component scores appear when
// explain is set.
func (p *Printer) Results(query string, results []*hybrid.SearchResult, explain bool) {
	if len(results) == 0 {
		fmt.Fprintf(p.w, "%s\n", p.styles.Dim.Render("No results for \""+query+"\""))
		return
	}

	fmt.Fprintf(p.w, "%s\n\n",
		p.styles.Header.Render(fmt.Sprintf("%d results for \"%s\"", len(results), query)))

	for i, r := range results {
		fmt.Fprintf(p.w, "%s %s  %s\n",
			p.styles.Dim.Render(fmt.Sprintf("%2d.", i+1)),
			p.styles.Title.Render(r.DocID),
			p.styles.Score.Render(fmt.Sprintf("score=%.4f", r.Score)))

		if explain {
			parts := []string{
				fmt.Sprintf("bm25=%.4f", r.BM25Score),
				fmt.Sprintf("vector=%.4f", r.VectorScore),
			}
			if r.Reranked {
				parts = append(parts, fmt.Sprintf("rerank=%.4f", r.RerankScore))
			}
			fmt.Fprintf(p.w, "    %s\n", p.styles.Label.Render(strings.Join(parts, "  ")))
		}

		fmt.Fprintf(p.w, "    %s\n", snippet(r.Content))

		if explain && len(r.Metadata) > 0 {
			fmt.Fprintf(p.w, "    %s\n", p.styles.Dim.Render(formatMetadata(r.Metadata)))
		}
	}
}

// Stats renders the nested component snapshot.
func (p *Printer) Stats(stats *hybrid.Stats) {
	fmt.Fprintf(p.w, "%s\n\n", p.styles.Header.Render("lexivec index"))

	row := func(label, value string) {
		fmt.Fprintf(p.w, "  %-22s %s\n", p.styles.Label.Render(label), value)
	}

	row("documents", fmt.Sprintf("%d", stats.Documents.DocumentCount))
	if stats.Documents.SizeBytes > 0 {
		row("store size", formatBytes(stats.Documents.SizeBytes))
	}
	row("lexical backend", string(stats.Lexical.Backend))
	row("lexical tokens", fmt.Sprintf("%d", stats.Lexical.TotalTokens))
	row("avg doc length", fmt.Sprintf("%.1f", stats.Lexical.AvgDocLength))
	if stats.Vector.Backend != "" {
		row("vector backend", string(stats.Vector.Backend))
		row("vectors", fmt.Sprintf("%d", stats.Vector.Count))
		row("dimensions", fmt.Sprintf("%d", stats.Vector.Dimensions))
		row("metric", string(stats.Vector.Metric))
	}
	row("fusion strategy", string(stats.Fusion))
	if stats.Embedder != "" {
		row("embedding model", stats.Embedder)
	}
	row("reranker", fmt.Sprintf("%t", stats.Reranker))
}

// Successf prints a success line.
func (p *Printer) Successf(format string, args ...any) {
	fmt.Fprintf(p.w, "%s\n", p.styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Warnf prints a warning line.
func (p *Printer) Warnf(format string, args ...any) {
	fmt.Fprintf(p.w, "%s\n", p.styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Errorf prints an error line.
func (p *Printer) Errorf(format string, args ...any) {
	fmt.Fprintf(p.w, "%s\n", p.styles.Error.Render(fmt.Sprintf(format, args...)))
}

// snippet flattens and truncates content for one-line previews.
func snippet(content string) string {
	s := strings.Join(strings.Fields(content), " ")
	if len(s) > snippetLength {
		s = s[:snippetLength-3] + "..."
	}
	return s
}

// formatMetadata renders metadata as sorted key=value pairs.
func formatMetadata(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + meta[k]
	}
	return strings.Join(pairs, " ")
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
