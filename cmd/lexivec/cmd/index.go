package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/lexivec/lexivec/internal/docstore"
	"github.com/lexivec/lexivec/internal/ui"
)

// maxDocumentBytes skips files too large to be useful search units.
const maxDocumentBytes = 1 << 20

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <path>...",
		Short: "Index documents for search",
		Long: `Index files or directories. Each text file becomes one document
with its relative path as the document id.

Examples:
  lexivec index ./docs
  lexivec index notes.md runbook.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args)
		},
	}
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, paths []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	docs, skipped, err := collectDocuments(paths)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no indexable documents found")
	}

	report, err := store.AddDocuments(ctx, docs)
	if err != nil {
		return err
	}
	if err := store.Save(cfg.DataDir); err != nil {
		return err
	}

	out := ui.New(cmd.OutOrStdout())
	out.Successf("Indexed %d documents", report.Added)
	if report.Degraded > 0 {
		out.Warnf("%d documents indexed without embeddings (lexical-only)", report.Degraded)
	}
	if report.Failed > 0 {
		out.Warnf("%d documents rejected", report.Failed)
	}
	if skipped > 0 {
		out.Warnf("%d files skipped (binary or too large)", skipped)
	}
	return nil
}

// collectDocuments walks the given paths and reads each text file into
// a document keyed by its slash-separated relative path.
func collectDocuments(paths []string) ([]*docstore.Document, int, error) {
	var docs []*docstore.Document
	skipped := 0

	addFile := func(path, id string) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.Size() > maxDocumentBytes {
			skipped++
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !utf8.Valid(data) {
			skipped++
			return nil
		}
		docs = append(docs, &docstore.Document{
			ID:      filepath.ToSlash(id),
			Content: string(data),
			Metadata: map[string]string{
				"path": filepath.ToSlash(path),
				"ext":  strings.TrimPrefix(filepath.Ext(path), "."),
			},
		})
		return nil
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, 0, fmt.Errorf("cannot index %s: %w", root, err)
		}

		if !info.IsDir() {
			if err := addFile(root, filepath.Base(root)); err != nil {
				return nil, 0, err
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			return addFile(path, rel)
		})
		if err != nil {
			return nil, 0, err
		}
	}

	return docs, skipped, nil
}
