package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lexivec/lexivec/internal/ui"
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents from the index",
		Long: `Delete documents by id. Deleted documents never appear in
search results again; absent ids are ignored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeleteDocuments(cmd.Context(), args); err != nil {
				return err
			}
			if err := store.Save(cfg.DataDir); err != nil {
				return err
			}

			ui.New(cmd.OutOrStdout()).Successf("Deleted %d documents", len(args))
			return nil
		},
	}
	return cmd
}
