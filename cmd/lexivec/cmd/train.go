package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lexivec/lexivec/internal/hybrid"
	"github.com/lexivec/lexivec/internal/ui"
)

// trainFile is the YAML shape of a labeled-query file.
type trainFile struct {
	Examples []struct {
		Query    string   `yaml:"query"`
		Relevant []string `yaml:"relevant"`
	} `yaml:"examples"`
}

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train <labels.yaml>",
		Short: "Train the learned fusion model from labeled queries",
		Long: `Train the learned fusion strategy from a YAML file of labeled
queries. Requires fusion strategy "learned" in the config.

The file lists queries with the ids judged relevant:

  examples:
    - query: connection timeout
      relevant: [runbook.md, faq.md]
    - query: setup instructions
      relevant: [README.md]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd, args[0])
		},
	}
	return cmd
}

func runTrain(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read labels file: %w", err)
	}

	var file trainFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("cannot parse labels file: %w", err)
	}
	if len(file.Examples) == 0 {
		return fmt.Errorf("labels file contains no examples")
	}

	examples := make([]hybrid.TrainingExample, len(file.Examples))
	for i, ex := range file.Examples {
		examples[i] = hybrid.TrainingExample{
			Query:       ex.Query,
			RelevantIDs: ex.Relevant,
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.TrainFusion(cmd.Context(), examples); err != nil {
		return err
	}
	if err := store.Save(cfg.DataDir); err != nil {
		return err
	}

	ui.New(cmd.OutOrStdout()).Successf("Trained fusion model on %d labeled queries", len(examples))
	return nil
}
