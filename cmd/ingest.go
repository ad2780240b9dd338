package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/extract"
)

var (
	ingestTitle  string
	ingestDryRun bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <url>",
	Short: "Ingest a single article URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		raw := extract.RawSource{
			Kind:  extract.KindArticle,
			URL:   args[0],
			Title: ingestTitle,
		}

		res, err := env.Pipeline.Ingest(ctx, raw)
		if err != nil {
			return err
		}

		if !ingestDryRun {
			if err := env.Pipeline.Commit(ctx, res); err != nil {
				return err
			}
		}

		zap.L().Info("ingest complete",
			zap.String("run_id", res.RunID),
			zap.String("outcome", res.ActionLabel()),
			zap.Bool("dry_run", ingestDryRun),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "headline to use when the page has none")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "evaluate without writing to the store")
	rootCmd.AddCommand(ingestCmd)
}
