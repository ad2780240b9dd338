package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/extract"
	"github.com/sells-group/startup-intake/internal/pipeline"
)

var (
	batchFeeds       []string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Poll feeds and ingest every item",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		feeds := batchFeeds
		if len(feeds) == 0 {
			feeds = cfg.Feeds.URLs
		}
		if len(feeds) == 0 {
			zap.L().Warn("no feeds configured, nothing to do")
			return nil
		}

		var sources []extract.RawSource
		for _, feedURL := range feeds {
			items, err := extract.FetchFeed(ctx, env.Fetcher, feedURL)
			if err != nil {
				zap.L().Warn("feed fetch failed, skipping",
					zap.String("feed", feedURL),
					zap.Error(err),
				)
				continue
			}
			sources = append(sources, items...)
		}

		concurrency := batchConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.Concurrency
		}

		summary, err := env.Pipeline.ProcessBatch(ctx, sources, concurrency)
		if err != nil {
			return err
		}
		return printSummary(summary)
	},
}

func printSummary(summary *pipeline.BatchSummary) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func init() {
	batchCmd.Flags().StringSliceVar(&batchFeeds, "feed", nil, "feed URL (repeatable, default from config)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "worker count (default from config)")
	rootCmd.AddCommand(batchCmd)
}
