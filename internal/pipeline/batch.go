package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/startup-intake/internal/extract"
	"github.com/sells-group/startup-intake/internal/model"
)

// BatchSummary tallies one batch run.
type BatchSummary struct {
	Total    int     `json:"total"`
	Created  int     `json:"created"`
	Merged   int     `json:"merged"`
	Rejected int     `json:"rejected"`
	Failed   int     `json:"failed"`
	CostUSD  float64 `json:"cost_usd"`
}

// ProcessBatch ingests and commits a batch of sources with bounded
// concurrency. Individual source failures are counted, not fatal; the
// returned error reflects only context cancellation.
func (p *Pipeline) ProcessBatch(ctx context.Context, sources []extract.RawSource, concurrency int) (*BatchSummary, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	var mu sync.Mutex
	summary := &BatchSummary{Total: len(sources)}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			res, err := p.Ingest(ctx, src)
			if err != nil {
				zap.L().Warn("batch: ingest failed",
					zap.String("url", src.URL),
					zap.Error(err),
				)
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				return nil
			}

			if err := p.Commit(ctx, res); err != nil {
				zap.L().Warn("batch: commit failed",
					zap.String("run_id", res.RunID),
					zap.Error(err),
				)
				mu.Lock()
				summary.Failed++
				summary.CostUSD += res.CostUSD
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			summary.CostUSD += res.CostUSD
			switch {
			case !res.Quality.Valid:
				summary.Rejected++
			case res.Resolution != nil && res.Resolution.IsDuplicate:
				summary.Merged++
			default:
				summary.Created++
			}
			return nil
		})
	}

	err := g.Wait()

	zap.L().Info("batch: complete",
		zap.Int("total", summary.Total),
		zap.Int("created", summary.Created),
		zap.Int("merged", summary.Merged),
		zap.Int("rejected", summary.Rejected),
		zap.Int("failed", summary.Failed),
		zap.Float64("cost_usd", summary.CostUSD),
	)
	return summary, err
}

// ActionLabel summarizes the outcome for log and CLI output.
func (res *IngestResult) ActionLabel() string {
	if !res.Quality.Valid {
		return "rejected:" + res.Quality.Reason
	}
	if res.Resolution == nil {
		return "unresolved"
	}
	if res.Resolution.Action == model.ActionCreateNew {
		return "created"
	}
	return "merged:" + string(res.Resolution.MatchMethod)
}
