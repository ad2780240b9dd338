package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/startup-intake/internal/cost"
	"github.com/sells-group/startup-intake/internal/extract"
	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/internal/pipeline"
	"github.com/sells-group/startup-intake/internal/resolve"
	"github.com/sells-group/startup-intake/internal/store"
	"github.com/sells-group/startup-intake/pkg/anthropic"
)

// pipelineEnv holds the initialized store, fetcher, and pipeline shared by
// the ingest/batch/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Fetcher  *extract.Fetcher
	Pipeline *pipeline.Pipeline
	Tables   *heuristics.Tables
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, fetcher, extractors, and resolver, and
// builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	tables, err := heuristics.Load(cfg.Heuristics)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	fetcher := extract.NewFetcher(
		time.Duration(cfg.Fetch.TimeoutSecs)*time.Second,
		rate.Limit(cfg.Fetch.PerHostRate),
		cfg.Fetch.PerHostBurst,
	)

	var prober resolve.RedirectProber
	if cfg.Fetch.RedirectProbe {
		prober = redirectProber(fetcher)
	}
	resolver := resolve.NewResolver(st, resolve.NewMemoryCache(), prober, tables)

	var enricher extract.Enricher
	if cfg.Pipeline.EnableLLM {
		if cfg.Anthropic.Key == "" {
			zap.L().Warn("INTAKE_ANTHROPIC_KEY not set, LLM enrichment disabled")
		} else {
			client := anthropic.NewClient(cfg.Anthropic.Key)
			enricher = extract.NewLLMEnricher(client, cfg.Anthropic.Model, tables)
			zap.L().Info("llm enrichment enabled", zap.String("model", cfg.Anthropic.Model))
		}
	}

	p := pipeline.New(pipeline.Options{
		Tier0:    extract.NewHeadlineExtractor(tables),
		Tier1:    extract.NewArticleExtractor(fetcher, tables),
		Enricher: enricher,
		Store:    st,
		Resolver: resolver,
		Tables:   tables,
		Model:    cfg.Anthropic.Model,
		Budget:   newRunBudget(),
	})

	return &pipelineEnv{
		Store:    st,
		Fetcher:  fetcher,
		Pipeline: p,
		Tables:   tables,
	}, nil
}

func newRunBudget() *cost.Budget {
	return cost.NewBudget(cfg.Pipeline.RunBudgetUSD)
}

// redirectProber adapts the fetcher into the resolver's probe: two URLs are
// the same site when they land on the same canonical domain after redirects.
func redirectProber(f *extract.Fetcher) resolve.RedirectProber {
	return func(ctx context.Context, urlA, urlB string) (bool, error) {
		finalA, err := f.ResolveFinalURL(ctx, urlA)
		if err != nil {
			return false, err
		}
		finalB, err := f.ResolveFinalURL(ctx, urlB)
		if err != nil {
			return false, err
		}
		domA, okA := ledger.CanonicalizeDomain(finalA)
		domB, okB := ledger.CanonicalizeDomain(finalB)
		return okA && okB && domA == domB, nil
	}
}
