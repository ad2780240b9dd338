// Package pipeline wires the tiers together: extract, escalate, gate,
// resolve, and commit. Ingest is pure evaluation; Commit is the only place
// the store is written.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/cost"
	"github.com/sells-group/startup-intake/internal/extract"
	"github.com/sells-group/startup-intake/internal/gate"
	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/infer"
	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/internal/model"
	"github.com/sells-group/startup-intake/internal/resolve"
	"github.com/sells-group/startup-intake/internal/store"
	"github.com/sells-group/startup-intake/pkg/anthropic"
)

// Options configures a Pipeline.
type Options struct {
	Tier0    extract.Extractor
	Tier1    extract.Extractor
	Enricher extract.Enricher // nil disables tier 2
	Store    store.Store
	Resolver *resolve.Resolver
	Tables   *heuristics.Tables

	// Model is the LLM model ID used for cost attribution.
	Model  string
	Rates  cost.Rates
	Budget *cost.Budget // nil means unlimited
}

// Pipeline runs one source through extraction, gating, and resolution.
type Pipeline struct {
	tier0    extract.Extractor
	tier1    extract.Extractor
	enricher extract.Enricher
	quality  *gate.Gate
	inferer  *infer.Gate
	resolver *resolve.Resolver
	store    store.Store
	tables   *heuristics.Tables

	model  string
	calc   *cost.Calculator
	budget *cost.Budget
}

// IngestResult carries everything one Ingest evaluation produced. It holds
// no store-side effects until Commit is called with it.
type IngestResult struct {
	RunID      string               `json:"run_id"`
	Source     extract.RawSource    `json:"source"`
	Ledger     *ledger.Ledger       `json:"-"`
	Decision   model.EnrichDecision `json:"decision"`
	Quality    model.QualityResult  `json:"quality"`
	Resolution *model.Resolution    `json:"resolution,omitempty"`
	Usage      anthropic.TokenUsage `json:"usage"`
	CostUSD    float64              `json:"cost_usd"`

	// NeedsDeepEnrichment marks a snapshot still too thin after every
	// affordable tier ran, a hint to re-crawl the candidate later.
	NeedsDeepEnrichment bool `json:"needs_deep_enrichment"`
}

// New creates a Pipeline from options.
func New(opts Options) *Pipeline {
	tables := opts.Tables
	if tables == nil {
		tables = heuristics.Default()
	}
	budget := opts.Budget
	if budget == nil {
		budget = cost.NewBudget(0)
	}
	return &Pipeline{
		tier0:    opts.Tier0,
		tier1:    opts.Tier1,
		enricher: opts.Enricher,
		quality:  gate.New(tables),
		inferer:  infer.New(tables),
		resolver: opts.Resolver,
		store:    opts.Store,
		tables:   tables,
		model:    opts.Model,
		calc:     cost.NewCalculator(opts.Rates),
		budget:   budget,
	}
}

// Ingest evaluates one raw source: tier 0, escalation to tier 1 when the
// ledger is incomplete, the article-host prefilter, the inference gate and
// optional LLM enrichment, the quality gate, and resolution. It never writes
// to the store.
func (p *Pipeline) Ingest(ctx context.Context, raw extract.RawSource) (*IngestResult, error) {
	res := &IngestResult{
		RunID:  uuid.NewString(),
		Source: raw,
	}

	l, err := p.tier0.Extract(ctx, raw)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: tier 0 on %s", raw.URL)
	}
	res.Ledger = l

	p.escalate(ctx, res, raw)

	// A candidate claiming an article host as its own site has mistaken the
	// publication for the company. Drop the identity; the rest of the
	// evidence stands.
	if reason, hit := p.quality.CheckDuplicate(l); hit {
		zap.L().Info("pipeline: identity cleared",
			zap.String("run_id", res.RunID),
			zap.String("domain", l.CanonicalDomain),
			zap.String("reason", reason),
		)
		l.ClearIdentity()
	}

	res.Decision = p.inferer.ShouldEnrich(l)
	res.Quality = p.quality.Validate(l)
	if res.Decision.ShouldEnrich {
		p.enrich(ctx, res, raw)
		// The paid tier may have filled fields the first evaluation penalized.
		res.Quality = p.quality.Validate(l)
	}
	res.NeedsDeepEnrichment = l.NeedsDeepEnrichment()
	if !res.Quality.Valid {
		zap.L().Info("pipeline: candidate rejected",
			zap.String("run_id", res.RunID),
			zap.String("name", l.CompanyName),
			zap.String("reason", res.Quality.Reason),
			zap.Float64("score", res.Quality.Score),
		)
		return res, nil
	}

	resolution, err := p.resolver.Resolve(ctx, l)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: resolve %s", l.CompanyName)
	}
	res.Resolution = resolution

	zap.L().Info("pipeline: candidate evaluated",
		zap.String("run_id", res.RunID),
		zap.String("name", l.CompanyName),
		zap.String("domain", l.CanonicalDomain),
		zap.Float64("overall", l.Overall),
		zap.Float64("quality_score", res.Quality.Score),
		zap.String("action", string(resolution.Action)),
	)
	return res, nil
}

// escalate runs tier 1 when tier 0 left the ledger incomplete. Tier 1
// failures degrade to the tier 0 ledger rather than failing the run.
func (p *Pipeline) escalate(ctx context.Context, res *IngestResult, raw extract.RawSource) {
	if p.tier1 == nil || res.Ledger.CompleteForEarlyScoring() {
		return
	}

	l1, err := p.tier1.Extract(ctx, raw)
	if err != nil {
		zap.L().Warn("pipeline: tier 1 failed, continuing with tier 0",
			zap.String("run_id", res.RunID),
			zap.String("url", raw.URL),
			zap.Error(err),
		)
		if l1 != nil {
			res.Ledger.MergeFrom(l1) // keep the failure's crawl event
		}
		return
	}
	res.Ledger.MergeFrom(l1)
}

// enrich runs the tier 2 LLM call when configured and affordable, merging
// whatever comes back. Failures and budget exhaustion degrade gracefully.
func (p *Pipeline) enrich(ctx context.Context, res *IngestResult, raw extract.RawSource) {
	if p.enricher == nil {
		return
	}
	if p.budget.Exceeded() {
		zap.L().Warn("pipeline: enrichment skipped, budget exhausted",
			zap.String("run_id", res.RunID),
			zap.Float64("spent_usd", p.budget.Spent()),
		)
		return
	}

	partial, usage, err := p.enricher.Enrich(ctx, raw, res.Ledger)
	res.Usage.Add(usage)
	res.CostUSD = p.calc.Claude(p.model, usage.InputTokens, usage.OutputTokens,
		usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
	p.budget.Add(res.CostUSD)

	if err != nil {
		zap.L().Warn("pipeline: enrichment failed",
			zap.String("run_id", res.RunID),
			zap.String("url", raw.URL),
			zap.Error(err),
		)
		return
	}
	res.Ledger.MergeFrom(partial)
}

// Commit applies an evaluated result to the store: merge for duplicates,
// insert for new records. An insert that loses the race to another writer
// comes back as ErrDuplicateDomain and is rerouted through the merge path.
func (p *Pipeline) Commit(ctx context.Context, res *IngestResult) error {
	if res.Resolution == nil || !res.Quality.Valid {
		return nil
	}

	switch res.Resolution.Action {
	case model.ActionAutoMerge, model.ActionProbableMerge:
		return p.resolver.MergeEvidence(ctx, res.Resolution.ExistingID, res.Ledger)

	case model.ActionCreateNew:
		rec := res.Ledger.Record()
		id, err := p.store.Upsert(ctx, rec)
		if errors.Is(err, store.ErrDuplicateDomain) {
			return p.commitAsDuplicate(ctx, res)
		}
		if err != nil {
			return eris.Wrapf(err, "pipeline: insert %s", rec.CanonicalDomain)
		}
		zap.L().Info("pipeline: record created",
			zap.String("run_id", res.RunID),
			zap.String("id", id),
			zap.String("domain", rec.CanonicalDomain),
		)
		return nil
	}
	return nil
}

// commitAsDuplicate handles the insert race: someone else created the record
// between Resolve and Commit, so reclassify and merge into it.
func (p *Pipeline) commitAsDuplicate(ctx context.Context, res *IngestResult) error {
	existing, err := p.store.FindByCanonicalDomain(ctx, res.Ledger.CanonicalDomain)
	if err != nil {
		return eris.Wrapf(err, "pipeline: refetch after duplicate %s", res.Ledger.CanonicalDomain)
	}
	if existing == nil {
		return eris.Errorf("pipeline: duplicate reported but %s not found", res.Ledger.CanonicalDomain)
	}

	res.Resolution.IsDuplicate = true
	res.Resolution.ExistingID = existing.ID
	res.Resolution.MatchMethod = model.MatchCanonicalDomain
	res.Resolution.Action = model.ActionAutoMerge
	res.Resolution.Reasons = append(res.Resolution.Reasons, "insert_conflict")

	zap.L().Info("pipeline: insert conflict rerouted to merge",
		zap.String("run_id", res.RunID),
		zap.String("existing_id", existing.ID),
	)
	return p.resolver.MergeEvidence(ctx, existing.ID, res.Ledger)
}
