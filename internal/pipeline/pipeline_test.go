package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/startup-intake/internal/cost"
	"github.com/sells-group/startup-intake/internal/extract"
	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/internal/model"
	"github.com/sells-group/startup-intake/internal/resolve"
	"github.com/sells-group/startup-intake/internal/store"
	"github.com/sells-group/startup-intake/pkg/anthropic"
)

// stubExtractor delegates to a func and counts calls.
type stubExtractor struct {
	name  string
	tier  int
	fn    func(extract.RawSource) (*ledger.Ledger, error)
	calls int
}

func (s *stubExtractor) Name() string { return s.name }
func (s *stubExtractor) Tier() int    { return s.tier }
func (s *stubExtractor) Extract(_ context.Context, raw extract.RawSource) (*ledger.Ledger, error) {
	s.calls++
	return s.fn(raw)
}

type stubEnricher struct {
	fn    func(extract.RawSource, *ledger.Ledger) (*ledger.Ledger, anthropic.TokenUsage, error)
	calls int
}

func (s *stubEnricher) Name() string { return "llm_enrich" }
func (s *stubEnricher) Enrich(_ context.Context, raw extract.RawSource, current *ledger.Ledger) (*ledger.Ledger, anthropic.TokenUsage, error) {
	s.calls++
	return s.fn(raw, current)
}

func tier0Ledger() *ledger.Ledger {
	l := ledger.New(nil)
	prov := model.Provenance{Extractor: "rss_headline"}
	l.SetField(heuristics.FieldCompanyName, "Acme Robotics", 0.6, prov)
	l.SetField(heuristics.FieldStageEstimate, "seed", 0.5, prov)
	l.SetField(heuristics.FieldOneLiner, "Acme builds robots", 0.4, prov)
	l.AddEvidence("https://news.example.com/acme", "rss_headline", "Acme Robotics Raises $5M Seed Round")
	l.AddCrawl("https://news.example.com/acme", 0, "ok")
	return l
}

func tier1Ledger() *ledger.Ledger {
	l := ledger.New(nil)
	prov := model.Provenance{Extractor: "article_scan"}
	l.SetField(heuristics.FieldWebsiteURL, "https://acme.io", 0.7, prov)
	l.SetCanonicalDomain("https://acme.io", 0.7, prov)
	l.SetField(heuristics.FieldOneLiner, "Warehouse picking robots for mid-size 3PLs", 0.6, prov)
	l.SetField(heuristics.FieldCategoryPrimary, "robotics", 0.55, prov)
	l.SetField(heuristics.FieldCategoryTags, []string{"robotics"}, 0.55, prov)
	l.AddCrawl("https://news.example.com/acme", 1, "ok")
	return l
}

func fixedExtractor(name string, tier int, build func() *ledger.Ledger) *stubExtractor {
	return &stubExtractor{
		name: name,
		tier: tier,
		fn: func(extract.RawSource) (*ledger.Ledger, error) {
			return build(), nil
		},
	}
}

func newTestPipeline(st store.Store, tier1 extract.Extractor, enricher extract.Enricher, budget *cost.Budget) *Pipeline {
	return New(Options{
		Tier0:    fixedExtractor("rss_headline", 0, tier0Ledger),
		Tier1:    tier1,
		Enricher: enricher,
		Store:    st,
		Resolver: resolve.NewResolver(st, nil, nil, nil),
		Model:    "claude-haiku-4-5-20251001",
		Budget:   budget,
	})
}

func TestIngestAndCommit_CreatesRecord(t *testing.T) {
	st := store.NewMemory()
	tier1 := fixedExtractor("article_scan", 1, tier1Ledger)
	p := newTestPipeline(st, tier1, nil, nil)

	raw := extract.RawSource{Kind: extract.KindRSSItem, URL: "https://news.example.com/acme", Title: "Acme Robotics Raises $5M Seed Round"}
	res, err := p.Ingest(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 1, tier1.calls)
	assert.Equal(t, "Acme Robotics", res.Ledger.CompanyName)
	assert.Equal(t, "acme.io", res.Ledger.CanonicalDomain)
	// tier 1's higher-confidence one-liner wins the merge
	assert.Equal(t, "Warehouse picking robots for mid-size 3PLs", res.Ledger.OneLiner)

	assert.False(t, res.Decision.ShouldEnrich)
	assert.True(t, res.Quality.Valid)
	assert.Equal(t, 100.0, res.Quality.Score)
	require.NotNil(t, res.Resolution)
	assert.Equal(t, model.ActionCreateNew, res.Resolution.Action)
	assert.Equal(t, "created", res.ActionLabel())

	require.NoError(t, p.Commit(context.Background(), res))

	rec, err := st.FindByCanonicalDomain(context.Background(), "acme.io")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Acme Robotics", rec.CompanyName)
	assert.NotEmpty(t, rec.Evidence)
	assert.Len(t, rec.CrawlHistory, 2)
}

func TestIngest_SkipsEscalationWhenComplete(t *testing.T) {
	st := store.NewMemory()
	tier1 := fixedExtractor("article_scan", 1, tier1Ledger)
	p := New(Options{
		Tier0: fixedExtractor("rss_headline", 0, func() *ledger.Ledger {
			l := ledger.New(nil)
			prov := model.Provenance{Extractor: "rss_headline"}
			l.SetField(heuristics.FieldCompanyName, "Acme Robotics", 0.7, prov)
			l.SetCanonicalDomain("acme.io", 0.7, prov)
			return l
		}),
		Tier1:    tier1,
		Store:    st,
		Resolver: resolve.NewResolver(st, nil, nil, nil),
	})

	_, err := p.Ingest(context.Background(), extract.RawSource{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, 0, tier1.calls)
}

func TestIngestAndCommit_MergesIntoExisting(t *testing.T) {
	st := store.NewMemory()
	_, err := st.Upsert(context.Background(), &model.StartupRecord{
		CanonicalDomain: "acme.io",
		CompanyName:     "Acme",
	})
	require.NoError(t, err)

	tier1 := fixedExtractor("article_scan", 1, tier1Ledger)
	p := newTestPipeline(st, tier1, nil, nil)

	res, err := p.Ingest(context.Background(), extract.RawSource{URL: "https://news.example.com/acme"})
	require.NoError(t, err)

	require.NotNil(t, res.Resolution)
	assert.True(t, res.Resolution.IsDuplicate)
	assert.Equal(t, model.ActionAutoMerge, res.Resolution.Action)
	assert.Equal(t, "merged:canonical_domain", res.ActionLabel())

	require.NoError(t, p.Commit(context.Background(), res))

	rec, err := st.FindByCanonicalDomain(context.Background(), "acme.io")
	require.NoError(t, err)
	assert.Contains(t, rec.Aliases, "Acme Robotics")
	assert.NotEmpty(t, rec.Evidence)
}

func TestIngest_ClearsArticleHostIdentity(t *testing.T) {
	st := store.NewMemory()
	p := New(Options{
		Tier0: fixedExtractor("rss_headline", 0, func() *ledger.Ledger {
			l := ledger.New(nil)
			prov := model.Provenance{Extractor: "rss_headline"}
			l.SetField(heuristics.FieldCompanyName, "Acme Robotics", 0.7, prov)
			l.SetCanonicalDomain("techcrunch.com", 0.7, prov)
			return l
		}),
		Store:    st,
		Resolver: resolve.NewResolver(st, nil, nil, nil),
	})

	res, err := p.Ingest(context.Background(), extract.RawSource{URL: "https://techcrunch.com/story"})
	require.NoError(t, err)

	assert.Empty(t, res.Ledger.CanonicalDomain)
	assert.Equal(t, model.EnrichRecrawl, res.Decision.Action)
	assert.False(t, res.Quality.Valid)
	assert.Equal(t, model.ReasonScoreTooLow, res.Quality.Reason)
	assert.Nil(t, res.Resolution)
	assert.Equal(t, "rejected:quality_score_too_low", res.ActionLabel())
}

func TestCommit_RejectedResultIsNoOp(t *testing.T) {
	st := store.NewMemory()
	p := New(Options{
		Tier0: fixedExtractor("rss_headline", 0, func() *ledger.Ledger {
			l := tier1Ledger()
			prov := model.Provenance{Extractor: "rss_headline"}
			l.SetField(heuristics.FieldCompanyName, "Subscribe To Our Newsletter", 0.7, prov)
			return l
		}),
		Store:    st,
		Resolver: resolve.NewResolver(st, nil, nil, nil),
	})

	res, err := p.Ingest(context.Background(), extract.RawSource{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, model.ReasonGarbageName, res.Quality.Reason)

	require.NoError(t, p.Commit(context.Background(), res))
	rec, err := st.FindByCanonicalDomain(context.Background(), "acme.io")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIngest_EnrichesWhenCoreFieldsMissing(t *testing.T) {
	st := store.NewMemory()
	enricher := &stubEnricher{
		fn: func(_ extract.RawSource, _ *ledger.Ledger) (*ledger.Ledger, anthropic.TokenUsage, error) {
			l := ledger.New(nil)
			prov := model.Provenance{Extractor: "llm_enrich"}
			l.SetField(heuristics.FieldCategoryPrimary, "robotics", 0.85, prov)
			l.SetField(heuristics.FieldCategoryTags, []string{"robotics"}, 0.85, prov)
			return l, anthropic.TokenUsage{InputTokens: 1_000_000}, nil
		},
	}
	budget := cost.NewBudget(5)

	p := New(Options{
		Tier0: fixedExtractor("rss_headline", 0, func() *ledger.Ledger {
			l := ledger.New(nil)
			prov := model.Provenance{Extractor: "rss_headline"}
			l.SetField(heuristics.FieldCompanyName, "Acme Robotics", 0.6, prov)
			l.SetCanonicalDomain("acme.io", 0.6, prov)
			l.SetField(heuristics.FieldOneLiner, "Warehouse robots for mid-size 3PLs", 0.6, prov)
			l.SetField(heuristics.FieldStageEstimate, "seed", 0.6, prov)
			return l
		}),
		Enricher: enricher,
		Store:    st,
		Resolver: resolve.NewResolver(st, nil, nil, nil),
		Model:    "claude-haiku-4-5-20251001",
		Budget:   budget,
	})

	res, err := p.Ingest(context.Background(), extract.RawSource{URL: "https://example.com"})
	require.NoError(t, err)

	assert.Equal(t, 1, enricher.calls)
	assert.Equal(t, model.EnrichLLM, res.Decision.Action)
	assert.Equal(t, "robotics", res.Ledger.CategoryPrimary)
	assert.Equal(t, int64(1_000_000), res.Usage.InputTokens)
	// 1M input tokens at $0.80/MTok
	assert.InDelta(t, 0.80, res.CostUSD, 0.001)
	assert.InDelta(t, 0.80, budget.Spent(), 0.001)
	// enrichment added a category but no traction evidence
	assert.True(t, res.NeedsDeepEnrichment)
}

func TestIngest_SkipsEnrichmentWhenBudgetExhausted(t *testing.T) {
	st := store.NewMemory()
	enricher := &stubEnricher{
		fn: func(_ extract.RawSource, _ *ledger.Ledger) (*ledger.Ledger, anthropic.TokenUsage, error) {
			return ledger.New(nil), anthropic.TokenUsage{}, nil
		},
	}
	budget := cost.NewBudget(0.01)
	budget.Add(0.02)

	p := New(Options{
		Tier0: fixedExtractor("rss_headline", 0, func() *ledger.Ledger {
			l := ledger.New(nil)
			prov := model.Provenance{Extractor: "rss_headline"}
			l.SetField(heuristics.FieldCompanyName, "Acme Robotics", 0.6, prov)
			l.SetCanonicalDomain("acme.io", 0.6, prov)
			return l
		}),
		Enricher: enricher,
		Store:    st,
		Resolver: resolve.NewResolver(st, nil, nil, nil),
		Budget:   budget,
	})

	res, err := p.Ingest(context.Background(), extract.RawSource{URL: "https://example.com"})
	require.NoError(t, err)

	assert.True(t, res.Decision.ShouldEnrich)
	assert.Equal(t, 0, enricher.calls)
	assert.Zero(t, res.CostUSD)
}

// raceStore hides a pre-seeded record from lookups until an Upsert collides
// with it, simulating a concurrent writer creating the record between
// Resolve and Commit.
type raceStore struct {
	*store.MemoryStore
	mu     sync.Mutex
	hidden bool
}

func (s *raceStore) FindByCanonicalDomain(ctx context.Context, domain string) (*model.StartupRecord, error) {
	s.mu.Lock()
	hidden := s.hidden
	s.mu.Unlock()
	if hidden {
		return nil, nil
	}
	return s.MemoryStore.FindByCanonicalDomain(ctx, domain)
}

func (s *raceStore) Upsert(ctx context.Context, rec *model.StartupRecord) (string, error) {
	s.mu.Lock()
	if s.hidden {
		s.hidden = false
		s.mu.Unlock()
		return "", store.ErrDuplicateDomain
	}
	s.mu.Unlock()
	return s.MemoryStore.Upsert(ctx, rec)
}

func TestCommit_InsertConflictReroutesToMerge(t *testing.T) {
	inner := store.NewMemory()
	_, err := inner.Upsert(context.Background(), &model.StartupRecord{
		CanonicalDomain: "acme.io",
		CompanyName:     "Zephyr Holdings",
	})
	require.NoError(t, err)
	st := &raceStore{MemoryStore: inner, hidden: true}

	tier1 := fixedExtractor("article_scan", 1, tier1Ledger)
	p := newTestPipeline(st, tier1, nil, nil)

	res, err := p.Ingest(context.Background(), extract.RawSource{URL: "https://news.example.com/acme"})
	require.NoError(t, err)
	assert.Equal(t, model.ActionCreateNew, res.Resolution.Action)

	require.NoError(t, p.Commit(context.Background(), res))

	assert.Equal(t, model.ActionAutoMerge, res.Resolution.Action)
	assert.Contains(t, res.Resolution.Reasons, "insert_conflict")

	rec, err := inner.FindByCanonicalDomain(context.Background(), "acme.io")
	require.NoError(t, err)
	assert.Contains(t, rec.Aliases, "Acme Robotics")
}

func TestProcessBatch(t *testing.T) {
	st := store.NewMemory()
	tier0 := &stubExtractor{
		name: "rss_headline",
		fn: func(raw extract.RawSource) (*ledger.Ledger, error) {
			switch raw.URL {
			case "https://example.com/boom":
				return nil, errors.New("feed exploded")
			case "https://example.com/garbage":
				l := ledger.New(nil)
				l.SetField(heuristics.FieldCompanyName, "Click Here Now", 0.7, model.Provenance{Extractor: "rss_headline"})
				return l, nil
			default:
				return tier0Ledger(), nil
			}
		},
	}
	p := New(Options{
		Tier0:    tier0,
		Tier1:    fixedExtractor("article_scan", 1, tier1Ledger),
		Store:    st,
		Resolver: resolve.NewResolver(st, nil, nil, nil),
	})

	sources := []extract.RawSource{
		{URL: "https://example.com/good"},
		{URL: "https://example.com/garbage"},
		{URL: "https://example.com/boom"},
	}
	summary, err := p.ProcessBatch(context.Background(), sources, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 0, summary.Merged)
	assert.Equal(t, 1, summary.Rejected)
	assert.Equal(t, 1, summary.Failed)
}
