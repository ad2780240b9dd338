package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/internal/model"
	"github.com/sells-group/startup-intake/internal/store"
)

func seedRecord(t *testing.T, st store.Store, rec model.StartupRecord) string {
	t.Helper()
	id, err := st.Upsert(context.Background(), &rec)
	require.NoError(t, err)
	return id
}

func candidateLedger(name, domain string) *ledger.Ledger {
	l := ledger.New(nil)
	prov := model.Provenance{Extractor: "test"}
	if name != "" {
		l.SetField(heuristics.FieldCompanyName, name, 0.8, prov)
	}
	if domain != "" {
		l.SetCanonicalDomain(domain, 0.8, prov)
	}
	return l
}

func TestResolve_CanonicalDomainMatch(t *testing.T) {
	st := store.NewMemory()
	existingID := seedRecord(t, st, model.StartupRecord{
		CanonicalDomain: "acme.io",
		CompanyName:     "Acme",
	})
	r := NewResolver(st, nil, nil, nil)

	res, err := r.Resolve(context.Background(), candidateLedger("Totally Different Name", "acme.io"))
	require.NoError(t, err)

	assert.True(t, res.IsDuplicate)
	assert.Equal(t, existingID, res.ExistingID)
	assert.Equal(t, model.MatchCanonicalDomain, res.MatchMethod)
	assert.InDelta(t, 0.95, res.Confidence, 0.001)
	assert.Equal(t, model.ActionAutoMerge, res.Action)
}

func TestResolve_NoMatchCreatesNew(t *testing.T) {
	st := store.NewMemory()
	r := NewResolver(st, nil, nil, nil)

	res, err := r.Resolve(context.Background(), candidateLedger("Acme", "acme.io"))
	require.NoError(t, err)

	assert.False(t, res.IsDuplicate)
	assert.Equal(t, model.ActionCreateNew, res.Action)
}

func TestResolve_FuzzyAboveThreshold(t *testing.T) {
	st := store.NewMemory()
	existingID := seedRecord(t, st, model.StartupRecord{
		CompanyName: "Acme Robotics",
		HQCity:      "Austin",
	})
	r := NewResolver(st, nil, nil, nil)

	l := candidateLedger("Acme Robotics Inc", "")
	l.HQCity = "Austin"

	res, err := r.Resolve(context.Background(), l)
	require.NoError(t, err)

	assert.True(t, res.IsDuplicate)
	assert.Equal(t, existingID, res.ExistingID)
	assert.Equal(t, model.MatchFuzzy, res.MatchMethod)
	assert.Equal(t, model.ActionProbableMerge, res.Action)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
	assert.Contains(t, res.Reasons, "hq_city_match")
}

func TestResolve_FuzzyBelowThreshold(t *testing.T) {
	st := store.NewMemory()
	seedRecord(t, st, model.StartupRecord{CompanyName: "Acme Robotics"})
	r := NewResolver(st, nil, nil, nil)

	// "acme" vs "acme robotics": 4/13 ≈ 0.31, no boosts
	res, err := r.Resolve(context.Background(), candidateLedger("Acme", ""))
	require.NoError(t, err)
	assert.Equal(t, model.ActionCreateNew, res.Action)
}

func TestResolve_FuzzyExactlyAtThreshold(t *testing.T) {
	st := store.NewMemory()
	existingID := seedRecord(t, st, model.StartupRecord{CompanyName: "Dataflowhq"})
	r := NewResolver(st, nil, nil, nil)

	// "dataflow" vs "dataflowhq": two edits over ten runes, 8/10 = 0.80, no boosts
	res, err := r.Resolve(context.Background(), candidateLedger("Dataflow", ""))
	require.NoError(t, err)

	assert.True(t, res.IsDuplicate)
	assert.Equal(t, existingID, res.ExistingID)
	assert.Equal(t, model.ActionProbableMerge, res.Action)
	assert.InDelta(t, 0.80, res.Confidence, 0.001)
}

func TestResolve_FuzzyJustUnderThreshold(t *testing.T) {
	st := store.NewMemory()
	seedRecord(t, st, model.StartupRecord{CompanyName: "Gridfoxhq"})
	r := NewResolver(st, nil, nil, nil)

	// "gridfox" vs "gridfoxhq": two edits over nine runes, 7/9 ≈ 0.78, no boosts
	res, err := r.Resolve(context.Background(), candidateLedger("Gridfox", ""))
	require.NoError(t, err)

	assert.False(t, res.IsDuplicate)
	assert.Equal(t, model.ActionCreateNew, res.Action)
}

func TestResolve_DifferentDomainsVetoFuzzyMatch(t *testing.T) {
	st := store.NewMemory()
	seedRecord(t, st, model.StartupRecord{
		CompanyName:     "Acme Robotics",
		CanonicalDomain: "acmerobotics.com",
		HQCity:          "Austin",
	})
	r := NewResolver(st, nil, nil, nil)

	l := candidateLedger("Acme Robotics", "acme.io")
	l.HQCity = "Austin"

	res, err := r.Resolve(context.Background(), l)
	require.NoError(t, err)

	assert.False(t, res.IsDuplicate)
	assert.Equal(t, model.ActionCreateNew, res.Action)
	assert.Contains(t, res.Reasons, model.ReasonDifferentDomains)
}

func TestResolve_GenericHostsExemptFromVeto(t *testing.T) {
	st := store.NewMemory()
	existingID := seedRecord(t, st, model.StartupRecord{
		CompanyName:     "Acme Robotics",
		CanonicalDomain: "acme.github.io",
	})
	r := NewResolver(st, nil, nil, nil)

	res, err := r.Resolve(context.Background(), candidateLedger("Acme Robotics", "acme.io"))
	require.NoError(t, err)

	assert.True(t, res.IsDuplicate)
	assert.Equal(t, existingID, res.ExistingID)
	assert.Equal(t, model.ActionProbableMerge, res.Action)
}

func TestResolve_RedirectProbe(t *testing.T) {
	st := store.NewMemory()
	existingID := seedRecord(t, st, model.StartupRecord{
		CompanyName:     "Acme Robotics",
		CanonicalDomain: "acmerobotics.com",
		WebsiteURL:      "https://acmerobotics.com",
	})

	prober := func(_ context.Context, urlA, urlB string) (bool, error) {
		return urlA == "https://acme.io" && urlB == "https://acmerobotics.com", nil
	}
	r := NewResolver(st, nil, prober, nil)

	l := candidateLedger("Acme Robotics", "acme.io")
	l.WebsiteURL = "https://acme.io"

	res, err := r.Resolve(context.Background(), l)
	require.NoError(t, err)

	assert.True(t, res.IsDuplicate)
	assert.Equal(t, existingID, res.ExistingID)
	assert.Equal(t, model.MatchWebsiteRedirect, res.MatchMethod)
	assert.InDelta(t, 0.90, res.Confidence, 0.001)
	assert.Equal(t, model.ActionAutoMerge, res.Action)
}

func TestResolve_CacheHitSkipsStore(t *testing.T) {
	st := store.NewMemory()
	cache := NewMemoryCache()
	cache.Set("acme.io", &model.StartupRecord{ID: "cached-id", CanonicalDomain: "acme.io"})
	r := NewResolver(st, cache, nil, nil)

	res, err := r.Resolve(context.Background(), candidateLedger("Acme", "acme.io"))
	require.NoError(t, err)
	assert.Equal(t, "cached-id", res.ExistingID)
}

func TestMergeEvidence_AppendsAndInvalidates(t *testing.T) {
	st := store.NewMemory()
	cache := NewMemoryCache()
	existingID := seedRecord(t, st, model.StartupRecord{
		CanonicalDomain: "acme.io",
		CompanyName:     "Acme",
	})
	r := NewResolver(st, cache, nil, nil)

	l := candidateLedger("Acme Robotics", "acme.io")
	l.AddSignal(model.Signal{Kind: model.SignalTraction, Text: "500 customers", Confidence: 0.6})
	l.AddEvidence("https://news.example.com/a", "article_scan", "Acme Robotics raised")

	require.NoError(t, r.MergeEvidence(context.Background(), existingID, l))

	rec, err := st.FindByCanonicalDomain(context.Background(), "acme.io")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, rec.Aliases, "Acme Robotics")
	assert.Len(t, rec.Extracted.TractionSignals, 1)
	assert.Len(t, rec.Evidence, 1)

	_, cached := cache.Get("acme.io")
	assert.False(t, cached)
}

func TestMergeEvidence_NoDedupAcrossMerges(t *testing.T) {
	st := store.NewMemory()
	existingID := seedRecord(t, st, model.StartupRecord{
		CanonicalDomain: "acme.io",
		CompanyName:     "Acme",
	})
	r := NewResolver(st, nil, nil, nil)

	for range 2 {
		l := candidateLedger("Acme", "acme.io")
		l.AddSignal(model.Signal{Kind: model.SignalTraction, Text: "500 customers", Confidence: 0.6})
		require.NoError(t, r.MergeEvidence(context.Background(), existingID, l))
	}

	rec, err := st.FindByCanonicalDomain(context.Background(), "acme.io")
	require.NoError(t, err)
	assert.Len(t, rec.Extracted.TractionSignals, 2)
}
