// Package ledger implements the per-candidate confidence ledger: an
// accumulator of extracted facts where every field carries the confidence
// and provenance it arrived with, and the overall confidence is a weighted
// average over the fields currently set.
package ledger

import (
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/model"
)

// maxSnippet caps stored snippet length for signals and evidence.
const maxSnippet = 200

// Ledger accumulates evidence about one candidate company. It is built
// strictly sequentially by one goroutine; it is discarded after being merged
// into an existing record or becoming a new record itself.
type Ledger struct {
	StartupID       string
	CanonicalDomain string
	CompanyName     string
	Aliases         []string
	WebsiteURL      string

	OneLiner        string
	CategoryPrimary string
	CategoryTags    []string
	StageEstimate   string
	HQCity          string

	Traction     []model.Signal
	Team         []model.Signal
	Market       []model.Signal
	Moat         []model.Signal
	Funding      []model.FundingMention
	Investors    []model.InvestorMention
	Accelerators []model.Accelerator

	Evidence        []model.EvidenceItem
	CrawlHistory    []model.CrawlEvent
	SourceFirstSeen time.Time
	SourceLastSeen  time.Time
	FieldProvenance map[string]model.Provenance

	Confidence map[string]float64
	Overall    float64

	tables *heuristics.Tables
	now    func() time.Time
}

// New creates an empty ledger. A nil tables argument uses the defaults.
func New(tables *heuristics.Tables) *Ledger {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &Ledger{
		FieldProvenance: make(map[string]model.Provenance),
		Confidence:      make(map[string]float64),
		tables:          tables,
		now:             time.Now,
	}
}

// Tables exposes the heuristic tables this ledger was built with.
func (l *Ledger) Tables() *heuristics.Tables { return l.tables }

// SetField stores a value with its confidence and provenance, then
// recomputes the overall confidence. A nil value is a no-op. Unknown field
// names are logged and dropped.
func (l *Ledger) SetField(name string, value any, confidence float64, prov model.Provenance) {
	if value == nil {
		return
	}

	switch name {
	case heuristics.FieldCompanyName:
		s, ok := nonEmptyString(value)
		if !ok {
			return
		}
		l.CompanyName = s
	case heuristics.FieldWebsiteURL:
		s, ok := nonEmptyString(value)
		if !ok {
			return
		}
		l.WebsiteURL = s
	case heuristics.FieldOneLiner:
		s, ok := nonEmptyString(value)
		if !ok {
			return
		}
		l.OneLiner = s
	case heuristics.FieldCategoryPrimary:
		s, ok := nonEmptyString(value)
		if !ok {
			return
		}
		l.CategoryPrimary = s
	case heuristics.FieldCategoryTags:
		tags := model.NormalizeStringList(value)
		if len(tags) == 0 {
			return
		}
		l.CategoryTags = tags
	case heuristics.FieldStageEstimate:
		s, ok := nonEmptyString(value)
		if !ok {
			return
		}
		l.StageEstimate = strings.ToLower(s)
	case heuristics.FieldHQCity:
		s, ok := nonEmptyString(value)
		if !ok {
			return
		}
		l.HQCity = s
	case heuristics.FieldCanonicalDomain:
		l.SetCanonicalDomain(valueString(value), confidence, prov)
		return
	default:
		zap.L().Debug("ledger: unknown field", zap.String("field", name))
		return
	}

	l.Confidence[name] = confidence
	l.FieldProvenance[name] = prov
	l.recomputeOverall()
}

// SetCanonicalDomain canonicalizes the input (lower-cased hostname, leading
// www. stripped) and adopts it as the candidate's identity, provisionally
// setting the startup ID. Unparsable input is a no-op: the ledger stays
// identity-less and will fail the quality gate downstream.
func (l *Ledger) SetCanonicalDomain(rawURL string, confidence float64, prov model.Provenance) {
	domain, ok := CanonicalizeDomain(rawURL)
	if !ok {
		zap.L().Debug("ledger: unparsable domain input", zap.String("raw", rawURL))
		return
	}
	l.CanonicalDomain = domain
	l.StartupID = domain
	l.Confidence[heuristics.FieldCanonicalDomain] = confidence
	l.FieldProvenance[heuristics.FieldCanonicalDomain] = prov
	l.recomputeOverall()
}

// ClearIdentity removes the canonical domain, used when the prefilter
// determines the domain is an article host rather than the company's site.
func (l *Ledger) ClearIdentity() {
	l.CanonicalDomain = ""
	l.StartupID = ""
	delete(l.Confidence, heuristics.FieldCanonicalDomain)
	delete(l.FieldProvenance, heuristics.FieldCanonicalDomain)
	l.recomputeOverall()
}

// AddSignal appends one signal to the collection for its kind. Snippets are
// truncated; no deduplication happens at append time.
func (l *Ledger) AddSignal(s model.Signal) {
	s.Text = truncate(s.Text, maxSnippet)
	if s.CapturedAt.IsZero() {
		s.CapturedAt = l.now()
	}
	switch s.Kind {
	case model.SignalTraction:
		l.Traction = append(l.Traction, s)
	case model.SignalTeam:
		l.Team = append(l.Team, s)
	case model.SignalMarket:
		l.Market = append(l.Market, s)
	case model.SignalMoat:
		l.Moat = append(l.Moat, s)
	default:
		zap.L().Debug("ledger: unknown signal kind", zap.String("kind", string(s.Kind)))
	}
}

// AddFunding appends a funding mention.
func (l *Ledger) AddFunding(f model.FundingMention) {
	f.Text = truncate(f.Text, maxSnippet)
	if f.CapturedAt.IsZero() {
		f.CapturedAt = l.now()
	}
	l.Funding = append(l.Funding, f)
}

// AddInvestor appends an investor mention.
func (l *Ledger) AddInvestor(inv model.InvestorMention) {
	if inv.CapturedAt.IsZero() {
		inv.CapturedAt = l.now()
	}
	l.Investors = append(l.Investors, inv)
}

// AddAccelerator appends an accelerator participation record.
func (l *Ledger) AddAccelerator(a model.Accelerator) {
	if a.CapturedAt.IsZero() {
		a.CapturedAt = l.now()
	}
	l.Accelerators = append(l.Accelerators, a)
}

// AddEvidence appends to the evidence trail and refreshes the
// first-seen/last-seen bounds from wall-clock call time.
func (l *Ledger) AddEvidence(url, source, snippet string) {
	now := l.now()
	l.Evidence = append(l.Evidence, model.EvidenceItem{
		URL:        url,
		Source:     source,
		Snippet:    truncate(snippet, maxSnippet),
		CapturedAt: now,
	})
	if l.SourceFirstSeen.IsZero() {
		l.SourceFirstSeen = now
	}
	l.SourceLastSeen = now
}

// AddCrawl records one extraction attempt in the crawl history.
func (l *Ledger) AddCrawl(url string, tier int, status string) {
	l.CrawlHistory = append(l.CrawlHistory, model.CrawlEvent{
		URL:    url,
		Tier:   tier,
		Status: status,
		At:     l.now(),
	})
}

// CompleteForEarlyScoring reports whether the ledger carries enough identity
// and confidence for the early scoring model.
func (l *Ledger) CompleteForEarlyScoring() bool {
	return l.CompanyName != "" && l.CanonicalDomain != "" && l.Overall >= 0.5
}

// NeedsDeepEnrichment reports whether the snapshot is still too thin to be
// useful without further extraction.
func (l *Ledger) NeedsDeepEnrichment() bool {
	if l.Overall < 0.7 {
		return true
	}
	if l.CategoryPrimary == "" || l.StageEstimate == "" || l.OneLiner == "" {
		return true
	}
	return len(l.Traction) == 0
}

// MergeFrom folds a partial ledger produced by a higher extraction tier into
// this one. Fields merge highest-confidence-wins, never last-write-wins;
// signal collections and evidence are appended.
func (l *Ledger) MergeFrom(other *Ledger) {
	if other == nil {
		return
	}

	for field, conf := range other.Confidence {
		if existing, ok := l.Confidence[field]; ok && existing >= conf {
			continue
		}
		prov := other.FieldProvenance[field]
		switch field {
		case heuristics.FieldCanonicalDomain:
			// Identity once set is never overwritten by a later tier.
			if l.CanonicalDomain == "" {
				l.SetCanonicalDomain(other.CanonicalDomain, conf, prov)
			}
		case heuristics.FieldCompanyName:
			l.SetField(field, other.CompanyName, conf, prov)
		case heuristics.FieldWebsiteURL:
			l.SetField(field, other.WebsiteURL, conf, prov)
		case heuristics.FieldOneLiner:
			l.SetField(field, other.OneLiner, conf, prov)
		case heuristics.FieldCategoryPrimary:
			l.SetField(field, other.CategoryPrimary, conf, prov)
		case heuristics.FieldCategoryTags:
			l.SetField(field, other.CategoryTags, conf, prov)
		case heuristics.FieldStageEstimate:
			l.SetField(field, other.StageEstimate, conf, prov)
		case heuristics.FieldHQCity:
			l.SetField(field, other.HQCity, conf, prov)
		}
	}

	l.Traction = append(l.Traction, other.Traction...)
	l.Team = append(l.Team, other.Team...)
	l.Market = append(l.Market, other.Market...)
	l.Moat = append(l.Moat, other.Moat...)
	l.Funding = append(l.Funding, other.Funding...)
	l.Investors = append(l.Investors, other.Investors...)
	l.Accelerators = append(l.Accelerators, other.Accelerators...)
	l.Evidence = append(l.Evidence, other.Evidence...)
	l.CrawlHistory = append(l.CrawlHistory, other.CrawlHistory...)

	if l.SourceFirstSeen.IsZero() || (!other.SourceFirstSeen.IsZero() && other.SourceFirstSeen.Before(l.SourceFirstSeen)) {
		l.SourceFirstSeen = other.SourceFirstSeen
	}
	if other.SourceLastSeen.After(l.SourceLastSeen) {
		l.SourceLastSeen = other.SourceLastSeen
	}
}

// recomputeOverall derives the overall confidence as the weighted average of
// the currently set fields. An empty ledger has overall 0.
func (l *Ledger) recomputeOverall() {
	var sum, totalWeight float64
	for field, conf := range l.Confidence {
		w := l.tables.Weight(field)
		sum += conf * w
		totalWeight += w
	}
	if totalWeight == 0 {
		l.Overall = 0
		return
	}
	l.Overall = sum / totalWeight
}

// CanonicalizeDomain parses the input as a URL (prefixing https:// when
// schemeless), lower-cases the hostname, and strips a leading www. label.
// The second return is false when no usable host can be derived.
// Canonicalization is idempotent: canon(canon(u)) == canon(u).
func CanonicalizeDomain(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" || !strings.Contains(host, ".") {
		return "", false
	}
	return host, true
}

// truncate caps s at n runes; slicing bytes could split a multibyte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func nonEmptyString(v any) (string, bool) {
	s := strings.TrimSpace(valueString(v))
	return s, s != ""
}

func valueString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
