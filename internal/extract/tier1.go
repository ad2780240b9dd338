package extract

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/internal/model"
)

// Confidence levels assigned by the article tier.
const (
	articleWebsiteConfidence  = 0.7
	articleOneLinerConfidence = 0.6
	articleCategoryConfidence = 0.55
	articleStageConfidence    = 0.5
	articleSignalConfidence   = 0.6
)

// maxSignalsPerKind bounds how many keyword hits one article can contribute.
const maxSignalsPerKind = 5

var tractionKeywords = []string{
	"customers", "revenue", "users", "arr", "mrr", "growth",
	"waitlist", "downloads", "bookings", "pilot",
}

var teamKeywords = []string{
	"founded by", "co-founder", "cofounder", "former", "ex-google",
	"ex-meta", "ex-stripe", "phd", "previously built",
}

// ArticleExtractor is tier 1: it fetches the article page and scans its
// markup for the company's own site, description, category, and signals.
type ArticleExtractor struct {
	fetcher *Fetcher
	tables  *heuristics.Tables
}

// NewArticleExtractor creates the tier 1 extractor.
func NewArticleExtractor(fetcher *Fetcher, tables *heuristics.Tables) *ArticleExtractor {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &ArticleExtractor{fetcher: fetcher, tables: tables}
}

func (e *ArticleExtractor) Name() string { return "article_scan" }
func (e *ArticleExtractor) Tier() int    { return 1 }

// Extract fetches the page and scans it. Feed items always fetch: their
// Content is the feed description, not the article markup. Fetch failures
// are errors; thin pages are not.
func (e *ArticleExtractor) Extract(ctx context.Context, raw RawSource) (*ledger.Ledger, error) {
	html := raw.Content
	if html == "" || raw.Kind == KindRSSItem {
		body, err := e.fetcher.Get(ctx, raw.URL)
		if err != nil {
			l := ledger.New(e.tables)
			l.AddCrawl(raw.URL, e.Tier(), "fetch_failed")
			return l, err
		}
		html = string(body)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(err, "tier1: parse html from %s", raw.URL)
	}

	l := ledger.New(e.tables)
	prov := model.Provenance{
		SourceURL:  raw.URL,
		Extractor:  e.Name(),
		CapturedAt: time.Now(),
	}

	if desc := metaDescription(doc); desc != "" {
		l.SetField(heuristics.FieldOneLiner, desc, articleOneLinerConfidence, prov)
	}

	if site := discoverWebsite(doc, raw.URL, e.tables); site != "" {
		l.SetField(heuristics.FieldWebsiteURL, site, articleWebsiteConfidence, prov)
		l.SetField(heuristics.FieldCanonicalDomain, site, articleWebsiteConfidence, prov)
	}

	body := bodyText(doc)
	lower := strings.ToLower(body)

	if primary, tags := categorize(lower, e.tables); primary != "" {
		l.SetField(heuristics.FieldCategoryPrimary, primary, articleCategoryConfidence, prov)
		l.SetField(heuristics.FieldCategoryTags, tags, articleCategoryConfidence, prov)
	}

	if stage := stageFromText(lower, e.tables); stage != "" {
		l.SetField(heuristics.FieldStageEstimate, stage, articleStageConfidence, prov)
	}

	for _, s := range scanSignals(body, model.SignalTraction, tractionKeywords) {
		s.SourceURL = raw.URL
		l.AddSignal(s)
	}
	for _, s := range scanSignals(body, model.SignalTeam, teamKeywords) {
		s.SourceURL = raw.URL
		l.AddSignal(s)
	}

	snippet := metaDescription(doc)
	if snippet == "" {
		snippet = raw.Title
	}
	l.AddEvidence(raw.URL, e.Name(), snippet)
	l.AddCrawl(raw.URL, e.Tier(), "ok")

	zap.L().Debug("tier1: article scanned",
		zap.String("url", raw.URL),
		zap.String("domain", l.CanonicalDomain),
		zap.Float64("overall", l.Overall),
	)
	return l, nil
}

// metaDescription prefers the og:description tag, falling back to the plain
// meta description.
func metaDescription(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	if v, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// discoverWebsite finds the first outbound anchor pointing off the article's
// own host that is not another article host. That link is the best guess at
// the company's own site.
func discoverWebsite(doc *goquery.Document, articleURL string, tables *heuristics.Tables) string {
	articleHost, _ := ledger.CanonicalizeDomain(articleURL)

	var found string
	doc.Find("article a[href], .post-content a[href], a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		host, ok := ledger.CanonicalizeDomain(href)
		if !ok || host == articleHost || tables.IsArticleHost(host) {
			return true
		}
		found = href
		return false
	})
	return found
}

// bodyText concatenates paragraph text, which is where announcement articles
// keep their substance.
func bodyText(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		b.WriteString(text)
		b.WriteString(" ")
	})
	return strings.TrimSpace(b.String())
}

// categorize scores each sector by keyword hits in the text and returns the
// best sector plus every sector that matched at all.
func categorize(lowerText string, tables *heuristics.Tables) (string, []string) {
	var primary string
	var bestHits int
	var tags []string

	for sector, keywords := range tables.SectorKeywords {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(lowerText, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		tags = append(tags, sector)
		if hits > bestHits {
			primary, bestHits = sector, hits
		}
	}
	return primary, tags
}

// stageFromText returns the longest stage keyword present in the text.
func stageFromText(lowerText string, tables *heuristics.Tables) string {
	var best string
	for kw := range tables.StageNumbers {
		if strings.Contains(lowerText, kw) && len(kw) > len(best) {
			best = kw
		}
	}
	return best
}

// scanSignals extracts sentences mentioning any of the keywords as signals
// of the given kind.
func scanSignals(body string, kind model.SignalKind, keywords []string) []model.Signal {
	var signals []model.Signal
	for _, sentence := range splitSentences(body) {
		lower := strings.ToLower(sentence)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				signals = append(signals, model.Signal{
					Kind:       kind,
					Text:       sentence,
					Confidence: articleSignalConfidence,
				})
				break
			}
		}
		if len(signals) >= maxSignalsPerKind {
			break
		}
	}
	return signals
}

func splitSentences(text string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
