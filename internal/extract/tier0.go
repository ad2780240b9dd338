package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/internal/model"
)

// Confidence levels assigned by the headline tier. Headlines are cheap but
// noisy; nothing from this tier is trusted above 0.6.
const (
	headlineNameConfidence     = 0.6
	headlineStageConfidence    = 0.5
	headlineOneLinerConfidence = 0.4
	headlineFundingConfidence  = 0.5
)

// fundingHeadline matches announcement-style headlines:
// "Acme Robotics Raises $5M Seed Round to Automate Warehouses".
var fundingHeadline = regexp.MustCompile(
	`(?i)^(.{2,80}?)\s+(?:raises|raised|secures|secured|lands|closes|closed|announces)\s+` +
		`(\$[\d.]+\s*(?:million|billion|[mbk])?)` +
		`(?:\s+(?:in\s+)?(pre-seed|seed|series\s+[a-c]))?`)

// trailingRound strips " Round ..." and similar tails left after the stage.
var trailingRound = regexp.MustCompile(`(?i)\s+(round|funding|financing)\b.*$`)

// HeadlineExtractor is tier 0: it works entirely from the feed item's title
// and description, without fetching anything.
type HeadlineExtractor struct {
	tables *heuristics.Tables
}

// NewHeadlineExtractor creates the tier 0 extractor.
func NewHeadlineExtractor(tables *heuristics.Tables) *HeadlineExtractor {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &HeadlineExtractor{tables: tables}
}

func (e *HeadlineExtractor) Name() string { return "rss_headline" }
func (e *HeadlineExtractor) Tier() int    { return 0 }

// Extract parses the headline into identity, funding, and stage hints. A
// headline that matches no pattern still yields a ledger carrying the
// evidence trail, so the escalation layer can decide to go deeper.
func (e *HeadlineExtractor) Extract(_ context.Context, raw RawSource) (*ledger.Ledger, error) {
	l := ledger.New(e.tables)
	title := strings.TrimSpace(raw.Title)

	prov := model.Provenance{
		SourceURL:  raw.URL,
		Extractor:  e.Name(),
		CapturedAt: time.Now(),
	}

	if m := fundingHeadline.FindStringSubmatch(title); m != nil {
		name := strings.TrimSpace(m[1])
		l.SetField(heuristics.FieldCompanyName, name, headlineNameConfidence, prov)

		stage := normalizeStage(m[3])
		if stage != "" {
			l.SetField(heuristics.FieldStageEstimate, stage, headlineStageConfidence, prov)
		}

		l.AddFunding(model.FundingMention{
			Round:      stage,
			Amount:     strings.TrimSpace(m[2]),
			Text:       title,
			Confidence: headlineFundingConfidence,
			SourceURL:  raw.URL,
		})
	} else {
		zap.L().Debug("tier0: headline matched no pattern", zap.String("title", title))
	}

	if desc := strings.TrimSpace(raw.Content); len(desc) > 10 {
		l.SetField(heuristics.FieldOneLiner, oneLinerFromDescription(desc), headlineOneLinerConfidence, prov)
	}

	l.AddEvidence(raw.URL, e.Name(), title)
	l.AddCrawl(raw.URL, e.Tier(), "ok")
	return l, nil
}

// normalizeStage maps a matched stage phrase to the canonical slug form
// ("Series A" → "series-a"). Unmatched input returns "".
func normalizeStage(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return strings.ReplaceAll(s, " ", "-")
}

// oneLinerFromDescription takes the first sentence of the feed description,
// trimmed of round-announcement boilerplate.
func oneLinerFromDescription(desc string) string {
	s := trailingRound.ReplaceAllString(desc, "")
	if i := strings.IndexAny(s, ".!?"); i > 0 {
		s = s[:i+1]
	}
	return strings.TrimSpace(s)
}

// rssFeed is the subset of RSS 2.0 the feed reader decodes.
type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel rssChann `xml:"channel"`
}

type rssChann struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// ParseFeed decodes an RSS document into raw sources, one per item.
func ParseFeed(data []byte, feedURL string) ([]RawSource, error) {
	var feed rssFeed
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&feed); err != nil {
		return nil, eris.Wrapf(err, "tier0: parse feed %s", feedURL)
	}

	sources := make([]RawSource, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		fetchedAt := time.Now()
		if t, err := parsePubDate(item.PubDate); err == nil {
			fetchedAt = t
		}
		sources = append(sources, RawSource{
			Kind:      KindRSSItem,
			URL:       link,
			Title:     strings.TrimSpace(item.Title),
			Content:   strings.TrimSpace(item.Description),
			FetchedAt: fetchedAt,
		})
	}

	zap.L().Info("tier0: feed parsed",
		zap.String("feed", feedURL),
		zap.String("channel", feed.Channel.Title),
		zap.Int("items", len(sources)),
	)
	return sources, nil
}

// FetchFeed downloads and parses one RSS feed.
func FetchFeed(ctx context.Context, f *Fetcher, feedURL string) ([]RawSource, error) {
	data, err := f.Get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return ParseFeed(data, feedURL)
}

func parsePubDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("tier0: unparsable pubDate %q", s)
}
