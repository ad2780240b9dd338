// Package extract implements the tiered source extractors. Tier 0 works from
// feed metadata alone, tier 1 fetches and scans the article page, and tier 2
// spends LLM tokens. Higher tiers cost more and are entered only when the
// cheaper tier left the ledger incomplete.
package extract

import (
	"context"
	"time"

	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/pkg/anthropic"
)

// Source kinds.
const (
	KindRSSItem = "rss_item"
	KindArticle = "article"
	KindManual  = "manual"
)

// RawSource is one unit of input: a feed item, article URL, or manually
// submitted lead. Content may be empty for kinds the extractor fetches itself.
type RawSource struct {
	Kind      string    `json:"kind"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitzero"`
}

// Extractor builds a partial ledger from a raw source. Implementations are
// stateless between calls and safe for concurrent use.
type Extractor interface {
	Name() string
	Tier() int
	Extract(ctx context.Context, raw RawSource) (*ledger.Ledger, error)
}

// Enricher is the paid tier: it sees the current ledger snapshot and returns
// a partial ledger of improvements plus the token spend. It is invoked only
// on the inference gate's say-so, never as part of normal escalation.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, raw RawSource, current *ledger.Ledger) (*ledger.Ledger, anthropic.TokenUsage, error)
}
