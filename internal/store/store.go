// Package store defines the persistence contract for deduplicated startup
// records and provides postgres, sqlite, and in-memory backends.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/startup-intake/internal/model"
)

// ErrDuplicateDomain is returned by Upsert when a record with the same
// canonical domain already exists. Callers treat it as "duplicate", not as a
// hard failure: it is the trigger for the evidence-merge path.
var ErrDuplicateDomain = eris.New("store: canonical domain already exists")

// Store is the persistence adapter the pipeline depends on. Lookups return
// (nil, nil) when no record matches.
type Store interface {
	FindByCanonicalDomain(ctx context.Context, domain string) (*model.StartupRecord, error)
	FindCandidatesByNameSubstring(ctx context.Context, name string, limit int) ([]model.StartupRecord, error)

	// Upsert inserts a new record keyed by canonical domain in a single
	// atomic statement and returns its ID. A uniqueness conflict surfaces
	// as ErrDuplicateDomain.
	Upsert(ctx context.Context, rec *model.StartupRecord) (string, error)

	// AppendEvidence unions a delta into an existing record: alias added if
	// absent, arrays concatenated without dedup, last-seen bumped.
	AppendEvidence(ctx context.Context, id string, delta model.EvidenceDelta) error

	Migrate(ctx context.Context) error
	Close() error
}

// applyDelta folds an evidence delta into a record. Shared by the backends
// so union semantics stay identical across them.
func applyDelta(rec *model.StartupRecord, delta model.EvidenceDelta) {
	if delta.Alias != "" && !containsFold(rec.Aliases, delta.Alias) {
		rec.Aliases = append(rec.Aliases, delta.Alias)
	}
	rec.Evidence = append(rec.Evidence, delta.Evidence...)
	rec.CrawlHistory = append(rec.CrawlHistory, delta.CrawlHistory...)
	rec.Extracted.TractionSignals = append(rec.Extracted.TractionSignals, delta.TractionSignals...)
	rec.Extracted.TeamSignals = append(rec.Extracted.TeamSignals, delta.TeamSignals...)
	rec.Extracted.MarketSignals = append(rec.Extracted.MarketSignals, delta.MarketSignals...)
	rec.Extracted.MoatSignals = append(rec.Extracted.MoatSignals, delta.MoatSignals...)
	rec.Extracted.FundingMentions = append(rec.Extracted.FundingMentions, delta.FundingMentions...)
	rec.Extracted.InvestorMentions = append(rec.Extracted.InvestorMentions, delta.InvestorMentions...)
	rec.Extracted.Accelerators = append(rec.Extracted.Accelerators, delta.Accelerators...)
	if delta.SourceLastSeen.After(rec.SourceLastSeen) {
		rec.SourceLastSeen = delta.SourceLastSeen
	}
}

func errNotFound(id string) error {
	return eris.Errorf("store: record %s not found", id)
}

func containsFold(list []string, s string) bool {
	for _, e := range list {
		if strings.EqualFold(e, s) {
			return true
		}
	}
	return false
}
