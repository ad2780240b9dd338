// Package resolve decides whether a freshly built ledger describes the same
// real-world company as a persisted record, and merges evidence when it does.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/internal/model"
	"github.com/sells-group/startup-intake/internal/store"
)

// fuzzyThreshold is the minimum combined similarity score for a probable merge.
const fuzzyThreshold = 0.8

// Boosts applied on top of name similarity in the fuzzy pass.
const (
	cityBoost     = 0.2
	categoryBoost = 0.1
)

// candidateLimit bounds the fuzzy pass candidate fetch.
const candidateLimit = 10

// RedirectProber reports whether urlA resolves (via redirects) to the same
// site as urlB. Optional host-supplied collaborator.
type RedirectProber func(ctx context.Context, urlA, urlB string) (bool, error)

// Resolver runs the identity cascade against the persisted store.
type Resolver struct {
	store  store.Store
	cache  Cache
	prober RedirectProber
	tables *heuristics.Tables
}

// NewResolver creates a resolver. Cache and prober may be nil; tables nil
// uses the defaults.
func NewResolver(st store.Store, cache Cache, prober RedirectProber, tables *heuristics.Tables) *Resolver {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &Resolver{store: st, cache: cache, prober: prober, tables: tables}
}

// Resolve runs the short-circuiting cascade:
//  1. Canonical-domain exact match → auto_merge @ 0.95
//  2. Website-redirect match → auto_merge @ 0.90
//  3. Fuzzy name+location+category ≥ 0.8 → probable_merge
//  4. create_new
//
// Before honoring a merge that was not proven by domain equality or a
// successful redirect probe, the never-auto-merge override forces create_new
// when both sides have different legitimate (non-generic-host) domains:
// name similarity must never override domain inequality.
func (r *Resolver) Resolve(ctx context.Context, l *ledger.Ledger) (*model.Resolution, error) {
	// Pass 1: exact canonical-domain match.
	if l.CanonicalDomain != "" {
		existing, err := r.lookupDomain(ctx, l.CanonicalDomain)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			zap.L().Debug("resolve: matched by canonical domain",
				zap.String("domain", l.CanonicalDomain),
				zap.String("existing_id", existing.ID),
			)
			return &model.Resolution{
				IsDuplicate: true,
				ExistingID:  existing.ID,
				MatchMethod: model.MatchCanonicalDomain,
				Confidence:  0.95,
				Action:      model.ActionAutoMerge,
				Reasons:     []string{"canonical_domain_exact"},
			}, nil
		}
	}

	// Fetch fuzzy candidates once; passes 2 and 3 share them.
	var candidates []model.StartupRecord
	if l.CompanyName != "" {
		var err error
		candidates, err = r.store.FindCandidatesByNameSubstring(ctx, NormalizeName(l.CompanyName), candidateLimit)
		if err != nil {
			return nil, eris.Wrap(err, "resolve: candidates by name")
		}
	}

	// Pass 2: website redirect probe.
	if r.prober != nil && l.WebsiteURL != "" {
		for i := range candidates {
			c := &candidates[i]
			if c.WebsiteURL == "" || c.CanonicalDomain == "" || c.CanonicalDomain == l.CanonicalDomain {
				continue
			}
			same, err := r.prober(ctx, l.WebsiteURL, c.WebsiteURL)
			if err != nil {
				zap.L().Warn("resolve: redirect probe failed",
					zap.String("url_a", l.WebsiteURL),
					zap.String("url_b", c.WebsiteURL),
					zap.Error(err),
				)
				continue
			}
			if same {
				// The probe is the proof of identity; the differing-domain
				// override does not apply here.
				return &model.Resolution{
					IsDuplicate: true,
					ExistingID:  c.ID,
					MatchMethod: model.MatchWebsiteRedirect,
					Confidence:  0.90,
					Action:      model.ActionAutoMerge,
					Reasons:     []string{"website_redirect"},
				}, nil
			}
		}
	}

	// Pass 3: fuzzy name + location + category.
	best, bestScore, reasons := r.bestFuzzyMatch(l, candidates)
	if best != nil && bestScore >= fuzzyThreshold {
		if r.differentLegitimateDomains(l.CanonicalDomain, best.CanonicalDomain) {
			zap.L().Info("resolve: fuzzy match vetoed by domain inequality",
				zap.String("ledger_domain", l.CanonicalDomain),
				zap.String("existing_domain", best.CanonicalDomain),
				zap.String("name", l.CompanyName),
			)
			return &model.Resolution{
				Action:  model.ActionCreateNew,
				Reasons: []string{model.ReasonDifferentDomains},
			}, nil
		}
		return &model.Resolution{
			IsDuplicate: true,
			ExistingID:  best.ID,
			MatchMethod: model.MatchFuzzy,
			Confidence:  bestScore,
			Action:      model.ActionProbableMerge,
			Reasons:     reasons,
		}, nil
	}

	return &model.Resolution{Action: model.ActionCreateNew}, nil
}

// MergeEvidence unions the ledger's evidence into an existing record:
// alias appended if absent, arrays concatenated without dedup, last-seen
// bumped to now. The cache entry for the record's domain is invalidated.
func (r *Resolver) MergeEvidence(ctx context.Context, existingID string, l *ledger.Ledger) error {
	target, err := r.findByID(ctx, existingID, l)
	if err != nil {
		return err
	}

	delta := l.EvidenceDelta(target)
	if err := r.store.AppendEvidence(ctx, existingID, delta); err != nil {
		return eris.Wrapf(err, "resolve: append evidence to %s", existingID)
	}
	if r.cache != nil && target != nil {
		r.cache.Invalidate(target.CanonicalDomain)
	}

	zap.L().Info("resolve: evidence merged",
		zap.String("existing_id", existingID),
		zap.String("alias", delta.Alias),
		zap.Int("evidence", len(delta.Evidence)),
	)
	return nil
}

func (r *Resolver) lookupDomain(ctx context.Context, domain string) (*model.StartupRecord, error) {
	if r.cache != nil {
		if rec, ok := r.cache.Get(domain); ok {
			return rec, nil
		}
	}
	rec, err := r.store.FindByCanonicalDomain(ctx, domain)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve: find by domain %s", domain)
	}
	if r.cache != nil && rec != nil {
		r.cache.Set(domain, rec)
	}
	return rec, nil
}

// findByID locates the merge target. The store keys lookups by domain, so
// when the ledger's own domain misses we fall back to the name candidates.
func (r *Resolver) findByID(ctx context.Context, id string, l *ledger.Ledger) (*model.StartupRecord, error) {
	if l.CanonicalDomain != "" {
		rec, err := r.lookupDomain(ctx, l.CanonicalDomain)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.ID == id {
			return rec, nil
		}
	}
	if l.CompanyName != "" {
		candidates, err := r.store.FindCandidatesByNameSubstring(ctx, NormalizeName(l.CompanyName), candidateLimit)
		if err != nil {
			return nil, eris.Wrap(err, "resolve: candidates by name")
		}
		for i := range candidates {
			if candidates[i].ID == id {
				return &candidates[i], nil
			}
		}
	}
	return nil, nil
}

// bestFuzzyMatch scores each candidate by normalized Levenshtein similarity
// plus location and category boosts, returning the best.
func (r *Resolver) bestFuzzyMatch(l *ledger.Ledger, candidates []model.StartupRecord) (*model.StartupRecord, float64, []string) {
	if l.CompanyName == "" {
		return nil, 0, nil
	}

	var best *model.StartupRecord
	var bestScore float64
	var bestReasons []string

	for i := range candidates {
		c := &candidates[i]
		score := Similarity(l.CompanyName, c.CompanyName)
		reasons := []string{fmt.Sprintf("name_similarity=%.2f", score)}

		if l.HQCity != "" && c.HQCity != "" && strings.EqualFold(l.HQCity, c.HQCity) {
			score += cityBoost
			reasons = append(reasons, "hq_city_match")
		}
		if l.CategoryPrimary != "" && c.CategoryPrimary != "" && strings.EqualFold(l.CategoryPrimary, c.CategoryPrimary) {
			score += categoryBoost
			reasons = append(reasons, "category_match")
		}

		if score > bestScore {
			best, bestScore, bestReasons = c, score, reasons
		}
	}
	return best, bestScore, bestReasons
}

// differentLegitimateDomains implements the never-auto-merge override
// condition: both domains set, unequal, and neither on a generic host.
func (r *Resolver) differentLegitimateDomains(a, b string) bool {
	if a == "" || b == "" || a == b {
		return false
	}
	return !r.tables.IsGenericHost(a) && !r.tables.IsGenericHost(b)
}
