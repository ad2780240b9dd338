// Package infer implements the inference gate: the cost-control layer that
// decides whether a candidate warrants a paid LLM call, and which kind.
package infer

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/internal/model"
)

// Early-score thresholds.
const (
	highConfidence  = 0.8
	earlyScoreFloor = 30
)

// Gate decides whether a ledger warrants LLM spend.
type Gate struct {
	tables *heuristics.Tables
}

// New creates an inference gate. Nil tables uses the defaults.
func New(tables *heuristics.Tables) *Gate {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &Gate{tables: tables}
}

// ShouldEnrich evaluates the rules in order; the first match wins.
//
//  1. No canonical domain: an LLM cannot conjure identity → re_crawl.
//  2. Contradictory evidence → llm_resolve, even when the ledger is
//     otherwise complete and confident.
//  3. High overall confidence with category, stage, and one-liner all
//     present → skip, nothing to buy.
//  4. Early score below the floor → skip, not worth the spend.
//  5. Missing category, stage, or one-liner → llm_enrich.
//  6. Otherwise → skip.
func (g *Gate) ShouldEnrich(l *ledger.Ledger) model.EnrichDecision {
	if l.CanonicalDomain == "" {
		return model.EnrichDecision{
			Reason: "no_canonical_domain",
			Action: model.EnrichRecrawl,
		}
	}

	if rule := g.detectContradiction(l); rule != "" {
		zap.L().Info("infer: contradiction detected",
			zap.String("rule", rule),
			zap.String("name", l.CompanyName),
		)
		return model.EnrichDecision{
			ShouldEnrich: true,
			Reason:       "contradiction:" + rule,
			Action:       model.EnrichResolve,
			EarlyScore:   g.EarlyScore(l),
		}
	}

	if l.Overall >= highConfidence &&
		l.CategoryPrimary != "" && l.StageEstimate != "" && l.OneLiner != "" {
		return model.EnrichDecision{
			Reason:     "high_confidence_complete",
			Action:     model.EnrichSkip,
			EarlyScore: g.EarlyScore(l),
		}
	}

	early := g.EarlyScore(l)
	if early < earlyScoreFloor {
		return model.EnrichDecision{
			Reason:     "early_score_below_floor",
			Action:     model.EnrichSkip,
			EarlyScore: early,
		}
	}

	if l.CategoryPrimary == "" || l.StageEstimate == "" || l.OneLiner == "" {
		return model.EnrichDecision{
			ShouldEnrich: true,
			Reason:       "missing_core_fields",
			Action:       model.EnrichLLM,
			EarlyScore:   early,
		}
	}

	return model.EnrichDecision{
		Reason:     "nothing_to_enrich",
		Action:     model.EnrichSkip,
		EarlyScore: early,
	}
}

// EarlyScore is a cheap promise estimate, distinct from the quality gate's
// admission score: base 40, plus small credit for category, stage, traction,
// investors, team, and overall confidence. Capped at 100.
func (g *Gate) EarlyScore(l *ledger.Ledger) int {
	score := 40
	if l.CategoryPrimary != "" {
		score += 5
	}
	if l.StageEstimate != "" {
		score += 5
	}
	score += capAt(len(l.Traction)*2, 10)
	score += capAt(len(l.Investors)*3, 15)
	score += capAt(len(l.Team)*2, 10)
	if l.Overall >= 0.7 {
		score += 5
	}
	return capAt(score, 100)
}

// detectContradiction evaluates the contradiction rules over the one-liner,
// evidence snippets, and signal texts. Returns the first matching rule's name.
func (g *Gate) detectContradiction(l *ledger.Ledger) string {
	for _, rule := range g.tables.Contradictions {
		if g.textStageConflict(l, rule) || nameCategoryConflict(l, rule) {
			return rule.Name
		}
	}
	return ""
}

// textStageConflict: a keyword appears in the candidate's text while the
// stage estimate is one the keyword is incompatible with.
func (g *Gate) textStageConflict(l *ledger.Ledger, rule heuristics.ContradictionRule) bool {
	if rule.TextContains == "" || len(rule.StageAnyOf) == 0 {
		return false
	}
	stage := strings.ToLower(l.StageEstimate)
	stageHit := false
	for _, s := range rule.StageAnyOf {
		if strings.Contains(stage, s) {
			stageHit = true
			break
		}
	}
	if !stageHit {
		return false
	}
	return containsInText(l, rule.TextContains)
}

// nameCategoryConflict: a keyword appears in the company name but the primary
// category carries none of the terms that keyword implies.
func nameCategoryConflict(l *ledger.Ledger, rule heuristics.ContradictionRule) bool {
	if rule.NameContains == "" || len(rule.CategoryLacksAll) == 0 {
		return false
	}
	if !strings.Contains(strings.ToLower(l.CompanyName), rule.NameContains) {
		return false
	}
	if l.CategoryPrimary == "" {
		return false
	}
	category := strings.ToLower(l.CategoryPrimary)
	for _, term := range rule.CategoryLacksAll {
		if strings.Contains(category, term) {
			return false
		}
	}
	return true
}

func containsInText(l *ledger.Ledger, keyword string) bool {
	kw := strings.ToLower(keyword)
	if strings.Contains(strings.ToLower(l.OneLiner), kw) {
		return true
	}
	for _, e := range l.Evidence {
		if strings.Contains(strings.ToLower(e.Snippet), kw) {
			return true
		}
	}
	for _, group := range [][]model.Signal{l.Traction, l.Team, l.Market, l.Moat} {
		for _, s := range group {
			if strings.Contains(strings.ToLower(s.Text), kw) {
				return true
			}
		}
	}
	return false
}

func capAt(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}
