// Package gate implements the quality gate: the final admission check for a
// candidate, independent of duplication. Rejections are reason-coded
// decisions, never errors.
package gate

import (
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/internal/model"
)

// AdmitThreshold is the minimum quality score for persistence.
const AdmitThreshold = 40

// minOverallConfidence rejects candidates whose evidence never added up.
const minOverallConfidence = 0.3

// Score points per dimension.
const (
	nameBasePoints    = 20
	nameBonusPoints   = 10
	websitePoints     = 25
	bareDomainPoints  = 15
	oneLinerFull      = 20
	oneLinerPartial   = 10
	categoryPoints    = 15
	stagePoints       = 10
)

// Gate validates candidates against the heuristic tables.
type Gate struct {
	tables *heuristics.Tables
}

// New creates a quality gate. Nil tables uses the defaults.
func New(tables *heuristics.Tables) *Gate {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &Gate{tables: tables}
}

// Validate runs the admission check. It is monotonic in evidence: adding a
// valid field never lowers the score.
func (g *Gate) Validate(l *ledger.Ledger) model.QualityResult {
	name := strings.TrimSpace(l.CompanyName)
	if nameLen := len([]rune(name)); nameLen < 2 || nameLen > 100 {
		return model.QualityResult{Reason: model.ReasonInvalidName}
	}
	if isGarbageName(name, g.tables) {
		zap.L().Debug("gate: garbage name rejected", zap.String("name", name))
		return model.QualityResult{Reason: model.ReasonGarbageName}
	}
	if l.Overall < minOverallConfidence {
		return model.QualityResult{Reason: model.ReasonLowConfidence}
	}

	score := float64(nameBasePoints)
	if isWellFormedName(name) {
		score += nameBonusPoints
	}

	switch {
	case validWebsite(l.WebsiteURL):
		score += websitePoints
	case l.CanonicalDomain != "":
		score += bareDomainPoints
	}

	switch oneLinerLen := len(l.OneLiner); {
	case oneLinerLen > 20:
		score += oneLinerFull
	case oneLinerLen > 10:
		score += oneLinerPartial
	}

	if len(l.CategoryTags) > 0 {
		score += categoryPoints
	}

	// Stage presence counts even when it maps to the lowest numeric stage.
	if l.StageEstimate != "" {
		score += stagePoints
	}

	if score < AdmitThreshold {
		return model.QualityResult{Reason: model.ReasonScoreTooLow, Score: score}
	}
	return model.QualityResult{Valid: true, Score: score}
}

// CheckDuplicate is the cheap name/domain pre-filter run before resolution:
// it reports whether the candidate's claimed domain is actually a known
// article-hosting site, which means the source was an article about the
// company, not the company's own homepage.
func (g *Gate) CheckDuplicate(l *ledger.Ledger) (string, bool) {
	if l.CanonicalDomain != "" && g.tables.IsArticleHost(l.CanonicalDomain) {
		return model.ReasonArticleHostAsOwned, true
	}
	return "", false
}

// validWebsite accepts real, public websites: parseable URL with a dotted,
// non-local, non-bare-IP hostname.
func validWebsite(raw string) bool {
	if raw == "" {
		return false
	}
	s := raw
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || !strings.Contains(host, ".") {
		return false
	}
	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return false
	}
	if net.ParseIP(host) != nil {
		return false
	}
	return true
}
