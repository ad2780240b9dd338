package ledger

import (
	"strings"

	"github.com/sells-group/startup-intake/internal/model"
)

// Record projects the ledger into the flat database shape: identity and
// snapshot columns, signal arrays nested under extracted_data, the evidence
// trail, and the numeric stage derived from the stage-estimate keyword table.
func (l *Ledger) Record() *model.StartupRecord {
	rec := &model.StartupRecord{
		StartupID:       l.StartupID,
		CanonicalDomain: l.CanonicalDomain,
		CompanyName:     l.CompanyName,
		Aliases:         append([]string(nil), l.Aliases...),
		WebsiteURL:      l.WebsiteURL,
		OneLiner:        l.OneLiner,
		CategoryPrimary: l.CategoryPrimary,
		CategoryTags:    append([]string(nil), l.CategoryTags...),
		StageEstimate:   l.StageEstimate,
		Stage:           l.tables.StageNumber(l.StageEstimate),
		HQCity:          l.HQCity,
		Extracted: model.ExtractedData{
			TractionSignals:  append([]model.Signal(nil), l.Traction...),
			TeamSignals:      append([]model.Signal(nil), l.Team...),
			MarketSignals:    append([]model.Signal(nil), l.Market...),
			MoatSignals:      append([]model.Signal(nil), l.Moat...),
			FundingMentions:  append([]model.FundingMention(nil), l.Funding...),
			InvestorMentions: append([]model.InvestorMention(nil), l.Investors...),
			Accelerators:     append([]model.Accelerator(nil), l.Accelerators...),
		},
		Evidence:          append([]model.EvidenceItem(nil), l.Evidence...),
		CrawlHistory:      append([]model.CrawlEvent(nil), l.CrawlHistory...),
		SourceFirstSeen:   l.SourceFirstSeen,
		SourceLastSeen:    l.SourceLastSeen,
		FieldProvenance:   make(map[string]model.Provenance, len(l.FieldProvenance)),
		ConfidenceScores:  make(map[string]float64, len(l.Confidence)),
		OverallConfidence: l.Overall,
	}
	for k, v := range l.FieldProvenance {
		rec.FieldProvenance[k] = v
	}
	for k, v := range l.Confidence {
		rec.ConfidenceScores[k] = v
	}
	return rec
}

// EvidenceDelta builds the union-merge payload applied to an existing record
// when this ledger resolves as its duplicate. The alias is only set when the
// ledger's name differs from the target record's name.
func (l *Ledger) EvidenceDelta(target *model.StartupRecord) model.EvidenceDelta {
	delta := model.EvidenceDelta{
		Evidence:         append([]model.EvidenceItem(nil), l.Evidence...),
		CrawlHistory:     append([]model.CrawlEvent(nil), l.CrawlHistory...),
		TractionSignals:  append([]model.Signal(nil), l.Traction...),
		TeamSignals:      append([]model.Signal(nil), l.Team...),
		MarketSignals:    append([]model.Signal(nil), l.Market...),
		MoatSignals:      append([]model.Signal(nil), l.Moat...),
		FundingMentions:  append([]model.FundingMention(nil), l.Funding...),
		InvestorMentions: append([]model.InvestorMention(nil), l.Investors...),
		Accelerators:     append([]model.Accelerator(nil), l.Accelerators...),
		SourceLastSeen:   l.now(),
	}
	if l.CompanyName != "" && target != nil && !strings.EqualFold(l.CompanyName, target.CompanyName) {
		delta.Alias = l.CompanyName
	}
	return delta
}
