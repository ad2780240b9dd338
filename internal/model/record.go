package model

import "time"

// Provenance identifies where and how a field value was obtained.
type Provenance struct {
	SourceURL  string    `json:"source_url"`
	Extractor  string    `json:"extractor"`
	CapturedAt time.Time `json:"captured_at"`
}

// FieldValue is a single piece of atomic evidence: a value with the
// confidence and provenance it arrived with. Immutable once created.
type FieldValue struct {
	Value      any        `json:"value"`
	Confidence float64    `json:"confidence"`
	Provenance Provenance `json:"provenance"`
}

// SignalKind classifies qualitative signals attached to a candidate.
type SignalKind string

const (
	SignalTraction SignalKind = "traction"
	SignalTeam     SignalKind = "team"
	SignalMarket   SignalKind = "market"
	SignalMoat     SignalKind = "moat"
)

// Signal is one qualitative observation about a company. Signal arrays are
// append-only and may contain duplicates across merges; consumers should
// treat them as possibly duplicated, insertion-ordered.
type Signal struct {
	Kind       SignalKind `json:"kind"`
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	SourceURL  string     `json:"source_url,omitempty"`
	CapturedAt time.Time  `json:"captured_at"`
}

// FundingMention records a funding event referenced by a source.
type FundingMention struct {
	Round      string    `json:"round,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Text       string    `json:"text,omitempty"`
	Confidence float64   `json:"confidence"`
	SourceURL  string    `json:"source_url,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// InvestorMention records an investor referenced by a source.
type InvestorMention struct {
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	SourceURL  string    `json:"source_url,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// Accelerator records accelerator or incubator participation.
type Accelerator struct {
	Name       string    `json:"name"`
	Batch      string    `json:"batch,omitempty"`
	SourceURL  string    `json:"source_url,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// EvidenceItem is one entry in the candidate's evidence trail.
type EvidenceItem struct {
	URL        string    `json:"url"`
	Source     string    `json:"source"`
	Snippet    string    `json:"snippet,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// CrawlEvent records one extraction attempt against a source.
type CrawlEvent struct {
	URL    string    `json:"url"`
	Tier   int       `json:"tier"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// ExtractedData groups the append-only signal collections nested under one
// object in the persisted record.
type ExtractedData struct {
	TractionSignals  []Signal          `json:"traction_signals,omitempty"`
	TeamSignals      []Signal          `json:"team_signals,omitempty"`
	MarketSignals    []Signal          `json:"market_signals,omitempty"`
	MoatSignals      []Signal          `json:"moat_signals,omitempty"`
	FundingMentions  []FundingMention  `json:"funding_mentions,omitempty"`
	InvestorMentions []InvestorMention `json:"investor_mentions,omitempty"`
	Accelerators     []Accelerator     `json:"accelerators,omitempty"`
}

// StartupRecord is the flat database projection of a candidate. Every
// persisted record is the union of all evidence ever resolved to it.
type StartupRecord struct {
	ID              string   `json:"id,omitempty"`
	StartupID       string   `json:"startup_id"`
	CanonicalDomain string   `json:"canonical_domain"`
	CompanyName     string   `json:"company_name"`
	Aliases         []string `json:"aliases,omitempty"`
	WebsiteURL      string   `json:"website_url,omitempty"`

	OneLiner        string   `json:"one_liner,omitempty"`
	CategoryPrimary string   `json:"category_primary,omitempty"`
	CategoryTags    []string `json:"category_tags,omitempty"`
	StageEstimate   string   `json:"stage_estimate,omitempty"`
	Stage           int      `json:"stage"`
	HQCity          string   `json:"hq_city,omitempty"`

	Extracted ExtractedData `json:"extracted_data"`

	Evidence        []EvidenceItem        `json:"evidence,omitempty"`
	CrawlHistory    []CrawlEvent          `json:"crawl_history,omitempty"`
	SourceFirstSeen time.Time             `json:"source_first_seen,omitzero"`
	SourceLastSeen  time.Time             `json:"source_last_seen,omitzero"`
	FieldProvenance map[string]Provenance `json:"field_provenance,omitempty"`

	ConfidenceScores  map[string]float64 `json:"confidence_scores,omitempty"`
	OverallConfidence float64            `json:"overall_confidence"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// EvidenceDelta carries the union-merge payload appended to an existing
// record when a new ledger resolves as a duplicate. Arrays are concatenated,
// never deduplicated, to preserve provenance density.
type EvidenceDelta struct {
	Alias            string            `json:"alias,omitempty"`
	Evidence         []EvidenceItem    `json:"evidence,omitempty"`
	CrawlHistory     []CrawlEvent      `json:"crawl_history,omitempty"`
	TractionSignals  []Signal          `json:"traction_signals,omitempty"`
	TeamSignals      []Signal          `json:"team_signals,omitempty"`
	MarketSignals    []Signal          `json:"market_signals,omitempty"`
	MoatSignals      []Signal          `json:"moat_signals,omitempty"`
	FundingMentions  []FundingMention  `json:"funding_mentions,omitempty"`
	InvestorMentions []InvestorMention `json:"investor_mentions,omitempty"`
	Accelerators     []Accelerator     `json:"accelerators,omitempty"`
	SourceLastSeen   time.Time         `json:"source_last_seen"`
}
