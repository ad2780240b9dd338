package model

// MatchMethod identifies which resolver pass produced a match.
type MatchMethod string

const (
	MatchCanonicalDomain MatchMethod = "canonical_domain"
	MatchWebsiteRedirect MatchMethod = "website_redirect"
	MatchFuzzy           MatchMethod = "fuzzy_name_location_category"
)

// ResolveAction is the resolver's verdict for a candidate.
type ResolveAction string

const (
	ActionAutoMerge     ResolveAction = "auto_merge"
	ActionProbableMerge ResolveAction = "probable_merge"
	ActionCreateNew     ResolveAction = "create_new"
)

// Resolution is the transient outcome of entity resolution.
type Resolution struct {
	IsDuplicate bool          `json:"is_duplicate"`
	ExistingID  string        `json:"existing_id,omitempty"`
	MatchMethod MatchMethod   `json:"match_method,omitempty"`
	Confidence  float64       `json:"confidence"`
	Action      ResolveAction `json:"action"`
	Reasons     []string      `json:"reasons,omitempty"`
}

// Quality gate rejection reason codes.
const (
	ReasonInvalidName        = "invalid_name"
	ReasonGarbageName        = "garbage_name"
	ReasonLowConfidence      = "overall_confidence_too_low"
	ReasonScoreTooLow        = "quality_score_too_low"
	ReasonDifferentDomains   = "different_legitimate_domains"
	ReasonArticleHostAsOwned = "article_host_as_company_site"
)

// QualityResult is the transient outcome of the quality gate.
type QualityResult struct {
	Valid  bool    `json:"valid"`
	Reason string  `json:"reason,omitempty"`
	Score  float64 `json:"score"`
}

// EnrichAction is the inference gate's recommended next step.
type EnrichAction string

const (
	EnrichSkip    EnrichAction = "skip"
	EnrichLLM     EnrichAction = "llm_enrich"
	EnrichResolve EnrichAction = "llm_resolve"
	EnrichRecrawl EnrichAction = "re_crawl"
)

// EnrichDecision is the transient outcome of the inference gate.
type EnrichDecision struct {
	ShouldEnrich bool         `json:"should_enrich"`
	Reason       string       `json:"reason"`
	Action       EnrichAction `json:"action"`
	EarlyScore   int          `json:"early_score,omitempty"`
}
