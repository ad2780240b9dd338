// Package heuristics holds the tunable tables the pipeline consults:
// field confidence weights, the garbage-name blacklist, stage and sector
// keyword maps, generic-hosting and article-hosting domain lists, and
// contradiction patterns. They live here as swappable configuration rather
// than branches in pipeline logic, and can be overridden from a yaml file.
package heuristics

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ContradictionRule flags a candidate whose evidence disagrees with itself.
// Two forms are supported: a text keyword that conflicts with the stage
// estimate, and a name keyword whose primary category lacks every expected
// term. A rule with both forms populated matches if either fires.
type ContradictionRule struct {
	Name             string   `yaml:"name" mapstructure:"name"`
	TextContains     string   `yaml:"text_contains,omitempty" mapstructure:"text_contains"`
	StageAnyOf       []string `yaml:"stage_any_of,omitempty" mapstructure:"stage_any_of"`
	NameContains     string   `yaml:"name_contains,omitempty" mapstructure:"name_contains"`
	CategoryLacksAll []string `yaml:"category_lacks_all,omitempty" mapstructure:"category_lacks_all"`
}

// Tables bundles every heuristic table used by the pipeline.
type Tables struct {
	// FieldWeights drives the ledger's overall-confidence weighted average.
	// Every field the ledger can set must have a positive weight.
	FieldWeights map[string]float64 `yaml:"field_weights" mapstructure:"field_weights"`

	// GarbageWords are promotional/generic terms that disqualify a name.
	GarbageWords []string `yaml:"garbage_words" mapstructure:"garbage_words"`

	// ArticleHosts are domains that publish articles about companies and
	// must never be treated as a company's own site.
	ArticleHosts []string `yaml:"article_hosts" mapstructure:"article_hosts"`

	// GenericHosts are shared-hosting domains exempt from the
	// never-auto-merge override (two candidates on the same generic host
	// are not "two legitimate sites").
	GenericHosts []string `yaml:"generic_hosts" mapstructure:"generic_hosts"`

	// StageNumbers maps stage-estimate keywords to the numeric stage column.
	StageNumbers map[string]int `yaml:"stage_numbers" mapstructure:"stage_numbers"`

	// SectorKeywords maps a primary category to the terms that indicate it.
	SectorKeywords map[string][]string `yaml:"sector_keywords" mapstructure:"sector_keywords"`

	// Contradictions are evaluated by the inference gate.
	Contradictions []ContradictionRule `yaml:"contradictions" mapstructure:"contradictions"`
}

// Ledger field names, shared between the ledger and the weight table.
const (
	FieldCompanyName     = "company_name"
	FieldCanonicalDomain = "canonical_domain"
	FieldWebsiteURL      = "website_url"
	FieldOneLiner        = "one_liner"
	FieldCategoryPrimary = "category_primary"
	FieldCategoryTags    = "category_tags"
	FieldStageEstimate   = "stage_estimate"
	FieldHQCity          = "hq_city"
)

// Default returns the built-in tables.
func Default() *Tables {
	return &Tables{
		FieldWeights: map[string]float64{
			FieldCompanyName:     3,
			FieldCanonicalDomain: 3,
			FieldWebsiteURL:      2,
			FieldOneLiner:        2,
			FieldCategoryPrimary: 2,
			FieldCategoryTags:    1,
			FieldStageEstimate:   2,
			FieldHQCity:          1,
		},
		GarbageWords: []string{
			"click here", "subscribe", "newsletter", "sponsored", "advertisement",
			"top 10", "best of", "breaking", "exclusive", "weekly roundup",
			"read more", "sign up", "free trial",
		},
		ArticleHosts: []string{
			"techcrunch.com", "medium.com", "substack.com", "news.ycombinator.com",
			"producthunt.com", "crunchbase.com", "linkedin.com", "twitter.com",
			"x.com", "reddit.com", "businessinsider.com", "forbes.com",
			"prnewswire.com", "businesswire.com",
		},
		GenericHosts: []string{
			"sites.google.com", "notion.site", "carrd.co", "webflow.io",
			"wixsite.com", "github.io", "netlify.app", "vercel.app",
		},
		StageNumbers: map[string]int{
			"pre-seed": 1,
			"idea":     1,
			"seed":     2,
			"series-a": 3,
			"series-b": 4,
			"series-c": 5,
		},
		SectorKeywords: map[string][]string{
			"ai":          {"artificial intelligence", "machine learning", "llm", "generative ai", "computer vision"},
			"fintech":     {"payments", "banking", "lending", "insurance", "trading"},
			"healthtech":  {"health", "clinical", "biotech", "medical", "patients"},
			"devtools":    {"developer", "api platform", "sdk", "open source", "infrastructure"},
			"climate":     {"carbon", "climate", "renewable", "energy storage", "emissions"},
			"ecommerce":   {"marketplace", "checkout", "retail", "logistics", "fulfillment"},
			"edtech":      {"learning", "education", "students", "courses"},
			"security":    {"security", "zero trust", "threat detection", "compliance"},
			"proptech":    {"real estate", "property", "tenants"},
			"hr":          {"hiring", "recruiting", "payroll", "workforce"},
		},
		Contradictions: []ContradictionRule{
			{
				Name:         "stealth_vs_late_stage",
				TextContains: "stealth",
				StageAnyOf:   []string{"series-b", "series-c"},
			},
			{
				Name:             "ai_name_non_ai_category",
				NameContains:     "ai",
				CategoryLacksAll: []string{"ai", "tech"},
			},
		},
	}
}

// Load reads a yaml overlay file and applies it on top of the defaults.
// Only the sections present in the file are replaced.
func Load(path string) (*Tables, error) {
	t := Default()
	if path == "" {
		return t, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "heuristics: read %s", path)
	}
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, eris.Wrapf(err, "heuristics: parse %s", path)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate rejects malformed tables. A bad weight table is a programmer or
// deployment error, not a data-quality condition.
func (t *Tables) Validate() error {
	if len(t.FieldWeights) == 0 {
		return eris.New("heuristics: field_weights is empty")
	}
	for field, w := range t.FieldWeights {
		if w <= 0 {
			return eris.Errorf("heuristics: field_weights[%s] must be positive, got %v", field, w)
		}
	}
	if len(t.StageNumbers) == 0 {
		return eris.New("heuristics: stage_numbers is empty")
	}
	return nil
}

// Weight returns the configured weight for a ledger field. Unknown fields
// panic: a field that can be set but has no weight is a malformed table.
func (t *Tables) Weight(field string) float64 {
	w, ok := t.FieldWeights[field]
	if !ok {
		panic("heuristics: no weight configured for field " + field)
	}
	return w
}

// IsArticleHost reports whether the domain (or a parent of it) is a known
// article-hosting site.
func (t *Tables) IsArticleHost(domain string) bool {
	return hostInList(domain, t.ArticleHosts)
}

// IsGenericHost reports whether the domain is a known shared-hosting domain.
func (t *Tables) IsGenericHost(domain string) bool {
	return hostInList(domain, t.GenericHosts)
}

// StageNumber maps a stage estimate to its numeric column value. Matching is
// by keyword containment; unknown or empty estimates default to 1.
func (t *Tables) StageNumber(stageEstimate string) int {
	s := strings.ToLower(strings.TrimSpace(stageEstimate))
	if s == "" {
		return 1
	}
	// Prefer the longest matching keyword so "pre-seed" beats "seed".
	best, bestLen := 1, 0
	for kw, n := range t.StageNumbers {
		if strings.Contains(s, kw) && len(kw) > bestLen {
			best, bestLen = n, len(kw)
		}
	}
	return best
}

func hostInList(domain string, hosts []string) bool {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d == "" {
		return false
	}
	for _, h := range hosts {
		if d == h || strings.HasSuffix(d, "."+h) {
			return true
		}
	}
	return false
}
