package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/startup-intake/internal/heuristics"
	"github.com/sells-group/startup-intake/internal/ledger"
	"github.com/sells-group/startup-intake/internal/model"
	"github.com/sells-group/startup-intake/internal/resilience"
	"github.com/sells-group/startup-intake/pkg/anthropic"
)

// Confidence assigned to LLM-extracted fields and signals.
const (
	llmFieldConfidence  = 0.85
	llmSignalConfidence = 0.8
)

// maxPromptContent caps how much article text goes into the prompt.
const maxPromptContent = 8000

const enrichSystemPrompt = `You extract structured facts about early-stage startups from press articles.
Respond with a single JSON object and nothing else. Omit any field you cannot support from the text.
Schema:
{
  "company_name": string,
  "website_url": string,
  "one_liner": string,
  "category_primary": string,
  "category_tags": [string],
  "stage_estimate": string,
  "hq_city": string,
  "traction_signals": [string],
  "team_signals": [string],
  "investors": [string],
  "funding": {"round": string, "amount": string}
}`

// llmExtraction mirrors the JSON schema the model is asked for.
type llmExtraction struct {
	CompanyName     string   `json:"company_name"`
	WebsiteURL      string   `json:"website_url"`
	OneLiner        string   `json:"one_liner"`
	CategoryPrimary string   `json:"category_primary"`
	CategoryTags    []string `json:"category_tags"`
	StageEstimate   string   `json:"stage_estimate"`
	HQCity          string   `json:"hq_city"`
	TractionSignals []string `json:"traction_signals"`
	TeamSignals     []string `json:"team_signals"`
	Investors       []string `json:"investors"`
	Funding         struct {
		Round  string `json:"round"`
		Amount string `json:"amount"`
	} `json:"funding"`
}

// LLMEnricher is tier 2: a paid Claude call over the article text, entered
// only when the inference gate approves the spend.
type LLMEnricher struct {
	client anthropic.Client
	model  string
	tables *heuristics.Tables
}

// NewLLMEnricher creates the tier 2 enricher.
func NewLLMEnricher(client anthropic.Client, modelID string, tables *heuristics.Tables) *LLMEnricher {
	if tables == nil {
		tables = heuristics.Default()
	}
	return &LLMEnricher{client: client, model: modelID, tables: tables}
}

func (e *LLMEnricher) Name() string { return "llm_enrich" }

// Enrich asks the model for the fields the free tiers missed and returns a
// partial ledger of its answers plus the token spend.
func (e *LLMEnricher) Enrich(ctx context.Context, raw RawSource, current *ledger.Ledger) (*ledger.Ledger, anthropic.TokenUsage, error) {
	var usage anthropic.TokenUsage

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("anthropic", "enrich")

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: 1024,
			System:    enrichSystemPrompt,
			Messages: []anthropic.Message{
				{Role: "user", Content: e.buildPrompt(raw, current)},
			},
		})
	})
	if err != nil {
		return nil, usage, eris.Wrapf(err, "tier2: enrich %s", raw.URL)
	}
	usage = resp.Usage
	usage.LogCost(e.model, "enrich")

	text := responseText(resp)
	extraction, err := parseExtraction(text)
	if err != nil {
		zap.L().Warn("tier2: unparsable model output",
			zap.String("url", raw.URL),
			zap.String("output", truncateForLog(text)),
		)
		return nil, usage, err
	}

	return e.toLedger(extraction, raw), usage, nil
}

func (e *LLMEnricher) buildPrompt(raw RawSource, current *ledger.Ledger) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Article URL: %s\nTitle: %s\n", raw.URL, raw.Title)
	if current != nil {
		fmt.Fprintf(&b, "\nKnown so far (may be wrong or incomplete):\n")
		fmt.Fprintf(&b, "  name: %s\n  domain: %s\n  category: %s\n  stage: %s\n",
			current.CompanyName, current.CanonicalDomain, current.CategoryPrimary, current.StageEstimate)
	}
	content := raw.Content
	if len(content) > maxPromptContent {
		content = content[:maxPromptContent]
	}
	fmt.Fprintf(&b, "\nArticle text:\n%s\n", content)
	return b.String()
}

func (e *LLMEnricher) toLedger(x *llmExtraction, raw RawSource) *ledger.Ledger {
	l := ledger.New(e.tables)
	prov := model.Provenance{
		SourceURL:  raw.URL,
		Extractor:  e.Name(),
		CapturedAt: time.Now(),
	}

	l.SetField(heuristics.FieldCompanyName, x.CompanyName, llmFieldConfidence, prov)
	l.SetField(heuristics.FieldWebsiteURL, x.WebsiteURL, llmFieldConfidence, prov)
	if x.WebsiteURL != "" {
		l.SetField(heuristics.FieldCanonicalDomain, x.WebsiteURL, llmFieldConfidence, prov)
	}
	l.SetField(heuristics.FieldOneLiner, x.OneLiner, llmFieldConfidence, prov)
	l.SetField(heuristics.FieldCategoryPrimary, x.CategoryPrimary, llmFieldConfidence, prov)
	if len(x.CategoryTags) > 0 {
		l.SetField(heuristics.FieldCategoryTags, x.CategoryTags, llmFieldConfidence, prov)
	}
	l.SetField(heuristics.FieldStageEstimate, x.StageEstimate, llmFieldConfidence, prov)
	l.SetField(heuristics.FieldHQCity, x.HQCity, llmFieldConfidence, prov)

	for _, s := range x.TractionSignals {
		l.AddSignal(model.Signal{Kind: model.SignalTraction, Text: s, Confidence: llmSignalConfidence, SourceURL: raw.URL})
	}
	for _, s := range x.TeamSignals {
		l.AddSignal(model.Signal{Kind: model.SignalTeam, Text: s, Confidence: llmSignalConfidence, SourceURL: raw.URL})
	}
	for _, inv := range x.Investors {
		l.AddInvestor(model.InvestorMention{Name: inv, Confidence: llmSignalConfidence, SourceURL: raw.URL})
	}
	if x.Funding.Round != "" || x.Funding.Amount != "" {
		l.AddFunding(model.FundingMention{
			Round:      x.Funding.Round,
			Amount:     x.Funding.Amount,
			Confidence: llmSignalConfidence,
			SourceURL:  raw.URL,
		})
	}

	l.AddCrawl(raw.URL, 2, "ok")
	return l
}

func responseText(resp *anthropic.MessageResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// parseExtraction decodes the model's JSON, tolerating markdown code fences.
func parseExtraction(text string) (*llmExtraction, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	var x llmExtraction
	if err := json.Unmarshal([]byte(s), &x); err != nil {
		return nil, eris.Wrap(err, "tier2: decode model output")
	}
	return &x, nil
}

func truncateForLog(s string) string {
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
