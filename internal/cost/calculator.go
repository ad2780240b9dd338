// Package cost computes and accounts LLM spend per run so the pipeline can
// honor a hard budget.
package cost

import (
	"sync"

	"go.uber.org/zap"
)

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates maps model IDs to their pricing.
type Rates map[string]ModelRate

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001": {
			Input: 0.80, Output: 4.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-sonnet-4-5-20250929": {
			Input: 3.00, Output: 15.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-opus-4-6": {
			Input: 15.00, Output: 75.00,
			CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
	}
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	if rates == nil {
		rates = DefaultRates()
	}
	return &Calculator{rates: rates}
}

// Claude computes the cost in USD for a Claude API call. Unknown models cost 0.
func (c *Calculator) Claude(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Budget tracks cumulative spend for one run against a hard limit.
// A zero limit means unlimited.
type Budget struct {
	mu    sync.Mutex
	limit float64
	spent float64
}

// NewBudget creates a budget with the given USD limit.
func NewBudget(limitUSD float64) *Budget {
	return &Budget{limit: limitUSD}
}

// Add records spend and returns the new total.
func (b *Budget) Add(usd float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spent += usd
	if b.limit > 0 && b.spent > b.limit {
		zap.L().Warn("run budget exceeded",
			zap.Float64("spent_usd", b.spent),
			zap.Float64("limit_usd", b.limit),
		)
	}
	return b.spent
}

// Exceeded reports whether the run has spent past its limit.
func (b *Budget) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limit > 0 && b.spent >= b.limit
}

// Spent returns the cumulative spend so far.
func (b *Budget) Spent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spent
}
