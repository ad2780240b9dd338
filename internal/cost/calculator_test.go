package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculatorClaude(t *testing.T) {
	c := NewCalculator(nil)

	// 1M input at $0.80 + 500K output at $4.00
	got := c.Claude("claude-haiku-4-5-20251001", 1_000_000, 500_000, 0, 0)
	assert.InDelta(t, 0.80+2.00, got, 0.0001)

	// cache write at 1.25x input, cache read at 0.1x input
	got = c.Claude("claude-haiku-4-5-20251001", 0, 0, 1_000_000, 1_000_000)
	assert.InDelta(t, 0.80*1.25+0.80*0.1, got, 0.0001)

	assert.Zero(t, c.Claude("not-a-model", 1_000_000, 1_000_000, 0, 0))
}

func TestCalculatorCustomRates(t *testing.T) {
	c := NewCalculator(Rates{
		"custom": {Input: 1.00, Output: 2.00},
	})
	assert.InDelta(t, 3.00, c.Claude("custom", 1_000_000, 1_000_000, 0, 0), 0.0001)
}

func TestBudget(t *testing.T) {
	b := NewBudget(1.00)
	assert.False(t, b.Exceeded())

	assert.InDelta(t, 0.40, b.Add(0.40), 0.0001)
	assert.False(t, b.Exceeded())

	assert.InDelta(t, 1.00, b.Add(0.60), 0.0001)
	assert.True(t, b.Exceeded())
	assert.InDelta(t, 1.00, b.Spent(), 0.0001)
}

func TestBudget_ZeroLimitIsUnlimited(t *testing.T) {
	b := NewBudget(0)
	b.Add(1_000_000)
	assert.False(t, b.Exceeded())
}
