package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStringList(t *testing.T) {
	assert.Nil(t, NormalizeStringList(nil))
	assert.Equal(t, []string{"ai"}, NormalizeStringList("ai"))
	assert.Nil(t, NormalizeStringList("   "))
	assert.Equal(t, []string{"ai", "robotics"}, NormalizeStringList([]string{"ai", "", "robotics"}))
	assert.Equal(t, []string{"ai", "robotics"}, NormalizeStringList([]any{"ai", 42, "robotics", nil}))
	assert.Nil(t, NormalizeStringList(42))
}

func TestDedupSignals(t *testing.T) {
	in := []Signal{
		{Kind: SignalTraction, Text: "500 customers", SourceURL: "https://a.example.com"},
		{Kind: SignalTraction, Text: "500 customers", SourceURL: "https://a.example.com"},
		{Kind: SignalTraction, Text: "500 customers", SourceURL: "https://b.example.com"},
		{Kind: SignalTeam, Text: "500 customers", SourceURL: "https://a.example.com"},
	}
	out := DedupSignals(in)
	// duplicates collapse only when kind, text, and source all repeat
	assert.Len(t, out, 3)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, in[2], out[1])
	assert.Equal(t, in[3], out[2])
}

func TestDedupSignals_Empty(t *testing.T) {
	assert.Empty(t, DedupSignals(nil))
}
