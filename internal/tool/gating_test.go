package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelworks/sentinel/internal/model/contract"
)

func toolDef(name string) contract.ToolDef {
	return contract.ToolDef{Name: name}
}

func TestMatchesKeywords(t *testing.T) {
	keywords := []string{"stock", "ticker", "crypto"}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"Direct match", "what is the AMD stock price", true},
		{"Case insensitive", "Any Crypto news today?", true},
		{"No match", "what's the weather like", false},
		{"Empty text", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesKeywords(tt.text, keywords))
		})
	}
}

func TestActiveDescriptorsGatesFinanceGroup(t *testing.T) {
	all := []Descriptor{
		{Definition: toolDef("weather"), Source: "builtin"},
		{Definition: toolDef("finance"), Source: "builtin", Group: GroupFinance},
		{Definition: toolDef("time"), Source: "builtin"},
	}
	keywords := []string{"stock", "ticker"}

	inactive := ActiveDescriptors(all, "how warm is it in Oslo", keywords)
	require.Len(t, inactive, 2)
	for _, d := range inactive {
		assert.NotEqual(t, "finance", d.Definition.Name)
	}

	active := ActiveDescriptors(all, "AMD stock please", keywords)
	require.Len(t, active, 3)
}
