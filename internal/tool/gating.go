package tool

import "strings"

// GroupFinance marks tools that only activate on finance-related queries.
const GroupFinance = "finance"

// MatchesKeywords reports whether text contains any of the keywords,
// case-insensitively. It is a pure function of its inputs.
func MatchesKeywords(text string, keywords []string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range keywords {
		keyword = strings.TrimSpace(strings.ToLower(keyword))
		if keyword == "" {
			continue
		}
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// ActiveDescriptors filters the catalog for a turn. Gated groups are
// dropped unless the latest user text admits them; everything else passes.
func ActiveDescriptors(all []Descriptor, userText string, financeKeywords []string) []Descriptor {
	financeActive := MatchesKeywords(userText, financeKeywords)

	active := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if d.Group == GroupFinance && !financeActive {
			continue
		}
		active = append(active, d)
	}
	return active
}
