package chunker

import "strings"

// EstimateTokens approximates a token count as the larger of 4/3 tokens per
// word and one token per 4 bytes. The byte bound keeps text with few spaces
// (tables, CJK, long identifiers) from looking small.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	byWords := len(strings.Fields(text)) * 4 / 3
	byBytes := len(text) / 4
	return max(byWords, byBytes, 1)
}
