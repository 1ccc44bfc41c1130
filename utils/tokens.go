package utils

import "unicode/utf8"

// EstimateTokens approximates a token count at ~4 characters per token,
// rounding up so budgets are never underestimated.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TruncateToTokens cuts text to at most tokens estimated tokens, backing off
// to a rune boundary so the result stays valid UTF-8.
func TruncateToTokens(text string, tokens int) string {
	if tokens <= 0 {
		return ""
	}
	limit := tokens * 4
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}
