package utils

import "unicode"

// Token estimates. Latin text runs at roughly 4 characters per token while
// Han, Kana and Hangul characters are close to one token each.

func runeCost(r rune) int {
	if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
		return 4
	}
	return 1
}

// CountTokens estimates the number of tokens in the given text. Any
// non-empty text counts as at least one token.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	cost := 0
	for _, r := range text {
		cost += runeCost(r)
	}
	if cost < 4 {
		return 1
	}
	return cost / 4
}

// TruncateToTokenLimit cuts text so that CountTokens of the result stays
// within limit. The cut backs up to the last newline when one is reasonably
// close so that table rows are not split.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	budget := limit * 4
	cost, lastNL := 0, -1
	for i, r := range text {
		c := runeCost(r)
		if cost+c > budget {
			if lastNL > 0 && lastNL >= i*3/4 {
				return text[:lastNL]
			}
			return text[:i]
		}
		cost += c
		if r == '\n' {
			lastNL = i
		}
	}
	return text
}

// TokenBreakdown returns a simple breakdown map of labeled sections to token counts.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
