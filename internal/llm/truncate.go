package llm

import (
	"strings"
	"unicode"
)

// TruncateToBudget bounds text to a character budget, cutting at the last
// text boundary (whitespace) so the result never ends mid-word. Text already
// within budget is returned unchanged, so the operation is idempotent. The
// second return value reports whether truncation happened; callers must
// surface it as a warning, never drop it.
func TruncateToBudget(text string, budget int) (string, bool) {
	if budget <= 0 {
		return text, false
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text, false
	}
	cut := runes[:budget]
	// Walk back to a whitespace boundary; fall back to a hard cut when the
	// budget lands inside one enormous token.
	boundary := -1
	for i := len(cut) - 1; i >= 0; i-- {
		if unicode.IsSpace(cut[i]) {
			boundary = i
			break
		}
	}
	if boundary > 0 {
		cut = cut[:boundary]
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace), true
}
