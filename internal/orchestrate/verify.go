package orchestrate

import (
	"strings"
	"unicode"
)

// LocateQuote finds a quote inside text and returns the byte offset plus the
// exact text slice at that position. An exact substring match is tried
// first; failing that, both sides are compared with runs of whitespace
// collapsed, and the match is mapped back to original offsets. The returned
// quote always satisfies text[offset:offset+len(quote)] == quote.
func LocateQuote(text, quote string) (int, string, bool) {
	quote = strings.TrimSpace(quote)
	if quote == "" {
		return 0, "", false
	}

	if i := strings.Index(text, quote); i >= 0 {
		return i, quote, true
	}

	normText, textIdx := collapseWhitespace(text)
	normQuote, _ := collapseWhitespace(quote)
	if normQuote == "" {
		return 0, "", false
	}

	i := strings.Index(normText, normQuote)
	if i < 0 {
		return 0, "", false
	}

	start := textIdx[i]
	end := textIdx[i+len(normQuote)-1] + 1
	return start, text[start:end], true
}

// collapseWhitespace rewrites runs of whitespace as single spaces and trims
// the ends. idx maps each byte of the collapsed string back to its byte
// offset in the original.
func collapseWhitespace(s string) (string, []int) {
	var b strings.Builder
	idx := make([]int, 0, len(s))
	inSpace := true // leading whitespace is dropped

	for i, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				idx = append(idx, i)
				inSpace = true
			}
			continue
		}
		inSpace = false
		start := b.Len()
		b.WriteRune(r)
		for j := start; j < b.Len(); j++ {
			idx = append(idx, i+(j-start))
		}
	}

	out := b.String()
	if strings.HasSuffix(out, " ") {
		out = out[:len(out)-1]
		idx = idx[:len(idx)-1]
	}
	return out, idx
}
