// Package fingerprint computes the canonical URL key and the near-duplicate
// text signature used for idempotent re-ingestion and cross-source clustering.
package fingerprint

import (
	"fmt"
	"hash/fnv"
	"math/bits"
	"net/url"
	"strings"
	"unicode"
)

// Signature is a 64-bit locality-sensitive signature over normalized text.
type Signature uint64

// NullSignature is the sentinel for empty text. It never matches anything,
// including another NullSignature.
const NullSignature Signature = 0

// IsNull reports whether the signature is the empty-text sentinel.
func (s Signature) IsNull() bool { return s == NullSignature }

// Distance returns the Hamming distance between two signatures.
func (s Signature) Distance(other Signature) int {
	return bits.OnesCount64(uint64(s) ^ uint64(other))
}

// NearDuplicate reports whether two signatures differ by at most maxBits.
// A null signature on either side is never a near-duplicate.
func NearDuplicate(a, b Signature, maxBits int) bool {
	if a.IsNull() || b.IsNull() {
		return false
	}
	return a.Distance(b) <= maxBits
}

// trackingParams are query parameters stripped during URL normalization.
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"igshid":       true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"smid":         true,
	"share":        true,
	"cmpid":        true,
	"utm_campaign": true,
	"utm_content":  true,
	"utm_medium":   true,
	"utm_source":   true,
	"utm_term":     true,
}

// URLKey normalizes a URL into a canonical dedup key: scheme dropped, host
// lowercased with default ports removed, tracking query parameters stripped,
// trailing slash stripped. Two URLs with an equal key are the same document.
func URLKey(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL has no host: %q", rawURL)
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	host = strings.TrimPrefix(host, "www.")

	path := strings.TrimSuffix(parsed.EscapedPath(), "/")

	query := ""
	if parsed.RawQuery != "" {
		values := parsed.Query()
		for param := range values {
			if trackingParams[strings.ToLower(param)] {
				values.Del(param)
			}
		}
		query = values.Encode() // sorted by key
	}

	key := host + path
	if query != "" {
		key += "?" + query
	}
	return key, nil
}

const shingleSize = 3

// New computes the text signature: a simhash over word shingles of the
// normalized text. Empty or whitespace-only text yields NullSignature.
func New(text string) Signature {
	words := normalizeWords(text)
	if len(words) == 0 {
		return NullSignature
	}

	var counts [64]int
	shingles := len(words) - shingleSize + 1
	if shingles < 1 {
		shingles = 1
	}
	for i := 0; i < shingles; i++ {
		end := i + shingleSize
		if end > len(words) {
			end = len(words)
		}
		h := hashShingle(words[i:end])
		for bit := 0; bit < 64; bit++ {
			if h&(1<<uint(bit)) != 0 {
				counts[bit]++
			} else {
				counts[bit]--
			}
		}
	}

	var sig uint64
	for bit := 0; bit < 64; bit++ {
		if counts[bit] > 0 {
			sig |= 1 << uint(bit)
		}
	}
	if sig == 0 {
		// Degenerate but non-empty input; reserve 0 for the null sentinel.
		sig = 1
	}
	return Signature(sig)
}

func hashShingle(words []string) uint64 {
	h := fnv.New64a()
	for i, w := range words {
		if i > 0 {
			h.Write([]byte{' '})
		}
		h.Write([]byte(w))
	}
	return h.Sum64()
}

// normalizeWords lowercases, collapses punctuation to spaces and splits on
// whitespace.
func normalizeWords(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}
