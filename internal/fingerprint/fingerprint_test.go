package fingerprint

import (
	"strings"
	"testing"
)

func TestURLKey_Normalization(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{
			name: "scheme dropped",
			a:    "http://example.com/news/story",
			b:    "https://example.com/news/story",
			same: true,
		},
		{
			name: "host case and www",
			a:    "https://WWW.Example.COM/news/story",
			b:    "https://example.com/news/story",
			same: true,
		},
		{
			name: "trailing slash",
			a:    "https://example.com/news/story/",
			b:    "https://example.com/news/story",
			same: true,
		},
		{
			name: "tracking params stripped",
			a:    "https://example.com/news/story?utm_source=x&utm_medium=social&fbclid=abc",
			b:    "https://example.com/news/story",
			same: true,
		},
		{
			name: "meaningful query preserved",
			a:    "https://example.com/news?id=1",
			b:    "https://example.com/news?id=2",
			same: false,
		},
		{
			name: "different paths differ",
			a:    "https://example.com/news/story-one",
			b:    "https://example.com/news/story-two",
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, err := URLKey(tt.a)
			if err != nil {
				t.Fatalf("URLKey(%q): %v", tt.a, err)
			}
			kb, err := URLKey(tt.b)
			if err != nil {
				t.Fatalf("URLKey(%q): %v", tt.b, err)
			}
			if (ka == kb) != tt.same {
				t.Errorf("URLKey(%q)=%q, URLKey(%q)=%q, want same=%v", tt.a, ka, tt.b, kb, tt.same)
			}
		})
	}
}

func TestURLKey_QueryOrderIrrelevant(t *testing.T) {
	ka, err := URLKey("https://example.com/a?x=1&y=2")
	if err != nil {
		t.Fatal(err)
	}
	kb, err := URLKey("https://example.com/a?y=2&x=1")
	if err != nil {
		t.Fatal(err)
	}
	if ka != kb {
		t.Errorf("query order changed key: %q vs %q", ka, kb)
	}
}

func TestURLKey_Invalid(t *testing.T) {
	if _, err := URLKey("not a url at all"); err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestSignature_EmptyTextIsNull(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t", "!!! ??? ..."} {
		sig := New(text)
		if !sig.IsNull() {
			t.Errorf("New(%q) = %v, want NullSignature", text, sig)
		}
	}
}

func TestSignature_NullNeverMatches(t *testing.T) {
	if NearDuplicate(NullSignature, NullSignature, 64) {
		t.Error("two null signatures must not be near-duplicates")
	}
	if NearDuplicate(NullSignature, New("three climbers were killed"), 64) {
		t.Error("null signature must not match real text")
	}
}

func TestSignature_Deterministic(t *testing.T) {
	text := "Three climbers were killed in an avalanche on Atwell Peak near Squamish."
	if New(text) != New(text) {
		t.Error("signature is not deterministic")
	}
}

func TestSignature_NormalizationInvariant(t *testing.T) {
	a := New("Three climbers were killed in an avalanche on Atwell Peak.")
	b := New("  three CLIMBERS, were killed -- in an avalanche on Atwell Peak!  ")
	if a != b {
		t.Errorf("case/punctuation changed signature: %x vs %x", a, b)
	}
}

func TestSignature_NearDuplicateDetection(t *testing.T) {
	base := strings.Repeat("search and rescue crews recovered the bodies of three mountaineers from the south face after an avalanche swept the descent route on sunday morning ", 4)
	// A light edit of the same story should stay within a few bits.
	edited := strings.Replace(base, "sunday morning", "early sunday", 1)
	// An unrelated story should be far away.
	other := strings.Repeat("the city council approved a new transit budget after months of public debate over fare increases and service cuts across the network ", 4)

	sigBase := New(base)
	sigEdit := New(edited)
	sigOther := New(other)

	if d := sigBase.Distance(sigEdit); d > 10 {
		t.Errorf("edited text too far from base: distance=%d", d)
	}
	if d := sigBase.Distance(sigOther); d < 10 {
		t.Errorf("unrelated text too close to base: distance=%d", d)
	}
	if !NearDuplicate(sigBase, sigBase, 0) {
		t.Error("identical signatures must be near-duplicates at threshold 0")
	}
}
