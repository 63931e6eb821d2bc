package grading

import "testing"

func TestReviewMatch(t *testing.T) {
	tests := []struct {
		name      string
		submitted string
		reference string
		want      bool
	}{
		{"exact", "jakarta", "jakarta", true},
		{"case insensitive", "JAKARTA", "jakarta", true},
		{"diacritics stripped", "résumé", "resume", true},
		{"punctuation ignored", "it's newton!", "its newton", true},
		{"containment", "isaac newton discovered gravity", "newton", true},
		{"token overlap", "gravity was discovered by newton", "newton discovered gravity", true},
		{"single word typo tolerated", "jakata", "jakarta", true},
		{"unrelated", "i don't know", "newton", false},
		{"empty submitted", "", "newton", false},
		{"empty reference", "anything", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReviewMatch(tt.submitted, tt.reference); got != tt.want {
				t.Errorf("ReviewMatch(%q, %q) = %v, want %v", tt.submitted, tt.reference, got, tt.want)
			}
		})
	}
}

func TestReviewIsMoreLenientThanScoring(t *testing.T) {
	// The review surface can accept what the authoritative path rejected.
	// This asymmetry is inherited behavior; the test pins it down so a
	// future unification is a deliberate change.
	submitted := "jakata"
	reference := "jakarta"

	if !ReviewMatch(submitted, reference) {
		t.Fatal("review matcher should tolerate a single-character typo")
	}
	if normalizeExact(submitted) == normalizeExact(reference) {
		t.Fatal("authoritative normalization should still distinguish the typo")
	}
}

func TestNormalizeLenient(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Hello,   World! ", "hello world"},
		{"Crème brûlée", "creme brulee"},
		{"", ""},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := normalizeLenient(tt.in); got != tt.want {
			t.Errorf("normalizeLenient(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"kitten", "sitting", 3},
		{"jakarta", "jakata", 1},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
