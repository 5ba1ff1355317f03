package textutil

import (
	"math"
	"reflect"
	"testing"
)

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"héllo", "hello", 1},
	}
	for _, c := range cases {
		if got := Levenshtein(c.a, c.b); got != c.want {
			t.Errorf("Levenshtein(%q,%q)=%d want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestEditSimilarity(t *testing.T) {
	if got := EditSimilarity("", ""); got != 1 {
		t.Fatalf("empty strings should be identical, got %v", got)
	}
	got := EditSimilarity("kitten", "sitting")
	if math.Abs(got-4.0/7.0) > 1e-9 {
		t.Fatalf("unexpected similarity %v", got)
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("How can I improve THIS code? improve it!")
	want := []string{"improve", "code"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestContainment(t *testing.T) {
	if got := Containment("how can I improve this code?", "what should I improve here?"); got != 1 {
		t.Fatalf("expected full containment, got %v", got)
	}
	if got := Containment("how can I improve this code?", "improve?"); got != 0 {
		t.Fatalf("a lone keyword in a much shorter question is not containment, got %v", got)
	}
	if got := Containment("what should I test here?", "how do I test the login flow and the cache?"); got != 0 {
		t.Fatalf("length ratio 0.5 should not count, got %v", got)
	}
	if got := Containment("improve code", "improve tests"); got != 0.5 {
		t.Fatalf("expected half containment, got %v", got)
	}
	if got := Containment("the a an", "files changed"); got != 0 {
		t.Fatalf("stopword-only text has no keywords, got %v", got)
	}
}

func TestSharesToken(t *testing.T) {
	if SharesToken("alpha beta", "gamma delta") {
		t.Fatal("disjoint strings share no token")
	}
	if !SharesToken("Alpha, beta", "BETA!") {
		t.Fatal("case and punctuation should be ignored")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3, "..."); got != "abc..." {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("abc", 3, "..."); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
