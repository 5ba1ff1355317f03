// Package textutil holds the small text helpers shared by the conversation
// tracker and the response validator.
package textutil

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var nonWord = regexp.MustCompile(`[^\w\s]`)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but in on at to for of with by is are was were be been
		being have has had do does did will would could should may might can this that these those
		how what why where when which who whom here there i me my we our you your it its`) {
		stopwords[w] = struct{}{}
	}
}

// IsStopword reports whether the lower-cased word carries no topical meaning.
func IsStopword(word string) bool {
	_, ok := stopwords[word]
	return ok
}

// Normalize lower-cases s, strips punctuation and collapses whitespace.
func Normalize(s string) string {
	s = nonWord.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Join(strings.Fields(s), " ")
}

// Tokens returns the lower-cased words of s with punctuation removed.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// Keywords returns the distinct tokens of s longer than two characters that
// are not stopwords, in first-seen order.
func Keywords(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokens(s) {
		if utf8.RuneCountInString(tok) <= 2 || IsStopword(tok) {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// KeywordSet is Keywords as a set.
func KeywordSet(s string) map[string]struct{} {
	kws := Keywords(s)
	set := make(map[string]struct{}, len(kws))
	for _, k := range kws {
		set[k] = struct{}{}
	}
	return set
}

// SharesToken reports whether a and b have at least one word in common.
func SharesToken(a, b string) bool {
	left := make(map[string]struct{})
	for _, t := range Tokens(a) {
		left[t] = struct{}{}
	}
	for _, t := range Tokens(b) {
		if _, ok := left[t]; ok {
			return true
		}
	}
	return false
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// EditSimilarity is (maxLen - distance) / maxLen; two empty strings are identical.
func EditSimilarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return float64(maxLen-Levenshtein(a, b)) / float64(maxLen)
}

// minLengthRatio is how close in length two questions must be before a
// single shared keyword counts as containment.
const minLengthRatio = 0.75

// Containment is |A∩B| / min(|A|,|B|) over the keyword sets of a and b. When
// the smaller set holds one keyword, it only counts if a and b have a
// comparable number of words; otherwise "improve?" would contain every
// question mentioning improvements.
func Containment(a, b string) float64 {
	ka, kb := KeywordSet(a), KeywordSet(b)
	if len(ka) == 0 || len(kb) == 0 {
		return 0
	}
	if min(len(ka), len(kb)) == 1 {
		na, nb := len(Tokens(a)), len(Tokens(b))
		if float64(min(na, nb))/float64(max(na, nb)) < minLengthRatio {
			return 0
		}
	}
	shared := 0
	for k := range ka {
		if _, ok := kb[k]; ok {
			shared++
		}
	}
	return float64(shared) / float64(min(len(ka), len(kb)))
}

// Truncate cuts s to at most n runes, appending suffix when it was cut.
func Truncate(s string, n int, suffix string) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + suffix
}
