package fallback

import (
	"encoding/json"
	"regexp"
	"strings"
)

const salvagePreviewChars = 100

// answerField finds the answer string in JSON-ish output, even when the
// closing quote was cut off.
var answerField = regexp.MustCompile(`"answer"\s*:\s*"((?:[^"\\]|\\.)*)`)

// sentenceEnd is a terminator followed by whitespace or the end of text, so
// "auth.go" and "v1.2" are not sentence ends.
var sentenceEnd = regexp.MustCompile(`[.!?](?:\s|$)`)

// SalvageAnswer extracts readable text from partial model output, cut back
// to the last complete sentence.
func SalvageAnswer(partial string) string {
	text := strings.TrimSpace(partial)
	if text == "" {
		return ""
	}
	if m := answerField.FindStringSubmatch(text); m != nil {
		text = unescape(m[1])
	} else if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return ""
	}

	if ends := sentenceEnd.FindAllStringIndex(text, -1); len(ends) > 0 {
		if end := ends[len(ends)-1][0]; end > 0 {
			return strings.TrimSpace(text[:end+1])
		}
	}
	runes := []rune(text)
	if len(runes) > salvagePreviewChars {
		runes = runes[:salvagePreviewChars]
	}
	return strings.TrimSpace(string(runes)) + "..."
}

func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

var (
	fileFollowups = []string{
		"Would you like to ask about specific files that were changed?",
		"Are you looking for code review feedback?",
		"Would you like to know about the overall code changes?",
	}
	reviewFollowups = []string{
		"Would you like to know about reviewer feedback?",
		"Are you looking for specific types of comments?",
		"Would you like to see the review summary?",
	}
	securityFollowups = []string{
		"Would you like to know about security analysis results?",
		"Are you concerned about specific security issues?",
		"Would you like general security recommendations?",
	}
	genericFollowups = []string{
		"Would you like to try rephrasing your question?",
		"Can you be more specific about what you're looking for?",
		"Would you like to ask about a different aspect of this PR?",
	}
)

func queryFollowups(question string) []string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "file") || strings.Contains(q, "code"):
		return fileFollowups
	case strings.Contains(q, "review") || strings.Contains(q, "comment"):
		return reviewFollowups
	case strings.Contains(q, "security") || strings.Contains(q, "vulnerability"):
		return securityFollowups
	}
	return genericFollowups
}
