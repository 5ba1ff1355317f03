package validator

import (
	"strings"

	"github.com/livereview/prchat/internal/textutil"
)

type intent string

const (
	intentInformation intent = "information"
	intentExplanation intent = "explanation"
	intentDisplay     intent = "display"
	intentListing     intent = "listing"
	intentGeneral     intent = "general"
)

// KeywordRelevance weighs keyword overlap (0.4), intent match (0.4) and
// whether the first sentence echoes the question (0.2).
type KeywordRelevance struct{}

func (KeywordRelevance) Relevance(question, answer string) float64 {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return 0
	}
	qWords := textutil.Keywords(question)
	aWords := textutil.KeywordSet(answer)
	if len(qWords) == 0 || len(aWords) == 0 {
		return 0
	}

	common := 0
	for _, w := range qWords {
		if _, ok := aWords[w]; ok {
			common++
		}
	}
	overlap := float64(common) / float64(len(qWords))

	intentMatch := 0.5
	if questionIntent(question) == answerIntent(answer) {
		intentMatch = 1
	}

	return min(1, overlap*0.4+intentMatch*0.4+directAnswer(qWords, answer)*0.2)
}

func questionIntent(q string) intent {
	q = strings.ToLower(q)
	switch {
	case strings.Contains(q, "what") || strings.Contains(q, "which"):
		return intentInformation
	case strings.Contains(q, "how") || strings.Contains(q, "why"):
		return intentExplanation
	case strings.Contains(q, "show") || strings.Contains(q, "display"):
		return intentDisplay
	case strings.Contains(q, "list") || strings.Contains(q, "find"):
		return intentListing
	}
	return intentGeneral
}

func answerIntent(a string) intent {
	a = strings.ToLower(a)
	switch {
	case strings.Contains(a, "here is") || strings.Contains(a, "the following"):
		return intentListing
	case strings.Contains(a, "because") || strings.Contains(a, "due to"):
		return intentExplanation
	case strings.Contains(a, "shows") || strings.Contains(a, "displays"):
		return intentDisplay
	}
	return intentInformation
}

func directAnswer(qWords []string, answer string) float64 {
	first, _, _ := strings.Cut(answer, ".")
	first = strings.ToLower(first)
	addressed := 0
	for _, w := range qWords {
		if strings.Contains(first, w) {
			addressed++
		}
	}
	return float64(addressed) / float64(max(1, len(qWords)))
}
