package conversation

import "github.com/livereview/prchat/internal/textutil"

// RepeatThreshold is the similarity above which a question counts as asked before.
const RepeatThreshold = 0.7

// Similarity scores two lower-cased questions in [0,1].
type Similarity interface {
	Similarity(a, b string) float64
}

// SimilarityFunc adapts a plain function to Similarity.
type SimilarityFunc func(a, b string) float64

func (f SimilarityFunc) Similarity(a, b string) float64 { return f(a, b) }

// EditDistance is the normalised Levenshtein similarity.
var EditDistance = SimilarityFunc(textutil.EditSimilarity)

// QuestionSimilarity takes the larger of the edit-distance similarity and the
// keyword containment of the two questions, so rephrasings that keep the
// topical words ("how can I improve this code" / "what should I improve
// here") are caught as well as near-identical strings.
var QuestionSimilarity = SimilarityFunc(func(a, b string) float64 {
	return max(textutil.EditSimilarity(a, b), textutil.Containment(a, b))
})

func isRepeat(sim Similarity, question string, asked []string) bool {
	for _, prev := range asked {
		if !textutil.SharesToken(question, prev) {
			continue
		}
		if sim.Similarity(question, prev) > RepeatThreshold {
			return true
		}
	}
	return false
}
