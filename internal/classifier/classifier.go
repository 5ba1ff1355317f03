// Package classifier maps a free-text question about a pull request to an
// intent category, a confidence and the context kinds needed to answer it.
package classifier

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/chatmodel"
)

const (
	// MinConfidence is the pattern score below which a question is treated as general.
	MinConfidence = 0.3
	// GeneralConfidence is reported for questions nothing else matched.
	GeneralConfidence = 0.5
)

// Result is a scorer's verdict for one question.
type Result struct {
	Category   chatmodel.Category
	Confidence float64
	Rule       string
}

// Scorer is one classification strategy. It returns ok=false when it has no
// opinion about the question.
type Scorer interface {
	Name() string
	Score(question string, history []chatmodel.Message) (Result, bool)
}

// Classifier runs its scorers in order and takes the first verdict.
type Classifier struct {
	scorers []Scorer
}

// New returns a classifier using the given scorers. With no scorers the
// default chain is used: literal rules first, then per-category patterns.
func New(scorers ...Scorer) *Classifier {
	if len(scorers) == 0 {
		scorers = []Scorer{NewRuleScorer(), NewPatternScorer()}
	}
	return &Classifier{scorers: scorers}
}

// Classify never fails. Unmatched questions become general at 0.5.
func (c *Classifier) Classify(question string, history []chatmodel.Message) chatmodel.Classification {
	q := strings.TrimSpace(question)
	result := Result{Category: chatmodel.CategoryGeneral, Confidence: GeneralConfidence, Rule: "default"}

	if q != "" {
		for _, s := range c.scorers {
			r, ok := s.Score(q, history)
			if !ok || !r.Category.Valid() {
				continue
			}
			result = r
			break
		}
	}

	log.Debug().
		Str("category", string(result.Category)).
		Float64("confidence", result.Confidence).
		Str("rule", result.Rule).
		Msg("Classified question")

	return chatmodel.Classification{
		Category:   result.Category,
		Confidence: result.Confidence,
		Required:   result.Category.RequiredContext(),
		Filters:    ExtractFilters(q),
	}
}
