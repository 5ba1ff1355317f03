// Package validator scores model answers for structure, hallucination risk
// and relevance before they are delivered.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/metrics"
)

const (
	// MaxHallucination is the highest score an answer may have and stay valid.
	MaxHallucination = 0.7
	// MinRelevance is the score below which low relevance is reported.
	MinRelevance = 0.3
)

// Issue texts.
const (
	IssueMissingAnswer    = "Missing or invalid answer field"
	IssueMessageType      = "Missing or invalid message_type field"
	IssueConfidence       = "Invalid confidence score - must be between 0 and 1"
	IssueHallucination    = "High hallucination detected - response contains information not in context"
	IssueLowRelevance     = "Low relevance - response does not address the query adequately"
	IssueMeaningless      = "Empty or meaningless response"
	IssueFollowups        = "Invalid or inappropriate followup questions"
	IssueContextMismatch  = "Context usage mismatch - claimed context not available"
	IssueEvaluationFailed = "Evaluation process failed"
	IssueTooManyFollowups = "Too many followup questions: %d"
)

var meaninglessPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(sorry|apologize|unable|can't|cannot)\s`),
	regexp.MustCompile(`(?i)^(i don't|i'm not sure|i cannot determine)`),
	regexp.MustCompile(`(?i)^(no information|no data|not available|no answer provided)`),
}

type Evaluation struct {
	Valid              bool     `json:"is_valid"`
	HallucinationScore float64  `json:"hallucination_score"`
	RelevanceScore     float64  `json:"relevance_score"`
	Issues             []string `json:"issues"`
}

// HallucinationScorer estimates how much of answer is unsupported by the
// bundle, in [0,1].
type HallucinationScorer interface {
	Hallucination(answer string, bundle *chatmodel.ContextBundle) float64
}

// RelevanceScorer estimates how well answer addresses question, in [0,1].
type RelevanceScorer interface {
	Relevance(question, answer string) float64
}

type Options struct {
	Hallucination HallucinationScorer
	Relevance     RelevanceScorer
}

type Validator struct {
	hallucination HallucinationScorer
	relevance     RelevanceScorer
}

// New returns a validator using the keyword heuristics unless other scorers
// are given.
func New(opts Options) *Validator {
	if opts.Hallucination == nil {
		opts.Hallucination = KeywordHallucination{}
	}
	if opts.Relevance == nil {
		opts.Relevance = KeywordRelevance{}
	}
	return &Validator{hallucination: opts.Hallucination, relevance: opts.Relevance}
}

// Evaluate checks answer against the question and the context that was
// supplied to the model. It never panics; a failure inside a scorer yields an
// invalid evaluation.
func (v *Validator) Evaluate(question string, answer chatmodel.ModelAnswer, bundle *chatmodel.ContextBundle) (ev Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Response evaluation failed")
			ev = Evaluation{Valid: false, HallucinationScore: 1, RelevanceScore: 0, Issues: []string{IssueEvaluationFailed}}
		}
		record(ev)
	}()

	ev = Evaluation{Valid: true, Issues: []string{}}
	invalid := func(issue string) {
		ev.Valid = false
		ev.Issues = append(ev.Issues, issue)
	}

	if strings.TrimSpace(answer.Answer) == "" {
		invalid(IssueMissingAnswer)
	}
	if answer.MessageType == "" || chatmodel.ParseMessageType(string(answer.MessageType)) != answer.MessageType {
		invalid(IssueMessageType)
	}

	ev.HallucinationScore = clamp(v.hallucination.Hallucination(answer.Answer, bundle))
	if ev.HallucinationScore > MaxHallucination {
		invalid(IssueHallucination)
	}

	ev.RelevanceScore = clamp(v.relevance.Relevance(question, answer.Answer))
	if ev.RelevanceScore < MinRelevance {
		ev.Issues = append(ev.Issues, IssueLowRelevance)
	}

	if answer.Confidence < 0 || answer.Confidence > 1 {
		invalid(IssueConfidence)
	}
	if IsMeaningless(answer.Answer) {
		invalid(IssueMeaningless)
	}

	if n := len(answer.FollowupQuestions); n > chatmodel.MaxFollowups {
		ev.Issues = append(ev.Issues, fmt.Sprintf(IssueTooManyFollowups, n))
	}
	if !validFollowups(answer.FollowupQuestions) {
		ev.Issues = append(ev.Issues, IssueFollowups)
	}
	if !contextClaimsAvailable(answer.ContextUsed, bundle) {
		ev.Issues = append(ev.Issues, IssueContextMismatch)
	}

	log.Debug().
		Bool("valid", ev.Valid).
		Float64("hallucination", ev.HallucinationScore).
		Float64("relevance", ev.RelevanceScore).
		Int("issues", len(ev.Issues)).
		Msg("Response evaluation completed")
	return ev
}

func record(ev Evaluation) {
	verdict := "valid"
	if !ev.Valid {
		verdict = "invalid"
	}
	metrics.Validations.WithLabelValues(verdict).Inc()
	metrics.HallucinationScore.Observe(ev.HallucinationScore)
}

// IsMeaningless reports an empty answer or one that only apologises.
func IsMeaningless(answer string) bool {
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return true
	}
	for _, p := range meaninglessPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

func validFollowups(questions []string) bool {
	for _, q := range questions {
		if strings.TrimSpace(q) == "" || !strings.Contains(q, "?") {
			return false
		}
	}
	return true
}

func contextClaimsAvailable(used []string, bundle *chatmodel.ContextBundle) bool {
	for _, u := range used {
		if !bundle.Has(chatmodel.ContextKind(u)) {
			return false
		}
	}
	return true
}

func clamp(v float64) float64 {
	return min(1, max(0, v))
}
