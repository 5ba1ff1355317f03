package classifier

import (
	"regexp"
	"strings"

	"github.com/livereview/prchat/internal/chatmodel"
)

var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^h(i|ey|ello)\b`),
	regexp.MustCompile(`(?i)^good (morning|afternoon|evening)`),
	regexp.MustCompile(`(?i)^how.*you`),
}

type literalRule struct {
	name       string
	phrases    []string
	category   chatmodel.Category
	confidence float64
}

// Exact phrases are checked before the broad improvement keywords so that
// "what files changed" style questions keep their dedicated category.
var literalRules = []literalRule{
	{
		name:       "files_changed",
		phrases:    []string{"what files changed", "files modified"},
		category:   chatmodel.CategoryFileListing,
		confidence: 0.95,
	},
	{
		name:       "security_issues",
		phrases:    []string{"security issues", "security concerns"},
		category:   chatmodel.CategorySecurity,
		confidence: 0.95,
	},
	{
		name:       "reviewer_feedback",
		phrases:    []string{"what did reviewers say", "review comments"},
		category:   chatmodel.CategoryReviewFeedback,
		confidence: 0.95,
	},
	{
		name:       "improvement",
		phrases:    []string{"improve", "areas", "plan"},
		category:   chatmodel.CategoryCodeAnalysis,
		confidence: 0.9,
	},
}

// RuleScorer handles unambiguous phrasings without pattern scoring, and keeps
// greetings on the topic of the conversation.
type RuleScorer struct{}

func NewRuleScorer() *RuleScorer { return &RuleScorer{} }

func (*RuleScorer) Name() string { return "rules" }

func (*RuleScorer) Score(question string, history []chatmodel.Message) (Result, bool) {
	lower := strings.ToLower(strings.TrimSpace(question))

	if len(history) > 0 && IsGreeting(lower) {
		category := lastBotCategory(history)
		if category == "" {
			category = chatmodel.CategorySummary
		}
		return Result{Category: category, Confidence: 0.8, Rule: "greeting"}, true
	}

	for _, rule := range literalRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(lower, phrase) {
				return Result{Category: rule.category, Confidence: rule.confidence, Rule: rule.name}, true
			}
		}
	}
	return Result{}, false
}

// IsGreeting reports whether the question is small talk.
func IsGreeting(question string) bool {
	for _, p := range greetingPatterns {
		if p.MatchString(question) {
			return true
		}
	}
	return false
}

func lastBotCategory(history []chatmodel.Message) chatmodel.Category {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Sender == chatmodel.SenderBot && m.Classification != nil && m.Classification.Valid() {
			return *m.Classification
		}
	}
	return ""
}
