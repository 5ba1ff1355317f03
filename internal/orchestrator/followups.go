package orchestrator

import (
	"regexp"

	"github.com/livereview/prchat/internal/chatmodel"
)

var genericFollowupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)what.*specific`),
	regexp.MustCompile(`(?i)are there any`),
	regexp.MustCompile(`(?i)could you`),
	regexp.MustCompile(`(?i)would you like`),
	regexp.MustCompile(`(?i)what else`),
	regexp.MustCompile(`(?i)anything else`),
}

// IsGenericFollowups reports whether every question is boilerplate. An empty
// list counts as generic.
func IsGenericFollowups(questions []string) bool {
	for _, q := range questions {
		if !isGeneric(q) {
			return false
		}
	}
	return true
}

func isGeneric(q string) bool {
	for _, p := range genericFollowupPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// FollowupSource proposes follow-ups that fit the session so far.
type FollowupSource interface {
	AdaptiveFollowups(sessionID string, category chatmodel.Category, bundle *chatmodel.ContextBundle) []string
}

func selectFollowups(model []string, src FollowupSource, sessionID string, c chatmodel.Category, b *chatmodel.ContextBundle) []string {
	if !IsGenericFollowups(model) {
		return model
	}
	if src != nil {
		if adaptive := src.AdaptiveFollowups(sessionID, c, b); len(adaptive) > 0 {
			return head(adaptive, chatmodel.MaxFollowups)
		}
	}
	return chatmodel.DefaultFollowups(c)
}
