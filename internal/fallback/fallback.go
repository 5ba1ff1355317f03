// Package fallback builds the canned answers delivered when a stage of the
// question pipeline fails. Every constructor is pure and always succeeds.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/contextagg"
	"github.com/livereview/prchat/internal/llm"
	"github.com/livereview/prchat/internal/metrics"
)

// Source is the only source cited by fallback answers.
const Source = "fallback_handler"

// ErrRateLimited marks a question refused by the per-session rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Case names which fallback was produced.
type Case string

const (
	CaseMissingContext      Case = "missing_context"
	CaseModelFailure        Case = "model_failure"
	CaseInvalidResponse     Case = "invalid_response"
	CaseTimeout             Case = "timeout"
	CaseRateLimit           Case = "rate_limit"
	CaseUnknown             Case = "unknown"
	CaseContextRetrieval    Case = "context_retrieval_failure"
	CaseGracefulDegradation Case = "graceful_degradation"
)

type missingContextText struct {
	answer    string
	followups []string
}

var missingContext = map[chatmodel.Category]missingContextText{
	chatmodel.CategorySummary: {
		answer: "I apologize, but I don't have access to the PR summary information. To get a summary of this PR, please ensure the PR has been fetched and analyzed first.",
		followups: []string{
			"Would you like me to help you fetch the PR details?",
			"Is there specific information about the PR you're looking for?",
			"Would you like to ask about something else?",
		},
	},
	chatmodel.CategoryCodeAnalysis: {
		answer: "I don't have access to the code changes for this PR. The files and their modifications haven't been loaded yet. Please fetch the PR details first to analyze the code changes.",
		followups: []string{
			"Would you like to fetch the PR data first?",
			"Is there a specific file you're interested in?",
			"Would you like to know about other aspects of this PR?",
		},
	},
	chatmodel.CategoryReviewFeedback: {
		answer: "I don't have access to the review information for this PR. The reviews and comments haven't been loaded. Please ensure the PR has been fetched with all its review data.",
		followups: []string{
			"Would you like to fetch the review data?",
			"Are you looking for feedback from a specific reviewer?",
			"Would you like to know about other PR information?",
		},
	},
	chatmodel.CategorySecurity: {
		answer: "I don't have access to the security analysis for this PR. A security review hasn't been performed yet. Please run the PR analysis first to get security insights.",
		followups: []string{
			"Would you like me to help you run a security analysis?",
			"Are you concerned about specific security aspects?",
			"Would you like to ask about other PR details?",
		},
	},
	chatmodel.CategoryPerformance: {
		answer: "I don't have access to performance analysis data for this PR. Performance insights aren't available without running the PR analysis first.",
		followups: []string{
			"Would you like to run a performance analysis?",
			"Are you looking for specific performance metrics?",
			"Would you like to explore other aspects of this PR?",
		},
	},
	chatmodel.CategoryTimeline: {
		answer: "I don't have access to the timeline information for this PR. The metadata hasn't been loaded yet.",
		followups: []string{
			"Would you like to fetch the PR metadata?",
			"Are you looking for specific dates or events?",
			"Would you like to know about other PR details?",
		},
	},
	chatmodel.CategoryFileListing: {
		answer: "I don't have access to the file change information for this PR. The list of modified files hasn't been loaded. Please fetch the PR data first.",
		followups: []string{
			"Would you like to fetch the PR file data?",
			"Are you looking for changes in a specific directory?",
			"Would you like to know about other PR information?",
		},
	},
	chatmodel.CategoryTestGuidance: {
		answer: "I don't have access to test recommendations for this PR. Test analysis requires the PR to be analyzed first.",
		followups: []string{
			"Would you like to run a test analysis?",
			"Are you looking for specific testing guidance?",
			"Would you like to ask about other PR aspects?",
		},
	},
	chatmodel.CategoryGeneral: {
		answer: "I don't have enough information about this PR to answer your question. The PR data hasn't been loaded yet.",
		followups: []string{
			"Would you like to fetch the PR information first?",
			"Can you be more specific about what you're looking for?",
			"Would you like to explore available PR data?",
		},
	},
}

func newAnswer(c Case, text string, confidence float64, followups []string) chatmodel.ModelAnswer {
	metrics.Fallbacks.WithLabelValues(string(c)).Inc()
	return chatmodel.ModelAnswer{
		Answer:            text,
		MessageType:       chatmodel.MessageText,
		ContextUsed:       []string{},
		FollowupQuestions: append([]string(nil), followups...),
		Confidence:        confidence,
		Sources:           []string{Source},
	}
}

// ForMissingContext explains that the data the category needs is not loaded.
func ForMissingContext(category chatmodel.Category) chatmodel.ModelAnswer {
	log.Warn().Str("category", string(category)).Msg("Handling missing context")
	t, ok := missingContext[category]
	if !ok {
		t = missingContext[chatmodel.CategoryGeneral]
	}
	return newAnswer(CaseMissingContext, t.answer, 0.8, t.followups)
}

// ForModelFailure is used when no model tier produced a reply.
func ForModelFailure() chatmodel.ModelAnswer {
	log.Error().Msg("Handling model failure")
	return newAnswer(CaseModelFailure,
		"I'm sorry, but I'm experiencing technical difficulties processing your question right now. This could be due to high server load or a temporary service issue. Please try again in a moment.",
		0.9,
		[]string{
			"Would you like to try rephrasing your question?",
			"Can you ask a simpler or more specific question?",
			"Would you like to try again in a few minutes?",
		})
}

// ForInvalidResponse salvages what it can from a reply that was unusable or
// rejected by validation. partial may be raw model output.
func ForInvalidResponse(question, partial string) chatmodel.ModelAnswer {
	log.Warn().Str("question", question).Msg("Handling invalid response")
	text := "I apologize, but I encountered an issue while processing your question."
	if clean := SalvageAnswer(partial); len(clean) > 10 {
		text = fmt.Sprintf("I was able to partially process your question: %s However, the complete response may not be fully accurate.", clean)
	}
	return newAnswer(CaseInvalidResponse, text, 0.3, queryFollowups(question))
}

// ForTimeout is used when the question took too long.
func ForTimeout() chatmodel.ModelAnswer {
	log.Warn().Msg("Handling timeout")
	return newAnswer(CaseTimeout,
		"I'm sorry, but your request is taking longer than expected to process. This might be due to the complexity of your question or current system load. Please try asking a more specific question or try again later.",
		0.9,
		[]string{
			"Would you like to ask a more specific question?",
			"Can you break down your question into smaller parts?",
			"Would you like to try again with a simpler query?",
		})
}

// ForRateLimit is used when the session asked too many questions too fast.
func ForRateLimit() chatmodel.ModelAnswer {
	log.Warn().Msg("Handling rate limit")
	return newAnswer(CaseRateLimit,
		"I'm currently experiencing high demand and need to limit responses to ensure service availability for all users. Please wait a moment before asking your next question.",
		1.0,
		[]string{
			"Would you like to try again in a minute?",
			"Can you save your question and ask it later?",
			"Would you like tips on how to ask more efficient questions?",
		})
}

// ForUnknown covers everything else, including recovered panics.
func ForUnknown(err error) chatmodel.ModelAnswer {
	log.Error().Err(err).Msg("Handling unknown error")
	return newAnswer(CaseUnknown,
		"I encountered an unexpected error while processing your question. Our team has been notified and will investigate the issue. Please try asking your question differently or contact support if the problem persists.",
		0.7,
		[]string{
			"Would you like to rephrase your question?",
			"Can you try asking about something else?",
			"Would you like to report this issue to support?",
		})
}

// ForContextRetrievalFailure is used when storage could not be read.
func ForContextRetrievalFailure() chatmodel.ModelAnswer {
	log.Error().Msg("Handling context retrieval failure")
	return newAnswer(CaseContextRetrieval,
		"I'm having trouble accessing the relevant information to answer your question. This could be due to a database connection issue or missing data. Please try again, or ask a different question about this PR.",
		0.8,
		[]string{
			"Would you like to try a different question?",
			"Can you ask about general PR information instead?",
			"Would you like to check if the PR data has been loaded?",
		})
}

// ForGracefulDegradation answers from partial context and names what is
// missing.
func ForGracefulDegradation(available, missing []string) chatmodel.ModelAnswer {
	text := fmt.Sprintf("I can partially answer your question based on the available information (%s).", strings.Join(available, ", "))
	if len(missing) > 0 {
		text += fmt.Sprintf(" However, I don't have access to %s which might provide more complete information.", strings.Join(missing, ", "))
	}
	a := newAnswer(CaseGracefulDegradation, text, 0.6, []string{
		"Would you like me to answer based on available information?",
		"Can you ask a more specific question about the available data?",
		"Would you like to fetch the missing information first?",
	})
	a.ContextUsed = append([]string{}, available...)
	a.Sources = append(append([]string{}, available...), Source)
	return a
}

// ForError picks the fallback for a pipeline error. raw is the last model
// output, if any, for salvage.
func ForError(question string, category chatmodel.Category, raw string, err error) chatmodel.ModelAnswer {
	switch {
	case errors.Is(err, ErrRateLimited):
		return ForRateLimit()
	case errors.Is(err, context.DeadlineExceeded):
		return ForTimeout()
	case errors.Is(err, contextagg.ErrRetrievalFailed):
		return ForContextRetrievalFailure()
	case errors.Is(err, contextagg.ErrNoContext):
		return ForMissingContext(category)
	case errors.Is(err, llm.ErrInvalidReply):
		return ForInvalidResponse(question, raw)
	case errors.Is(err, llm.ErrModelUnavailable):
		return ForModelFailure()
	}
	return ForUnknown(err)
}
