package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/llm"
	"github.com/livereview/prchat/internal/logging"
	"github.com/livereview/prchat/internal/retry"
)

// DefaultHistoryTurns is how many past messages are quoted in the prompt.
const DefaultHistoryTurns = 5

// Generator runs a prompt through the model call policy and decodes the
// reply into target.
type Generator interface {
	Generate(ctx context.Context, prompt string, target interface{}, logger retry.Logger) (llm.TieredResult, error)
}

// Enhancer supplies the conversation-aware prompt addendum.
type Enhancer interface {
	PromptEnhancement(sessionID, question string) string
}

type Options struct {
	HistoryTurns int
}

type Orchestrator struct {
	generator    Generator
	enhancer     Enhancer
	followups    FollowupSource
	historyTurns int
}

// New wires the orchestrator. enhancer and followups may be nil.
func New(generator Generator, enhancer Enhancer, followups FollowupSource, opts Options) *Orchestrator {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = DefaultHistoryTurns
	}
	return &Orchestrator{
		generator:    generator,
		enhancer:     enhancer,
		followups:    followups,
		historyTurns: opts.HistoryTurns,
	}
}

type Request struct {
	SessionID      string
	Question       string
	Classification chatmodel.Classification
	Bundle         *chatmodel.ContextBundle
	History        []chatmodel.Message
	Logger         *logging.TurnLogger
}

type Result struct {
	Answer       chatmodel.ModelAnswer
	Prompt       string
	Raw          string
	Tier         string
	Model        string
	Attempts     int
	RetryReasons []string
}

// Answer builds the prompt, calls the model and parses the reply. Errors
// wrap llm.ErrModelUnavailable when no tier produced a reply and
// llm.ErrInvalidReply when replies could not be decoded; Result.Raw keeps
// the last raw reply in both cases.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (Result, error) {
	enhancement := ""
	if o.enhancer != nil {
		enhancement = o.enhancer.PromptEnhancement(req.SessionID, req.Question)
	}
	prompt := BuildPrompt(PromptInput{
		Question:       req.Question,
		Classification: req.Classification,
		Bundle:         req.Bundle,
		History:        req.History,
		HistoryLimit:   o.historyTurns,
		Enhancement:    enhancement,
	})

	var r reply
	gen, err := o.generator.Generate(ctx, prompt, &r, req.Logger)
	res := Result{
		Prompt:       prompt,
		Raw:          gen.Raw,
		Tier:         gen.Tier,
		Model:        gen.Model,
		Attempts:     gen.Attempts,
		RetryReasons: gen.RetryReasons,
	}
	if gen.Raw != "" {
		req.Logger.LogResponse(gen.Raw)
	}
	if err != nil {
		req.Logger.LogError("model", err)
		return res, fmt.Errorf("answer question: %w", err)
	}

	answer := parseReply(r)
	answer.FollowupQuestions = selectFollowups(answer.FollowupQuestions, o.followups,
		req.SessionID, req.Classification.Category, req.Bundle)
	res.Answer = answer

	log.Debug().
		Str("session_id", req.SessionID).
		Str("category", string(req.Classification.Category)).
		Str("tier", gen.Tier).
		Int("attempts", gen.Attempts).
		Float64("confidence", answer.Confidence).
		Msg("Model answer parsed")
	return res, nil
}
