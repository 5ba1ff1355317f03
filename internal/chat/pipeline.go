package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/broadcast"
	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/fallback"
	"github.com/livereview/prchat/internal/logging"
	"github.com/livereview/prchat/internal/metrics"
	"github.com/livereview/prchat/internal/orchestrator"
	"github.com/livereview/prchat/internal/validator"
)

// TurnState is a stage of one question's trip through the pipeline.
type TurnState string

const (
	StateReceived          TurnState = "received"
	StateClassified        TurnState = "classified"
	StateContextGathered   TurnState = "context_gathered"
	StateModelCalled       TurnState = "model_called"
	StateValidated         TurnState = "validated"
	StateRejected          TurnState = "rejected"
	StateDelivered         TurnState = "delivered"
	StateFallbackDelivered TurnState = "fallback_delivered"
)

var turnTransitions = map[TurnState][]TurnState{
	StateReceived:        {StateClassified, StateRejected},
	StateClassified:      {StateContextGathered, StateRejected},
	StateContextGathered: {StateModelCalled, StateRejected},
	StateModelCalled:     {StateValidated, StateRejected},
	StateValidated:       {StateDelivered, StateRejected},
	StateRejected:        {StateFallbackDelivered},
}

// Terminal reports whether no transition leaves s.
func (s TurnState) Terminal() bool {
	return s == StateDelivered || s == StateFallbackDelivered
}

// turnTrace records the states a turn went through.
type turnTrace struct {
	states  []TurnState
	started time.Time
}

func newTurnTrace(now time.Time) *turnTrace {
	return &turnTrace{states: []TurnState{StateReceived}, started: now}
}

func (t *turnTrace) current() TurnState { return t.states[len(t.states)-1] }

func (t *turnTrace) advance(next TurnState) error {
	cur := t.current()
	for _, allowed := range turnTransitions[cur] {
		if allowed == next {
			t.states = append(t.states, next)
			return nil
		}
	}
	return fmt.Errorf("invalid turn transition %s -> %s", cur, next)
}

// AskResult is the answer delivered for one question.
type AskResult struct {
	MessageID string `json:"message_id"`
	SessionID string `json:"session_id"`
	chatmodel.ModelAnswer
	Classification chatmodel.Category    `json:"query_classification"`
	State          TurnState             `json:"state"`
	Fallback       bool                  `json:"is_fallback"`
	CreatedAt      time.Time             `json:"created_at"`
	Trace          []TurnState           `json:"-"`
	Evaluation     *validator.Evaluation `json:"-"`
}

// turn carries one question through the pipeline.
type turn struct {
	id             string
	session        *chatmodel.Session
	question       string
	classification chatmodel.Classification
	userSaved      bool
	persist        bool
	trace          *turnTrace
	logger         *logging.TurnLogger
}

func (t *turn) advance(next TurnState) {
	if err := t.trace.advance(next); err != nil {
		log.Error().Err(err).Str("session_id", t.session.ID).Str("turn_id", t.id).Msg("Pipeline state error")
	}
}

// AskQuestion answers question in the session. Input errors
// (ErrInvalidQuestion, ErrSessionNotFound) and storage failures are
// returned; every other failure is delivered as a fallback answer.
func (s *Service) AskQuestion(ctx context.Context, userID int64, sessionID, question string) (res *AskResult, err error) {
	question = strings.TrimSpace(question)
	if question == "" || utf8.RuneCountInString(question) > s.opts.MaxQuestionLength {
		return nil, fmt.Errorf("%w: must be 1 to %d characters", ErrInvalidQuestion, s.opts.MaxQuestionLength)
	}
	session, err := s.deps.Store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	t := &turn{
		id:       NewMessageID(),
		session:  session,
		question: question,
		persist:  true,
		trace:    newTurnTrace(s.opts.Now()),
		classification: chatmodel.Classification{
			Category: chatmodel.CategoryGeneral,
		},
	}
	t.logger, err = logging.StartTurnLogging(s.opts.TranscriptDir, sessionID, t.id)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Turn transcript disabled")
	}
	defer t.logger.Close()
	t.logger.LogSection("QUESTION")
	t.logger.Log("%s", question)

	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("panic in pipeline: %v", r)
			log.Error().Err(perr).Str("session_id", sessionID).Str("state", string(t.trace.current())).Msg("Recovered from pipeline panic")
			t.logger.LogError("panic", perr)
			if t.trace.current().Terminal() {
				res, err = nil, perr
				return
			}
			res, err = s.reject(ctx, t, fallback.ForUnknown(perr))
		}
	}()

	if !s.allow(sessionID) {
		t.persist = false
		return s.reject(ctx, t, fallback.ForError(question, t.classification.Category, "", ErrRateLimited))
	}

	history, err := s.deps.Store.ListMessages(ctx, sessionID, s.opts.HistoryTurns*2)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	t.classification = s.deps.Classifier.Classify(question, history)
	t.advance(StateClassified)
	metrics.ClassifierConfidence.WithLabelValues(string(t.classification.Category)).Observe(t.classification.Confidence)
	log.Debug().
		Str("session_id", sessionID).
		Str("category", string(t.classification.Category)).
		Float64("confidence", t.classification.Confidence).
		Msg("Classified question")

	if err := s.saveUserMessage(ctx, t); err != nil {
		return nil, err
	}

	bundle, sources, err := s.deps.Context.Gather(ctx, t.classification, session)
	if err != nil {
		t.logger.LogError("context", err)
		return s.reject(ctx, t, fallback.ForError(question, t.classification.Category, "", err))
	}
	t.advance(StateContextGathered)
	s.deps.Tracker.NoteContext(sessionID, bundle)

	result, err := s.deps.Model.Answer(ctx, orchestrator.Request{
		SessionID:      sessionID,
		Question:       question,
		Classification: t.classification,
		Bundle:         bundle,
		History:        history,
		Logger:         t.logger,
	})
	if err != nil {
		return s.reject(ctx, t, fallback.ForError(question, t.classification.Category, result.Raw, err))
	}
	t.advance(StateModelCalled)

	ev := s.deps.Validator.Evaluate(question, result.Answer, bundle)
	t.logger.LogSection("EVALUATION")
	t.logger.Log("valid=%t hallucination=%.2f relevance=%.2f issues=%v", ev.Valid, ev.HallucinationScore, ev.RelevanceScore, ev.Issues)
	if !ev.Valid {
		res, err := s.reject(ctx, t, rejectionFallback(question, result.Answer, t.classification, bundle))
		if res != nil {
			res.Evaluation = &ev
		}
		return res, err
	}
	t.advance(StateValidated)

	answer := result.Answer
	if len(answer.Sources) == 0 {
		answer.Sources = sources
	}
	res, err = s.deliver(ctx, t, answer, StateDelivered)
	if res != nil {
		res.Evaluation = &ev
	}
	return res, err
}

// rejectionFallback picks the payload for an answer that failed
// validation: a degradation notice when required context was missing,
// otherwise the salvaged invalid-response answer.
func rejectionFallback(question string, answer chatmodel.ModelAnswer, c chatmodel.Classification, bundle *chatmodel.ContextBundle) chatmodel.ModelAnswer {
	available := bundle.Kinds()
	var missing []string
	for _, k := range c.Required {
		if !bundle.Has(k) {
			missing = append(missing, string(k))
		}
	}
	if len(missing) > 0 && len(available) > 0 {
		names := make([]string, len(available))
		for i, k := range available {
			names[i] = string(k)
		}
		return fallback.ForGracefulDegradation(names, missing)
	}
	return fallback.ForInvalidResponse(question, answer.Answer)
}

func (s *Service) reject(ctx context.Context, t *turn, answer chatmodel.ModelAnswer) (*AskResult, error) {
	t.advance(StateRejected)
	return s.deliver(ctx, t, answer, StateFallbackDelivered)
}

// deliver persists the bot message, updates conversation state and tells
// observers. Fallback answers skip the conversation state.
func (s *Service) deliver(ctx context.Context, t *turn, answer chatmodel.ModelAnswer, final TurnState) (*AskResult, error) {
	t.advance(final)
	sessionID := t.session.ID
	category := t.classification.Category
	now := s.opts.Now()

	res := &AskResult{
		SessionID:      sessionID,
		ModelAnswer:    answer,
		Classification: category,
		State:          final,
		Fallback:       final == StateFallbackDelivered,
		CreatedAt:      now,
		Trace:          append([]TurnState(nil), t.trace.states...),
	}
	defer func() {
		metrics.Questions.WithLabelValues(string(category), string(final)).Inc()
		metrics.TurnLatency.WithLabelValues(string(final)).Observe(now.Sub(t.trace.started).Seconds())
		log.Info().
			Str("session_id", sessionID).
			Str("turn_id", t.id).
			Str("category", string(category)).
			Str("state", string(final)).
			Float64("confidence", answer.Confidence).
			Msg("Question answered")
	}()

	if !t.persist {
		res.MessageID = NewMessageID()
		return res, nil
	}
	if err := s.saveUserMessage(ctx, t); err != nil {
		return nil, err
	}
	// after the question, so ids keep turn order
	res.MessageID = NewMessageID()

	bot := &chatmodel.Message{
		ID:             res.MessageID,
		SessionID:      sessionID,
		Sender:         chatmodel.SenderBot,
		Type:           answer.MessageType,
		Content:        answer.Answer,
		ContextUsed:    answer.ContextUsed,
		Classification: &category,
		Metadata: &chatmodel.ResponseMetadata{
			FollowupQuestions: answer.FollowupQuestions,
			ContextSources:    answer.Sources,
			ConfidenceScore:   answer.Confidence,
		},
		CreatedAt: now,
	}
	if err := s.deps.Store.AppendMessage(ctx, bot); err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}
	res.CreatedAt = bot.CreatedAt
	if err := s.deps.Store.TouchSession(ctx, sessionID, now); err != nil && !errors.Is(err, ErrSessionNotFound) {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to update session activity")
	}

	if final == StateDelivered {
		s.deps.Tracker.Update(sessionID, t.question, t.classification, answer.Answer, answer.ContextUsed)
	}

	s.broadcast(sessionID, broadcast.EventMessageNew, broadcast.MessagePayload{
		SessionID: sessionID,
		Message: broadcast.ChatMessage{
			MessageID:   bot.ID,
			SenderType:  string(bot.Sender),
			MessageType: string(bot.Type),
			Content:     bot.Content,
			CreatedAt:   bot.CreatedAt,
		},
		ResponseMetadata: broadcast.MessageMetadata{
			ContextUsed:       nonNil(answer.ContextUsed),
			FollowupQuestions: nonNil(answer.FollowupQuestions),
			ConfidenceScore:   answer.Confidence,
		},
	})
	s.broadcast(sessionID, broadcast.EventSessionUpdated, broadcast.SessionUpdatedPayload{
		SessionID:    sessionID,
		LastActivity: now,
	})
	return res, nil
}

// saveUserMessage stores the question once per turn.
func (s *Service) saveUserMessage(ctx context.Context, t *turn) error {
	if t.userSaved {
		return nil
	}
	category := t.classification.Category
	msg := &chatmodel.Message{
		SessionID:      t.session.ID,
		Sender:         chatmodel.SenderUser,
		Type:           chatmodel.MessageText,
		Content:        t.question,
		Classification: &category,
		CreatedAt:      s.opts.Now(),
	}
	if err := s.deps.Store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("save question: %w", err)
	}
	t.userSaved = true
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
