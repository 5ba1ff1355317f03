// Package chat runs chat sessions: session CRUD, the question pipeline and
// per-session analytics.
package chat

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/livereview/prchat/internal/broadcast"
	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/conversation"
	"github.com/livereview/prchat/internal/orchestrator"
	"github.com/livereview/prchat/internal/validator"
)

const (
	DefaultHistoryTurns      = 5
	DefaultMaxQuestionLength = 2000
)

// PRLookup resolves the pull request or repository a new session is about.
type PRLookup interface {
	FindPullRequest(ctx context.Context, owner, name string, number int) (*chatmodel.PRMetadata, string, error)
	GetRepository(ctx context.Context, repositoryID string) (*chatmodel.RepositoryContext, error)
}

type QueryClassifier interface {
	Classify(question string, history []chatmodel.Message) chatmodel.Classification
}

type ContextGatherer interface {
	Gather(ctx context.Context, c chatmodel.Classification, session *chatmodel.Session) (*chatmodel.ContextBundle, []string, error)
}

type Answerer interface {
	Answer(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

type Evaluator interface {
	Evaluate(question string, answer chatmodel.ModelAnswer, bundle *chatmodel.ContextBundle) validator.Evaluation
}

// StateTracker is the slice of conversation.Tracker the service drives.
type StateTracker interface {
	Update(sessionID, question string, c chatmodel.Classification, answer string, sourcesUsed []string) conversation.State
	NoteContext(sessionID string, bundle *chatmodel.ContextBundle)
	Cleanup(sessionID string)
	EvictIdle(ttl time.Duration, keep ...string) int
}

// Broadcaster fans session events out to observers.
type Broadcaster interface {
	Broadcast(sessionID string, event broadcast.Event, payload interface{}, exclude ...string) int
	CloseSession(sessionID string) int
	ActiveSessions() []string
}

// CleanupScheduler defers the teardown of a deleted session's live state.
type CleanupScheduler interface {
	ScheduleSessionCleanup(ctx context.Context, sessionID string) error
}

// Deps are the collaborators of a Service. Broadcast and Cleanup are
// optional.
type Deps struct {
	Store      SessionStore
	PRs        PRLookup
	Classifier QueryClassifier
	Context    ContextGatherer
	Tracker    StateTracker
	Model      Answerer
	Validator  Evaluator
	Broadcast  Broadcaster
	Cleanup    CleanupScheduler
}

type Options struct {
	HistoryTurns      int
	MaxQuestionLength int
	// RateLimitPerMinute caps questions per session; zero disables it.
	RateLimitPerMinute int
	RateLimitBurst     int
	TranscriptDir      string
	Now                func() time.Time
}

type Service struct {
	deps Deps
	opts Options

	limitMu  sync.Mutex
	limiters map[string]*sessionLimiter
}

type sessionLimiter struct {
	*rate.Limiter
	lastUsed time.Time
}

func NewService(deps Deps, opts Options) *Service {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = DefaultHistoryTurns
	}
	if opts.MaxQuestionLength <= 0 {
		opts.MaxQuestionLength = DefaultMaxQuestionLength
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 1
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{deps: deps, opts: opts, limiters: make(map[string]*sessionLimiter)}
}

// allow takes a token from the session's limiter.
func (s *Service) allow(sessionID string) bool {
	if s.opts.RateLimitPerMinute <= 0 {
		return true
	}
	s.limitMu.Lock()
	l, ok := s.limiters[sessionID]
	if !ok {
		l = &sessionLimiter{Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.opts.RateLimitPerMinute)), s.opts.RateLimitBurst)}
		s.limiters[sessionID] = l
	}
	l.lastUsed = s.opts.Now()
	s.limitMu.Unlock()
	return l.Allow()
}

func (s *Service) forgetLimiter(sessionID string) {
	s.limitMu.Lock()
	delete(s.limiters, sessionID)
	s.limitMu.Unlock()
}

func (s *Service) broadcast(sessionID string, event broadcast.Event, payload interface{}) {
	if s.deps.Broadcast == nil {
		return
	}
	s.deps.Broadcast.Broadcast(sessionID, event, payload)
}

// SetCleanupScheduler routes session teardown through a background queue.
// Call it before the service starts handling requests.
func (s *Service) SetCleanupScheduler(c CleanupScheduler) { s.deps.Cleanup = c }
