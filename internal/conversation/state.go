// Package conversation keeps short-term, per-session memory of what has been
// discussed so prompts can avoid repetition and adapt to the asker.
package conversation

import (
	"sort"
	"time"

	"github.com/livereview/prchat/internal/chatmodel"
)

// DefaultRingSize bounds the recent-flow ring of a session.
const DefaultRingSize = 20

// maxAskedQuestions bounds the questions kept for repetition checks.
const maxAskedQuestions = 100

// FlowEntry summarises one recorded turn.
type FlowEntry struct {
	Question   string             `json:"question"`
	Category   chatmodel.Category `json:"category"`
	Topics     []string           `json:"topics,omitempty"`
	Sources    []string           `json:"sources,omitempty"`
	RecordedAt time.Time          `json:"recorded_at"`
}

// Set is a deduplicated string set.
type Set map[string]struct{}

func (s Set) Add(v string) {
	if v != "" {
		s[v] = struct{}{}
	}
}

func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (s Set) clone() Set {
	cp := make(Set, len(s))
	for v := range s {
		cp[v] = struct{}{}
	}
	return cp
}

// State is the memory of one session. It lives only for the process lifetime.
type State struct {
	SessionID         string
	Topics            Set
	AskedQuestions    []string
	KnowledgeLevel    chatmodel.KnowledgeLevel
	Files             Set
	Reviewers         Set
	SecurityConcerns  Set
	PerformanceIssues Set
	Flow              []FlowEntry
	CurrentFocus      chatmodel.Category
	LastSources       []string
	LastTouched       time.Time
}

func newState(sessionID string, now time.Time) *State {
	return &State{
		SessionID:         sessionID,
		Topics:            make(Set),
		KnowledgeLevel:    chatmodel.KnowledgeIntermediate,
		Files:             make(Set),
		Reviewers:         make(Set),
		SecurityConcerns:  make(Set),
		PerformanceIssues: make(Set),
		LastTouched:       now,
	}
}

// Clone returns a deep copy that shares nothing with the receiver.
func (s *State) Clone() State {
	cp := *s
	cp.Topics = s.Topics.clone()
	cp.Files = s.Files.clone()
	cp.Reviewers = s.Reviewers.clone()
	cp.SecurityConcerns = s.SecurityConcerns.clone()
	cp.PerformanceIssues = s.PerformanceIssues.clone()
	cp.AskedQuestions = append([]string(nil), s.AskedQuestions...)
	cp.LastSources = append([]string(nil), s.LastSources...)
	cp.Flow = make([]FlowEntry, len(s.Flow))
	for i, e := range s.Flow {
		e.Topics = append([]string(nil), e.Topics...)
		e.Sources = append([]string(nil), e.Sources...)
		cp.Flow[i] = e
	}
	return cp
}

// pushFlow appends e and drops the oldest entries beyond size.
func (s *State) pushFlow(e FlowEntry, size int) {
	s.Flow = append(s.Flow, e)
	if over := len(s.Flow) - size; over > 0 {
		s.Flow = append(s.Flow[:0:0], s.Flow[over:]...)
	}
}

func (s *State) pushQuestion(q string) {
	s.AskedQuestions = append(s.AskedQuestions, q)
	if over := len(s.AskedQuestions) - maxAskedQuestions; over > 0 {
		s.AskedQuestions = append(s.AskedQuestions[:0:0], s.AskedQuestions[over:]...)
	}
}

// Streak reports whether the last n flow entries share one category.
func (s *State) Streak(n int) (chatmodel.Category, bool) {
	if n <= 0 || len(s.Flow) < n {
		return "", false
	}
	tail := s.Flow[len(s.Flow)-n:]
	c := tail[0].Category
	for _, e := range tail[1:] {
		if e.Category != c {
			return "", false
		}
	}
	return c, true
}
