package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/classifier"
	"github.com/livereview/prchat/internal/metrics"
)

// deepDiveStreak is how many consecutive turns on one category count as a deep dive.
const deepDiveStreak = 3

var topicKeywords = []struct {
	topic    string
	keywords []string
}{
	{"files", []string{"file", "files", "changed", "modified", "added", "deleted"}},
	{"security", []string{"security", "vulnerable", "exploit", "auth", "permission"}},
	{"performance", []string{"performance", "slow", "optimization", "memory", "cpu"}},
	{"reviews", []string{"review", "reviewer", "feedback", "comment", "approve"}},
	{"tests", []string{"test", "testing", "coverage", "unit test", "integration"}},
	{"documentation", []string{"docs", "documentation", "readme", "comment"}},
	{"architecture", []string{"architecture", "design", "pattern", "structure"}},
}

// flowTopics label a single question in the recent-flow ring.
var flowTopics = []struct {
	topic    string
	keywords []string
}{
	{"code-analysis", []string{"code", "implementation", "function", "class", "method"}},
	{"security", []string{"security", "vulnerable", "exploit", "auth"}},
	{"performance", []string{"performance", "slow", "optimization", "memory"}},
	{"testing", []string{"test", "testing", "coverage"}},
	{"documentation", []string{"docs", "documentation", "readme"}},
}

var (
	expertIndicators = []string{
		"implementation", "architecture", "design pattern", "algorithm",
		"complexity", "performance optimization", "memory leak", "thread safety",
	}
	beginnerIndicators = []string{
		"what is", "how to", "help me understand", "explain", "basic",
	}
)

// Options tunes a Tracker.
type Options struct {
	RingSize   int
	Similarity Similarity
	Now        func() time.Time
}

// Tracker is the conversation state tracker.
type Tracker struct {
	store      Store
	ringSize   int
	similarity Similarity
	now        func() time.Time
}

func NewTracker(store Store, opts Options) *Tracker {
	if store == nil {
		store = NewInMemoryStore()
	}
	if opts.RingSize <= 0 {
		opts.RingSize = DefaultRingSize
	}
	if opts.Similarity == nil {
		opts.Similarity = QuestionSimilarity
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{store: store, ringSize: opts.RingSize, similarity: opts.Similarity, now: opts.Now}
}

func normalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Update records one answered turn and returns the resulting state.
func (t *Tracker) Update(sessionID, question string, c chatmodel.Classification, answer string, sourcesUsed []string) State {
	now := t.now()
	st := t.store.Mutate(sessionID, func(s *State) {
		qLower := normalizeQuestion(question)
		aLower := strings.ToLower(answer)

		for _, tk := range topicKeywords {
			if containsAny(qLower, tk.keywords) || containsAny(aLower, tk.keywords) {
				s.Topics.Add(tk.topic)
			}
		}

		switch {
		case containsAny(qLower, expertIndicators):
			s.KnowledgeLevel = chatmodel.KnowledgeExpert
		case containsAny(qLower, beginnerIndicators):
			s.KnowledgeLevel = chatmodel.KnowledgeBeginner
		}

		text := question + " " + answer
		for _, f := range classifier.FileNamePattern.FindAllString(text, -1) {
			s.Files.Add(f)
		}
		for _, m := range classifier.MentionPattern.FindAllStringSubmatch(text, -1) {
			s.Reviewers.Add(m[1])
		}

		var topics []string
		for _, ft := range flowTopics {
			if containsAny(qLower, ft.keywords) {
				topics = append(topics, ft.topic)
			}
		}
		s.pushFlow(FlowEntry{
			Question:   question,
			Category:   c.Category,
			Topics:     topics,
			Sources:    append([]string(nil), sourcesUsed...),
			RecordedAt: now,
		}, t.ringSize)

		s.CurrentFocus = c.Category
		s.LastSources = append([]string(nil), sourcesUsed...)
		s.pushQuestion(qLower)
		s.LastTouched = now
	})

	log.Debug().
		Str("session_id", sessionID).
		Str("focus", string(st.CurrentFocus)).
		Str("knowledge_level", string(st.KnowledgeLevel)).
		Int("flow", len(st.Flow)).
		Msg("Updated conversation state")
	return st
}

// NoteContext remembers the security concerns and performance issues already
// put in front of the asker.
func (t *Tracker) NoteContext(sessionID string, bundle *chatmodel.ContextBundle) {
	if bundle == nil || (bundle.Security == nil && bundle.Performance == nil) {
		return
	}
	t.store.Mutate(sessionID, func(s *State) {
		if bundle.Security != nil {
			for _, c := range bundle.Security.Concerns {
				s.SecurityConcerns.Add(c)
			}
		}
		if bundle.Performance != nil {
			for _, p := range bundle.Performance.Issues {
				s.PerformanceIssues.Add(p)
			}
		}
	})
}

// State returns a copy of the session's state.
func (t *Tracker) State(sessionID string) (State, bool) {
	return t.store.Get(sessionID)
}

// IsRepeatingQuestion reports whether question is similar to one already asked.
func (t *Tracker) IsRepeatingQuestion(sessionID, question string) bool {
	st, ok := t.store.Get(sessionID)
	if !ok {
		return false
	}
	return isRepeat(t.similarity, normalizeQuestion(question), st.AskedQuestions)
}

// PromptEnhancement renders the conversation memory as prompt text. It is
// empty for sessions without recorded turns.
func (t *Tracker) PromptEnhancement(sessionID, question string) string {
	st, ok := t.store.Get(sessionID)
	if !ok || len(st.Flow) == 0 {
		return ""
	}
	repeating := isRepeat(t.similarity, normalizeQuestion(question), st.AskedQuestions)
	return renderEnhancement(&st, repeating)
}

func renderEnhancement(st *State, repeating bool) string {
	var b strings.Builder
	b.WriteString("\n**Conversation Context:**\n")
	if len(st.Topics) > 0 {
		fmt.Fprintf(&b, "- Previously discussed: %s\n", strings.Join(st.Topics.Sorted(), ", "))
	}
	fmt.Fprintf(&b, "- User knowledge level: %s\n", st.KnowledgeLevel)
	if len(st.Flow) > 1 {
		tail := st.Flow[max(0, len(st.Flow)-3):]
		pattern := make([]string, len(tail))
		for i, e := range tail {
			pattern[i] = string(e.Category)
		}
		fmt.Fprintf(&b, "- Recent question pattern: %s\n", strings.Join(pattern, " → "))
	}
	if len(st.Files) > 0 {
		files := st.Files.Sorted()
		if len(files) > 5 {
			files = files[:5]
		}
		fmt.Fprintf(&b, "- Files already discussed: %s\n", strings.Join(files, ", "))
	}
	if len(st.Reviewers) > 0 {
		fmt.Fprintf(&b, "- Reviewers mentioned: %s\n", strings.Join(st.Reviewers.Sorted(), ", "))
	}
	if n := len(st.SecurityConcerns); n > 0 {
		fmt.Fprintf(&b, "- Security concerns already surfaced: %d\n", n)
	}

	b.WriteString("\n**Response Guidelines:**\n")
	if repeating {
		b.WriteString("- This question is similar to previous ones. Avoid repeating prior advice; provide NEW specific information or a different perspective.\n")
	}
	if _, ok := st.Streak(deepDiveStreak); ok {
		b.WriteString("- User is deep-diving into this topic. Go deeper technically and provide more detailed information.\n")
	}
	fmt.Fprintf(&b, "- Adapt complexity to %s level\n", st.KnowledgeLevel)
	b.WriteString("- Reference specific code sections, line numbers, and exact reviewer quotes when possible\n")
	b.WriteString("- Avoid repeating information already provided in this conversation\n")
	return b.String()
}

// Cleanup forgets a session.
func (t *Tracker) Cleanup(sessionID string) {
	t.store.Delete(sessionID)
	log.Debug().Str("session_id", sessionID).Msg("Dropped conversation state")
}

// EvictIdle drops states untouched for longer than ttl, except those of the
// keep sessions, and returns how many went.
func (t *Tracker) EvictIdle(ttl time.Duration, keep ...string) int {
	cutoff := t.now().Add(-ttl)
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	evicted := 0
	for _, id := range t.store.SessionIDs() {
		if _, ok := kept[id]; ok {
			continue
		}
		if t.store.DeleteIf(id, func(s *State) bool { return s.LastTouched.Before(cutoff) }) {
			evicted++
		}
	}
	metrics.ConversationStates.Set(float64(t.Count()))
	if evicted > 0 {
		log.Info().Int("evicted", evicted).Dur("ttl", ttl).Msg("Evicted idle conversation states")
	}
	return evicted
}

// Count returns the number of sessions with state.
func (t *Tracker) Count() int {
	return len(t.store.SessionIDs())
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
