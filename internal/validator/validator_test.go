package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livereview/prchat/internal/chatmodel"
)

func filesBundle() *chatmodel.ContextBundle {
	return &chatmodel.ContextBundle{
		Files: &chatmodel.FilesContext{
			Files: []chatmodel.FileChange{
				{Filename: "auth/login.go", Additions: 40, Deletions: 5},
				{Filename: "auth/limiter.go", Additions: 30},
				{Filename: "README.md", Additions: 2, Deletions: 1},
			},
			Summary: chatmodel.FilesSummary{TotalFiles: 3},
		},
	}
}

func answer(text string) chatmodel.ModelAnswer {
	return chatmodel.ModelAnswer{
		Answer:            text,
		MessageType:       chatmodel.MessageText,
		ContextUsed:       []string{"files"},
		FollowupQuestions: []string{"Which file changed the most?"},
		Confidence:        0.8,
		Sources:           []string{"File: auth/login.go"},
	}
}

func TestEvaluate_GroundedAnswer(t *testing.T) {
	v := New(Options{})
	ev := v.Evaluate("what files changed in this PR?",
		answer("Three files changed: auth/login.go, auth/limiter.go and README.md."), filesBundle())

	assert.True(t, ev.Valid)
	assert.Zero(t, ev.HallucinationScore)
	assert.InDelta(t, 1.0, ev.RelevanceScore, 1e-9)
	assert.Empty(t, ev.Issues)
}

func TestEvaluate_AbsentContextIsOnlyAnIssue(t *testing.T) {
	a := answer("Three files changed: auth/login.go, auth/limiter.go and README.md.")
	a.ContextUsed = []string{"files", "reviews"}

	ev := New(Options{}).Evaluate("what files changed in this PR?", a, filesBundle())
	assert.True(t, ev.Valid)
	assert.Contains(t, ev.Issues, IssueContextMismatch)
}

func TestEvaluate_Hallucination(t *testing.T) {
	a := answer("The file payment.go contains a bug in function chargeCard. There are 12 files changed.")
	ev := New(Options{}).Evaluate("what files changed?", a, filesBundle())

	assert.False(t, ev.Valid)
	assert.Greater(t, ev.HallucinationScore, MaxHallucination)
	assert.Contains(t, ev.Issues, IssueHallucination)
}

func TestHallucination_NothingToCompare(t *testing.T) {
	h := KeywordHallucination{}
	assert.Equal(t, unknownScore, h.Hallucination("The file a.go has it", nil))
	assert.Equal(t, unknownScore, h.Hallucination("The file a.go has it", &chatmodel.ContextBundle{}))
	assert.Equal(t, unknownScore, h.Hallucination("  ", filesBundle()))
}

func TestHallucination_SupportedClaim(t *testing.T) {
	b := filesBundle()
	b.Metadata = &chatmodel.PRMetadata{
		Title:       "Login limiter",
		Description: "Opened by the author after the outage",
		Author:      chatmodel.Person{Login: "dana"},
	}
	score := KeywordHallucination{}.Hallucination("The author is dana.", b)
	assert.Zero(t, score)
}

func TestEvaluate_StructuralChecks(t *testing.T) {
	v := New(Options{})
	q := "what files changed in this PR?"
	grounded := "Three files changed: auth/login.go, auth/limiter.go and README.md."

	tests := []struct {
		name      string
		mutate    func(*chatmodel.ModelAnswer)
		wantValid bool
		wantIssue string
	}{
		{"confidence above one", func(a *chatmodel.ModelAnswer) { a.Confidence = 1.5 }, false, IssueConfidence},
		{"unknown message type", func(a *chatmodel.ModelAnswer) { a.MessageType = "html" }, false, IssueMessageType},
		{"empty answer", func(a *chatmodel.ModelAnswer) { a.Answer = " " }, false, IssueMissingAnswer},
		{"apology only", func(a *chatmodel.ModelAnswer) { a.Answer = "Sorry I cannot see the files." }, false, IssueMeaningless},
		{"placeholder answer", func(a *chatmodel.ModelAnswer) { a.Answer = "No answer provided" }, false, IssueMeaningless},
		{"followup without question mark", func(a *chatmodel.ModelAnswer) {
			a.FollowupQuestions = []string{"Tell me more"}
		}, true, IssueFollowups},
		{"too many followups", func(a *chatmodel.ModelAnswer) {
			a.FollowupQuestions = []string{"a?", "b?", "c?", "d?"}
		}, true, "Too many followup questions: 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := answer(grounded)
			tt.mutate(&a)
			ev := v.Evaluate(q, a, filesBundle())
			assert.Equal(t, tt.wantValid, ev.Valid)
			assert.Contains(t, ev.Issues, tt.wantIssue)
		})
	}
}

func TestRelevance(t *testing.T) {
	r := KeywordRelevance{}

	t.Run("off topic answer is low", func(t *testing.T) {
		score := r.Relevance("what files changed?", "Because of reasons.")
		assert.InDelta(t, 0.2, score, 1e-9)

		ev := New(Options{}).Evaluate("what files changed?", answer("Because of reasons."), filesBundle())
		assert.True(t, ev.Valid)
		assert.Contains(t, ev.Issues, IssueLowRelevance)
	})

	t.Run("empty inputs", func(t *testing.T) {
		assert.Zero(t, r.Relevance("", "answer"))
		assert.Zero(t, r.Relevance("the a an", "answer text"))
	})

	t.Run("intents", func(t *testing.T) {
		assert.Equal(t, intentExplanation, questionIntent("How does it work"))
		assert.Equal(t, intentListing, questionIntent("list the commits"))
		assert.Equal(t, intentDisplay, answerIntent("The diff shows a new limiter"))
		assert.Equal(t, intentListing, answerIntent("Here is the list"))
	})
}

type panicScorer struct{}

func (panicScorer) Hallucination(string, *chatmodel.ContextBundle) float64 { panic("boom") }

type fixedRelevance float64

func (f fixedRelevance) Relevance(string, string) float64 { return float64(f) }

func TestEvaluate_PluggableScorers(t *testing.T) {
	t.Run("panic is contained", func(t *testing.T) {
		ev := New(Options{Hallucination: panicScorer{}}).Evaluate("q?", answer("text"), filesBundle())
		assert.False(t, ev.Valid)
		assert.Equal(t, 1.0, ev.HallucinationScore)
		assert.Equal(t, []string{IssueEvaluationFailed}, ev.Issues)
	})

	t.Run("scores are clamped", func(t *testing.T) {
		ev := New(Options{Relevance: fixedRelevance(3)}).Evaluate("what files changed?",
			answer("Three files changed: auth/login.go, auth/limiter.go and README.md."), filesBundle())
		require.True(t, ev.Valid)
		assert.Equal(t, 1.0, ev.RelevanceScore)
	})
}

func TestFlattenContext(t *testing.T) {
	assert.Empty(t, FlattenContext(nil))

	b := filesBundle()
	b.Reviews = &chatmodel.ReviewsContext{Reviews: []chatmodel.Review{
		{Reviewer: chatmodel.Person{Login: "erin"}, Body: "Please add tests"},
	}}
	text := FlattenContext(b)
	assert.Contains(t, text, "auth/login.go")
	assert.Contains(t, text, "erin Please add tests")
}
