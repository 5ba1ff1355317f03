package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livereview/prchat/internal/chatmodel"
)

func botTurn(c chatmodel.Category) chatmodel.Message {
	return chatmodel.Message{Sender: chatmodel.SenderBot, Classification: &c, Content: "..."}
}

func TestLiteralRules(t *testing.T) {
	c := New()
	tests := []struct {
		question string
		want     chatmodel.Category
		minConf  float64
	}{
		{"what files changed in this PR?", chatmodel.CategoryFileListing, 0.95},
		{"Which files modified the router?", chatmodel.CategoryFileListing, 0.95},
		{"Are there any security issues?", chatmodel.CategorySecurity, 0.95},
		{"list the security concerns please", chatmodel.CategorySecurity, 0.95},
		{"What did reviewers say about it?", chatmodel.CategoryReviewFeedback, 0.95},
		{"summarize the review comments", chatmodel.CategoryReviewFeedback, 0.95},
		{"how can I improve this code?", chatmodel.CategoryCodeAnalysis, 0.9},
		{"make a plan for the next sprint", chatmodel.CategoryCodeAnalysis, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got := c.Classify(tt.question, nil)
			assert.Equal(t, tt.want, got.Category)
			assert.GreaterOrEqual(t, got.Confidence, tt.minConf)
			// deterministic
			assert.Equal(t, got, c.Classify(tt.question, nil))
		})
	}
}

func TestFileListingScenario(t *testing.T) {
	got := New().Classify("what files changed in this PR?", nil)
	assert.Equal(t, chatmodel.CategoryFileListing, got.Category)
	assert.GreaterOrEqual(t, got.Confidence, 0.9)
	assert.Equal(t, []chatmodel.ContextKind{chatmodel.ContextFiles}, got.Required)
}

func TestPatternScoring(t *testing.T) {
	c := New()

	t.Run("full match caps at one", func(t *testing.T) {
		got := c.Classify("vulnerabilities?", nil)
		assert.Equal(t, chatmodel.CategorySecurity, got.Category)
		assert.Equal(t, 1.0, got.Confidence)
	})

	t.Run("longer match wins", func(t *testing.T) {
		// explain: 7/20+0.3, timeline: 8/20+0.3
		got := c.Classify("explain the timeline", nil)
		assert.Equal(t, chatmodel.CategoryTimeline, got.Category)
		assert.InDelta(t, 0.7, got.Confidence, 1e-9)
	})

	t.Run("ties follow declaration order", func(t *testing.T) {
		got := c.Classify("date slow", nil)
		assert.Equal(t, chatmodel.CategoryPerformance, got.Category)
	})

	t.Run("no match is general", func(t *testing.T) {
		got := c.Classify("lorem ipsum", nil)
		assert.Equal(t, chatmodel.CategoryGeneral, got.Category)
		assert.Equal(t, GeneralConfidence, got.Confidence)
		assert.Equal(t, []chatmodel.ContextKind{chatmodel.ContextMetadata, chatmodel.ContextSummary}, got.Required)
	})

	t.Run("empty question", func(t *testing.T) {
		got := c.Classify("   ", nil)
		assert.Equal(t, chatmodel.CategoryGeneral, got.Category)
	})
}

func TestGreetingKeepsTopic(t *testing.T) {
	c := New()
	history := []chatmodel.Message{
		{Sender: chatmodel.SenderUser, Content: "any security issues?"},
		botTurn(chatmodel.CategorySecurity),
		{Sender: chatmodel.SenderUser, Content: "thanks"},
	}

	got := c.Classify("hello again", history)
	assert.Equal(t, chatmodel.CategorySecurity, got.Category)
	assert.Equal(t, 0.8, got.Confidence)

	t.Run("no labelled bot turn falls back to summary", func(t *testing.T) {
		got := c.Classify("hey", []chatmodel.Message{{Sender: chatmodel.SenderUser, Content: "x"}})
		assert.Equal(t, chatmodel.CategorySummary, got.Category)
	})

	t.Run("without history greeting is not special", func(t *testing.T) {
		got := c.Classify("hello", nil)
		assert.Equal(t, chatmodel.CategoryGeneral, got.Category)
	})

	t.Run("history is not a greeting", func(t *testing.T) {
		assert.False(t, IsGreeting("history of this pr"))
	})
}

func TestRequiredContextIsPureFunctionOfCategory(t *testing.T) {
	c := New()
	questions := []string{
		"what files changed?", "explain this pr", "is it slow", "when was it merged",
		"unit test ideas", "what did reviewers say", "refactor suggestions", "hi",
	}
	for _, q := range questions {
		got := c.Classify(q, nil)
		require.NotEmpty(t, got.Required)
		assert.Equal(t, got.Category.RequiredContext(), got.Required, q)
	}
}

func TestExtractFilters(t *testing.T) {
	f := ExtractFilters("did @alice change main.go or Config.json yesterday? ask @bob, @alice")
	assert.Equal(t, []string{"main.go", "Config.json"}, f.FileNames)
	assert.Equal(t, []string{"alice", "bob"}, f.Mentions)
	assert.Equal(t, []string{"yesterday"}, f.Dates)

	f = ExtractFilters("changes since 2024-05-01 in utils.cpp")
	assert.Equal(t, []string{"utils.cpp"}, f.FileNames)
	assert.Equal(t, []string{"2024-05-01"}, f.Dates)

	assert.True(t, ExtractFilters("nothing here").Empty())
}

type stubScorer struct {
	res Result
	ok  bool
}

func (s stubScorer) Name() string { return "stub" }
func (s stubScorer) Score(string, []chatmodel.Message) (Result, bool) {
	return s.res, s.ok
}

func TestCustomScorerChain(t *testing.T) {
	c := New(
		stubScorer{ok: false},
		stubScorer{res: Result{Category: chatmodel.CategoryTimeline, Confidence: 0.42}, ok: true},
	)
	got := c.Classify("anything", nil)
	assert.Equal(t, chatmodel.CategoryTimeline, got.Category)
	assert.Equal(t, 0.42, got.Confidence)

	invalid := New(stubScorer{res: Result{Category: "bogus", Confidence: 1}, ok: true})
	assert.Equal(t, chatmodel.CategoryGeneral, invalid.Classify("anything", nil).Category)
}
