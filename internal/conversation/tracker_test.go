package conversation

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livereview/prchat/internal/chatmodel"
)

func classification(c chatmodel.Category) chatmodel.Classification {
	return chatmodel.Classification{Category: c, Confidence: 0.9, Required: c.RequiredContext()}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestRingBufferEvictsOldestFirst(t *testing.T) {
	tr := NewTracker(nil, Options{})
	for i := 0; i < DefaultRingSize; i++ {
		tr.Update("s1", fmt.Sprintf("question %d", i), classification(chatmodel.CategoryGeneral), "ok", nil)
	}
	st, ok := tr.State("s1")
	require.True(t, ok)
	require.Len(t, st.Flow, DefaultRingSize)
	assert.Equal(t, "question 0", st.Flow[0].Question)

	st = tr.Update("s1", "question 20", classification(chatmodel.CategoryGeneral), "ok", nil)
	assert.Len(t, st.Flow, DefaultRingSize)
	assert.Equal(t, "question 1", st.Flow[0].Question)
	assert.Equal(t, "question 20", st.Flow[DefaultRingSize-1].Question)
}

func TestTopicsEntitiesAndKnowledge(t *testing.T) {
	tr := NewTracker(nil, Options{})
	st := tr.Update("s1", "Explain the security change in auth.go",
		classification(chatmodel.CategorySecurity),
		"@alice changed auth.go and @bob asked about main.go; @alice again", []string{"summary", "files"})

	assert.True(t, st.Topics.Has("security"))
	assert.True(t, st.Topics.Has("files"))
	assert.False(t, st.Topics.Has("performance"))
	assert.Equal(t, []string{"auth.go", "main.go"}, st.Files.Sorted())
	assert.Equal(t, []string{"alice", "bob"}, st.Reviewers.Sorted())
	assert.Equal(t, chatmodel.KnowledgeBeginner, st.KnowledgeLevel)
	assert.Equal(t, chatmodel.CategorySecurity, st.CurrentFocus)
	assert.Equal(t, []string{"explain the security change in auth.go"}, st.AskedQuestions)

	t.Run("level moves both ways", func(t *testing.T) {
		st := tr.Update("s1", "what is the algorithm complexity here?", classification(chatmodel.CategoryCodeAnalysis), "", nil)
		assert.Equal(t, chatmodel.KnowledgeExpert, st.KnowledgeLevel)

		st = tr.Update("s1", "ok thanks", classification(chatmodel.CategoryGeneral), "", nil)
		assert.Equal(t, chatmodel.KnowledgeExpert, st.KnowledgeLevel)

		st = tr.Update("s1", "can you explain it simply", classification(chatmodel.CategoryGeneral), "", nil)
		assert.Equal(t, chatmodel.KnowledgeBeginner, st.KnowledgeLevel)
	})
}

func TestRepetitionDetection(t *testing.T) {
	tr := NewTracker(nil, Options{})
	assert.False(t, tr.IsRepeatingQuestion("s1", "anything"), "no state, no repeat")

	tr.Update("s1", "what files changed in this PR", classification(chatmodel.CategoryFileListing), "a.go", nil)

	tests := []struct {
		name     string
		question string
		want     bool
	}{
		{"near identical", "What files changed in this PR?", true},
		{"no shared tokens", "alpha beta gamma", false},
		{"different topic", "is the login flow slow?", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.IsRepeatingQuestion("s1", tt.question))
		})
	}

	t.Run("edit distance alone", func(t *testing.T) {
		tr := NewTracker(nil, Options{Similarity: EditDistance})
		tr.Update("s2", "list files", classification(chatmodel.CategoryGeneral), "", nil)
		// one edit in ten: similarity 0.9
		assert.True(t, tr.IsRepeatingQuestion("s2", "list filez"))
		assert.False(t, tr.IsRepeatingQuestion("s2", "list tests"))
		assert.False(t, tr.IsRepeatingQuestion("s2", "zzzzzzzzzz"))
	})
}

func TestRephrasedQuestionIsRepeat(t *testing.T) {
	tr := NewTracker(nil, Options{})
	tr.Update("s1", "how can I improve this code?", classification(chatmodel.CategoryCodeAnalysis), "Split handleRequest into smaller functions.", nil)

	assert.True(t, tr.IsRepeatingQuestion("s1", "what should I improve here?"))

	enh := tr.PromptEnhancement("s1", "what should I improve here?")
	assert.Contains(t, enh, "Avoid repeating prior advice")
	assert.Contains(t, enh, "**Conversation Context:**")

	fresh := tr.PromptEnhancement("s1", "who approved the pull request?")
	assert.NotContains(t, fresh, "Avoid repeating prior advice")
}

func TestSingleSharedKeywordIsNotRepeat(t *testing.T) {
	tr := NewTracker(nil, Options{})
	tr.Update("s1", "how do I test the login flow and the cache?", classification(chatmodel.CategoryTestGuidance), "", nil)

	for _, q := range []string{
		"test?",
		"what should I test here?",
		"improve the test",
	} {
		assert.False(t, tr.IsRepeatingQuestion("s1", q), q)
	}
	assert.True(t, tr.IsRepeatingQuestion("s1", "how do I test the login flow and cache?"))
}

func TestPromptEnhancement(t *testing.T) {
	tr := NewTracker(nil, Options{})
	assert.Empty(t, tr.PromptEnhancement("unknown", "hi"))

	for _, q := range []string{"security issues?", "is auth safe?", "any token leaks?"} {
		tr.Update("s1", q, classification(chatmodel.CategorySecurity), "see @carol", nil)
	}
	enh := tr.PromptEnhancement("s1", "completely new words")
	assert.Contains(t, enh, "- Recent question pattern: security → security → security")
	assert.Contains(t, enh, "Go deeper technically")
	assert.Contains(t, enh, "- Reviewers mentioned: carol")
	assert.Contains(t, enh, "- Adapt complexity to intermediate level")

	tr.Update("s1", "what about tests?", classification(chatmodel.CategoryTestGuidance), "", nil)
	enh = tr.PromptEnhancement("s1", "completely new words")
	assert.NotContains(t, enh, "Go deeper technically")
}

func TestAdaptiveFollowups(t *testing.T) {
	bundle := &chatmodel.ContextBundle{
		Files: &chatmodel.FilesContext{
			Files: []chatmodel.FileChange{
				{Filename: "small.go", Additions: 1},
				{Filename: "big.go", Additions: 40, Deletions: 10},
			},
			Summary: chatmodel.FilesSummary{TotalFiles: 2, TotalAdditions: 41, TotalDeletions: 10},
		},
		Reviews: &chatmodel.ReviewsContext{Summary: chatmodel.ReviewsSummary{Total: 2, ChangesRequested: 1}},
		Summary: &chatmodel.SummaryContext{SecurityConcerns: []string{"sql injection"}, OverallScore: 6},
	}

	t.Run("no memory uses static table", func(t *testing.T) {
		tr := NewTracker(nil, Options{})
		assert.Equal(t, chatmodel.DefaultFollowups(chatmodel.CategorySummary),
			tr.AdaptiveFollowups("none", chatmodel.CategorySummary, bundle))
	})

	t.Run("undiscussed areas first", func(t *testing.T) {
		tr := NewTracker(nil, Options{})
		tr.Update("s1", "hello there", classification(chatmodel.CategoryGeneral), "hi", nil)
		got := tr.AdaptiveFollowups("s1", chatmodel.CategoryGeneral, bundle)
		assert.Equal(t, []string{
			"What specific files should I focus on reviewing? (2 files changed)",
			"Are there any security vulnerabilities in this PR?",
			"What specific changes did reviewers request?",
		}, got)
	})

	t.Run("discussed areas are skipped", func(t *testing.T) {
		tr := NewTracker(nil, Options{})
		tr.Update("s1", "which files changed and any security review?", classification(chatmodel.CategoryFileListing), "", nil)
		got := tr.AdaptiveFollowups("s1", chatmodel.CategoryFileListing, bundle)
		require.Len(t, got, 3)
		assert.Equal(t, "This PR has 51 total changes. Should I focus on any specific areas?", got[0])
		assert.Equal(t, "1 reviewers requested changes. What are the main concerns?", got[1])
		assert.Equal(t, "The overall code quality score is 6/10. What are the main issues?", got[2])
	})

	t.Run("expert gets the largest file", func(t *testing.T) {
		tr := NewTracker(nil, Options{})
		tr.Update("s1", "discuss the architecture of the files and security review", classification(chatmodel.CategoryCodeAnalysis), "", nil)
		got := tr.AdaptiveFollowups("s1", chatmodel.CategoryCodeAnalysis, bundle)
		assert.Equal(t, "Can you analyze the changes in big.go?", got[0])
	})

	t.Run("nothing to say falls back", func(t *testing.T) {
		tr := NewTracker(nil, Options{})
		tr.Update("s1", "hello", classification(chatmodel.CategoryGeneral), "", nil)
		got := tr.AdaptiveFollowups("s1", chatmodel.CategoryTimeline, nil)
		assert.Equal(t, chatmodel.DefaultFollowups(chatmodel.CategoryTimeline), got)
	})
}

func TestCleanupAndEvictIdle(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(nil, Options{Now: clock.Now})
	tr.Update("old", "q", classification(chatmodel.CategoryGeneral), "", nil)
	clock.t = clock.t.Add(time.Hour)
	tr.Update("new", "q", classification(chatmodel.CategoryGeneral), "", nil)

	assert.Equal(t, 1, tr.EvictIdle(30*time.Minute))
	_, ok := tr.State("old")
	assert.False(t, ok)
	_, ok = tr.State("new")
	assert.True(t, ok)

	tr.Cleanup("new")
	_, ok = tr.State("new")
	assert.False(t, ok)

	tr.Update("watched", "q", classification(chatmodel.CategoryGeneral), "", nil)
	tr.Update("idle", "q", classification(chatmodel.CategoryGeneral), "", nil)
	clock.t = clock.t.Add(time.Hour)
	assert.Equal(t, 1, tr.EvictIdle(30*time.Minute, "watched"))
	_, ok = tr.State("watched")
	assert.True(t, ok)
	_, ok = tr.State("idle")
	assert.False(t, ok)
}

func TestStateCopiesAreIsolated(t *testing.T) {
	tr := NewTracker(nil, Options{})
	st := tr.Update("s1", "files?", classification(chatmodel.CategoryFileListing), "a.go", nil)
	st.Files.Add("mutated.go")
	st.Flow[0].Question = "mutated"

	again, _ := tr.State("s1")
	assert.False(t, again.Files.Has("mutated.go"))
	assert.Equal(t, "files?", again.Flow[0].Question)
}

func TestConcurrentUpdatesAreNotLost(t *testing.T) {
	tr := NewTracker(NewInMemoryStore(), Options{RingSize: 1000})
	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(s, i int) {
				defer wg.Done()
				tr.Update(fmt.Sprintf("s%d", s), fmt.Sprintf("file%d.go", i), classification(chatmodel.CategoryFileListing), "", nil)
			}(s, i)
		}
	}
	wg.Wait()
	for s := 0; s < 4; s++ {
		st, ok := tr.State(fmt.Sprintf("s%d", s))
		require.True(t, ok)
		assert.Len(t, st.Flow, 50)
		assert.Len(t, st.Files, 50)
		assert.Len(t, st.AskedQuestions, 50)
	}
	assert.True(t, strings.HasPrefix(tr.PromptEnhancement("s0", "x"), "\n**Conversation Context:**"))
}
