package conversation

import (
	"fmt"

	"github.com/livereview/prchat/internal/chatmodel"
)

// AdaptiveFollowups proposes up to three questions about parts of the bundle
// the conversation has not touched yet. Sessions without memory get the
// static suggestions for the category.
func (t *Tracker) AdaptiveFollowups(sessionID string, category chatmodel.Category, bundle *chatmodel.ContextBundle) []string {
	st, ok := t.store.Get(sessionID)
	if !ok {
		return chatmodel.DefaultFollowups(category)
	}
	if bundle == nil {
		bundle = &chatmodel.ContextBundle{}
	}

	var out []string
	add := func(q string) {
		if len(out) >= chatmodel.MaxFollowups {
			return
		}
		for _, existing := range out {
			if existing == q {
				return
			}
		}
		out = append(out, q)
	}

	if bundle.Files != nil && len(bundle.Files.Files) > 0 && !st.Topics.Has("files") {
		add(fmt.Sprintf("What specific files should I focus on reviewing? (%d files changed)", bundle.Files.Summary.TotalFiles))
	}
	if hasSecurityConcerns(bundle) && !st.Topics.Has("security") {
		add("Are there any security vulnerabilities in this PR?")
	}
	if bundle.Reviews != nil && bundle.Reviews.Summary.ChangesRequested > 0 && !st.Topics.Has("reviews") {
		add("What specific changes did reviewers request?")
	}
	if hasPerformanceIssues(bundle) && !st.Topics.Has("performance") {
		add("What performance implications does this PR have?")
	}
	if st.KnowledgeLevel == chatmodel.KnowledgeExpert && bundle.Files != nil && len(bundle.Files.Files) > 0 {
		add(fmt.Sprintf("Can you analyze the changes in %s?", largestFile(bundle.Files.Files)))
	}

	for _, q := range contextFollowups(bundle) {
		add(q)
	}
	if len(out) == 0 {
		return chatmodel.DefaultFollowups(category)
	}
	return out
}

func contextFollowups(bundle *chatmodel.ContextBundle) []string {
	var out []string
	if f := bundle.Files; f != nil && len(f.Files) > 0 {
		total := f.Summary.TotalAdditions + f.Summary.TotalDeletions
		out = append(out, fmt.Sprintf("This PR has %d total changes. Should I focus on any specific areas?", total))
	}
	if r := bundle.Reviews; r != nil && r.Summary.Total > 0 {
		if r.Summary.ChangesRequested > 0 {
			out = append(out, fmt.Sprintf("%d reviewers requested changes. What are the main concerns?", r.Summary.ChangesRequested))
		} else if r.Summary.Approved > 0 {
			out = append(out, fmt.Sprintf("%d reviewers approved this. What did they like about it?", r.Summary.Approved))
		}
	}
	if s := bundle.Summary; s != nil && s.OverallScore > 0 && s.OverallScore < 7 {
		out = append(out, fmt.Sprintf("The overall code quality score is %g/10. What are the main issues?", s.OverallScore))
	}
	return out
}

func hasSecurityConcerns(b *chatmodel.ContextBundle) bool {
	if b.Security != nil && len(b.Security.Concerns) > 0 {
		return true
	}
	return b.Summary != nil && len(b.Summary.SecurityConcerns) > 0
}

func hasPerformanceIssues(b *chatmodel.ContextBundle) bool {
	if b.Performance != nil && len(b.Performance.Issues) > 0 {
		return true
	}
	return b.Summary != nil && len(b.Summary.PerformanceIssues) > 0
}

func largestFile(files []chatmodel.FileChange) string {
	best := files[0]
	for _, f := range files[1:] {
		if f.Changes() > best.Changes() {
			best = f
		}
	}
	return best.Filename
}
