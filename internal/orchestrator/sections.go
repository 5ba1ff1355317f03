package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/textutil"
)

const (
	promptFiles       = 10
	promptReviews     = 5
	promptComments    = 5
	promptCommits     = 10
	promptRecentPRs   = 10
	bodyPreviewChars  = 100
	descriptionChars  = 300
	historyEntryChars = 200
)

// buildContextSection renders one block per kind present in the bundle, in
// a fixed order.
func buildContextSection(b *chatmodel.ContextBundle) string {
	if b.Empty() {
		return ""
	}
	var s strings.Builder
	s.WriteString("**Available Context:**\n")
	if b.Metadata != nil {
		writeMetadata(&s, b.Metadata)
	}
	if b.Summary != nil {
		writeSummary(&s, b.Summary)
	}
	if b.Files != nil {
		writeFiles(&s, b.Files)
	}
	if b.Reviews != nil {
		writeReviews(&s, b.Reviews)
	}
	if b.Comments != nil {
		writeComments(&s, b.Comments)
	}
	if b.Security != nil {
		writeSecurity(&s, b.Security)
	}
	if b.Performance != nil {
		writePerformance(&s, b.Performance)
	}
	if b.Commits != nil {
		writeCommits(&s, b.Commits)
	}
	if b.Repository != nil {
		writeRepository(&s, b.Repository)
	}
	return s.String()
}

func writeMetadata(s *strings.Builder, m *chatmodel.PRMetadata) {
	s.WriteString("\n**PR Metadata:**\n")
	s.WriteString(fmt.Sprintf("- Title: %s (#%d)\n", m.Title, m.Number))
	s.WriteString(fmt.Sprintf("- Author: %s\n", m.Author.Login))
	state := m.State
	if m.Draft {
		state += " (draft)"
	}
	s.WriteString(fmt.Sprintf("- State: %s\n", state))
	if m.Description != "" {
		s.WriteString(fmt.Sprintf("- Description: %s\n", textutil.Truncate(m.Description, descriptionChars, "...")))
	}
	s.WriteString(fmt.Sprintf("- Base Branch: %s\n", m.Base.Ref))
	s.WriteString(fmt.Sprintf("- Head Branch: %s\n", m.Head.Ref))
	s.WriteString(fmt.Sprintf("- Created: %s\n", formatTime(m.CreatedAt)))
	s.WriteString(fmt.Sprintf("- Updated: %s\n", formatTime(m.UpdatedAt)))
	if m.MergedAt != nil {
		s.WriteString(fmt.Sprintf("- Merged: %s\n", formatTime(*m.MergedAt)))
	}
	if m.ClosedAt != nil {
		s.WriteString(fmt.Sprintf("- Closed: %s\n", formatTime(*m.ClosedAt)))
	}
}

func writeSummary(s *strings.Builder, sum *chatmodel.SummaryContext) {
	s.WriteString("\n**AI Analysis Summary:**\n")
	s.WriteString(fmt.Sprintf("- Overall Score: %g/10\n", sum.OverallScore))
	s.WriteString(fmt.Sprintf("- Summary: %s\n", sum.Summary))
	writeList(s, "Issues Found", sum.IssuesFound)
	writeList(s, "Security Concerns", sum.SecurityConcerns)
	writeList(s, "Performance Issues", sum.PerformanceIssues)
	writeList(s, "Suggestions", sum.Suggestions)
	writeList(s, "Test Recommendations", sum.TestRecommendations)
	if q := sum.QualityRating; q != nil {
		s.WriteString(fmt.Sprintf("- Code Quality: readability %g, maintainability %g, scalability %g, testing %g\n",
			q.Readability, q.Maintainability, q.Scalability, q.Testing))
	}
}

func writeFiles(s *strings.Builder, f *chatmodel.FilesContext) {
	s.WriteString(fmt.Sprintf("\n**Files Changed (%d files, +%d/-%d):**\n",
		f.Summary.TotalFiles, f.Summary.TotalAdditions, f.Summary.TotalDeletions))
	for _, file := range head(f.Files, promptFiles) {
		s.WriteString(fmt.Sprintf("- %s (+%d/-%d) [%s]\n", file.Filename, file.Additions, file.Deletions, file.ChangeType))
	}
	if len(f.Files) > promptFiles {
		s.WriteString(fmt.Sprintf("- ... and %d more\n", len(f.Files)-promptFiles))
	}
	if len(f.Summary.Languages) > 0 {
		s.WriteString(fmt.Sprintf("- Languages: %s\n", strings.Join(f.Summary.Languages, ", ")))
	}
	if f.Summary.SecretsDetected > 0 {
		s.WriteString(fmt.Sprintf("- Secrets redacted from previews: %d\n", f.Summary.SecretsDetected))
	}
}

func writeReviews(s *strings.Builder, r *chatmodel.ReviewsContext) {
	s.WriteString(fmt.Sprintf("\n**Reviews (%d reviews: %d approved, %d changes requested, %d commented):**\n",
		r.Summary.Total, r.Summary.Approved, r.Summary.ChangesRequested, r.Summary.Commented))
	for _, review := range head(r.Reviews, promptReviews) {
		s.WriteString(fmt.Sprintf("- %s: %s - %s\n", review.Reviewer.Login, review.State,
			textutil.Truncate(review.Body, bodyPreviewChars, "...")))
	}
}

func writeComments(s *strings.Builder, c *chatmodel.CommentsContext) {
	s.WriteString(fmt.Sprintf("\n**Comments (%d comments):**\n", c.Summary.Total))
	for _, comment := range head(c.Comments, promptComments) {
		where := ""
		if comment.FilePath != "" {
			where = fmt.Sprintf(" [%s:%d]", comment.FilePath, comment.Line)
		}
		s.WriteString(fmt.Sprintf("- %s%s: %s\n", comment.Author.Login, where,
			textutil.Truncate(comment.Body, bodyPreviewChars, "...")))
	}
}

func writeSecurity(s *strings.Builder, a *chatmodel.SecurityAnalysis) {
	s.WriteString("\n**Security Analysis:**\n")
	s.WriteString(fmt.Sprintf("- Security Score: %d/10\n", a.Score))
	writeList(s, "Concerns", a.Concerns)
	writeList(s, "Recommendations", a.Recommendations)
}

func writePerformance(s *strings.Builder, a *chatmodel.PerformanceAnalysis) {
	s.WriteString("\n**Performance Analysis:**\n")
	s.WriteString(fmt.Sprintf("- Performance Score: %g/10\n", a.Score))
	writeList(s, "Issues", a.Issues)
	writeList(s, "Recommendations", a.Recommendations)
}

func writeCommits(s *strings.Builder, c *chatmodel.CommitsContext) {
	s.WriteString(fmt.Sprintf("\n**Commits (%d commits, %d verified):**\n", c.Summary.Total, c.Summary.Verified))
	for _, commit := range head(c.Commits, promptCommits) {
		sha := commit.SHA
		if len(sha) > 7 {
			sha = sha[:7]
		}
		message, _, _ := strings.Cut(commit.Message, "\n")
		s.WriteString(fmt.Sprintf("- %s %s (%s, %s)\n", sha, message, commit.AuthorName, formatTime(commit.CommittedAt)))
	}
}

func writeRepository(s *strings.Builder, r *chatmodel.RepositoryContext) {
	s.WriteString(fmt.Sprintf("\n**Repository: %s**\n", r.Repository.FullName))
	if r.Repository.Description != "" {
		s.WriteString(fmt.Sprintf("- Description: %s\n", textutil.Truncate(r.Repository.Description, descriptionChars, "...")))
	}
	s.WriteString(fmt.Sprintf("- Default Branch: %s\n", r.Repository.DefaultBranch))
	s.WriteString(fmt.Sprintf("- Pull Requests: %d total, %d open, %d merged\n", r.Stats.TotalPRs, r.Stats.OpenPRs, r.Stats.MergedPRs))
	if len(r.RecentPRs) > 0 {
		s.WriteString("- Recently updated:\n")
		for _, pr := range head(r.RecentPRs, promptRecentPRs) {
			s.WriteString(fmt.Sprintf("  * #%d %s [%s] by %s\n", pr.Number, pr.Title, pr.State, pr.Author))
		}
	}
}

// buildHistorySection renders the tail of the conversation.
func buildHistorySection(history []chatmodel.Message, limit int) string {
	if len(history) == 0 || limit <= 0 {
		return ""
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	var s strings.Builder
	s.WriteString("**Conversation History:**\n")
	for _, m := range history {
		role := "Assistant"
		if m.Sender == chatmodel.SenderUser {
			role = "User"
		}
		s.WriteString(fmt.Sprintf("%s: %s\n", role, textutil.Truncate(m.Content, historyEntryChars, "...")))
	}
	return s.String()
}

func writeList(s *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	s.WriteString(fmt.Sprintf("- %s: %s\n", label, strings.Join(items, ", ")))
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}
