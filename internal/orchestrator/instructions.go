package orchestrator

import (
	"fmt"
	"strings"

	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/textutil"
)

const focusFiles = 3

// categoryInstructions has one builder per category; a missing entry is a
// test failure.
var categoryInstructions = map[chatmodel.Category]func(*chatmodel.ContextBundle) string{
	chatmodel.CategorySummary:        summaryInstructions,
	chatmodel.CategoryCodeAnalysis:   codeAnalysisInstructions,
	chatmodel.CategoryReviewFeedback: reviewInstructions,
	chatmodel.CategorySecurity:       securityInstructions,
	chatmodel.CategoryPerformance:    performanceInstructions,
	chatmodel.CategoryTimeline:       timelineInstructions,
	chatmodel.CategoryFileListing:    fileListingInstructions,
	chatmodel.CategoryTestGuidance:   testInstructions,
	chatmodel.CategoryGeneral:        generalInstructions,
}

// categoryHint is the numbered general instruction that applies only to the
// question's category.
var categoryHint = map[chatmodel.Category]string{
	chatmodel.CategoryCodeAnalysis:   "For code questions: Reference specific file names, line numbers, functions, and provide code snippets",
	chatmodel.CategorySecurity:       "For security questions: Identify specific vulnerabilities, assess impact, and provide remediation steps",
	chatmodel.CategoryReviewFeedback: "For review questions: Quote exact reviewer comments and provide context",
	chatmodel.CategoryPerformance:    "For performance questions: Identify bottlenecks and suggest specific optimizations",
	chatmodel.CategoryTestGuidance:   "For testing questions: Name concrete test cases and the files they belong in",
	chatmodel.CategoryTimeline:       "For timeline questions: Use the exact dates from the metadata",
	chatmodel.CategoryFileListing:    "For file questions: List file names with their line counts",
}

func buildCategoryInstructions(c chatmodel.Category, b *chatmodel.ContextBundle) string {
	fn, ok := categoryInstructions[c]
	if !ok {
		fn = generalInstructions
	}
	return fn(b)
}

func summaryInstructions(b *chatmodel.ContextBundle) string {
	var s strings.Builder
	s.WriteString("**Summary Guidelines:**\n")
	s.WriteString("- Open with one sentence on what the PR does and why\n")
	s.WriteString("- Cover the scope of the change and its current status\n")
	if b.Summary != nil && len(b.Summary.IssuesFound) > 0 {
		s.WriteString("- Mention the most important issues found by the automated analysis\n")
	}
	s.WriteString("- Keep it to an overview; leave details for follow-up questions\n")
	return s.String()
}

func codeAnalysisInstructions(b *chatmodel.ContextBundle) string {
	if b.Files == nil {
		return ""
	}
	var s strings.Builder
	s.WriteString("**Code Analysis Guidelines:**\n")

	largest := head(b.Files.Files, focusFiles)
	if len(largest) > 0 {
		s.WriteString("- Focus on these files with the most changes:\n")
		for _, f := range largest {
			s.WriteString(fmt.Sprintf("  * %s (+%d/-%d lines)\n", f.Filename, f.Additions, f.Deletions))
		}
	}
	s.WriteString("- For each significant change:\n")
	s.WriteString("  * Explain what the code does and why it was changed\n")
	s.WriteString("  * Identify potential bugs, edge cases, or logic issues\n")
	s.WriteString("  * Assess code quality, readability, and maintainability\n")
	s.WriteString("  * Suggest improvements or optimizations\n")
	s.WriteString("- Reference specific functions, classes, or code blocks\n")
	s.WriteString("- Include relevant code snippets in your analysis\n")
	s.WriteString("- Highlight any breaking changes or API modifications\n")

	for _, f := range largest {
		if f.PatchPreview == "" {
			continue
		}
		s.WriteString(fmt.Sprintf("\nPatch preview for %s:\n```diff\n%s\n```\n", f.Filename, f.PatchPreview))
	}
	return s.String()
}

func reviewInstructions(b *chatmodel.ContextBundle) string {
	var s strings.Builder
	s.WriteString("**Review Feedback Guidelines:**\n")
	s.WriteString("- Quote reviewer comments exactly and attribute them (@login)\n")
	s.WriteString("- Separate approvals, requested changes and general comments\n")
	if b.Reviews != nil && b.Reviews.Summary.ChangesRequested > 0 {
		s.WriteString(fmt.Sprintf("- %d review(s) requested changes; explain what is needed to address them\n",
			b.Reviews.Summary.ChangesRequested))
	}
	if b.Comments != nil && b.Comments.Summary.FileSpecific > 0 {
		s.WriteString("- Tie file-specific comments to their file and line\n")
	}
	return s.String()
}

func securityInstructions(b *chatmodel.ContextBundle) string {
	var concerns []string
	if b.Summary != nil {
		concerns = b.Summary.SecurityConcerns
	}
	if len(concerns) == 0 && b.Files == nil {
		return ""
	}

	var s strings.Builder
	s.WriteString("**Security Analysis Guidelines:**\n")
	if len(concerns) > 0 {
		s.WriteString(fmt.Sprintf("- Specific security concerns found: %s\n", strings.Join(concerns, ", ")))
		s.WriteString("- For each concern, explain: What it is, Why it's risky, How to fix it\n")
		s.WriteString("- Assess the severity level (Critical/High/Medium/Low) for each issue\n")
	}
	if b.Files != nil {
		s.WriteString("- Name the concrete files and lines affected\n")
		s.WriteString("- Examine authentication, authorization, input validation, and data handling in the changed files\n")
		s.WriteString("- Look for potential SQL injection, XSS, CSRF, or other common vulnerabilities (OWASP Top 10)\n")
		s.WriteString("- Check for hardcoded secrets, weak encryption, or insecure configurations\n")
	}
	s.WriteString("- Provide specific remediation steps with code examples where applicable\n")
	s.WriteString("- Rate the overall security impact of this PR on a 1-10 scale with justification\n")
	return s.String()
}

func performanceInstructions(b *chatmodel.ContextBundle) string {
	var s strings.Builder
	s.WriteString("**Performance Analysis Guidelines:**\n")
	if b.Performance != nil && len(b.Performance.Issues) > 0 {
		s.WriteString(fmt.Sprintf("- Known performance issues: %s\n", strings.Join(b.Performance.Issues, ", ")))
	}
	s.WriteString("- Identify bottlenecks in the changed code: loops, queries, allocations and I/O\n")
	s.WriteString("- Suggest specific optimizations and their expected impact\n")
	return s.String()
}

func timelineInstructions(b *chatmodel.ContextBundle) string {
	var s strings.Builder
	s.WriteString("**Timeline Guidelines:**\n")
	s.WriteString("- Use the exact created, updated, merged and closed dates from the metadata\n")
	s.WriteString("- Describe events in chronological order\n")
	if b.Commits != nil {
		s.WriteString("- Use commit dates to show how the work progressed\n")
	}
	return s.String()
}

func fileListingInstructions(b *chatmodel.ContextBundle) string {
	var s strings.Builder
	s.WriteString("**File Listing Guidelines:**\n")
	s.WriteString("- List the changed files with their additions and deletions\n")
	s.WriteString("- Mention the files with the largest changes first\n")
	if b.Files != nil && len(b.Files.Files) > promptFiles {
		s.WriteString("- Group the remaining files by directory or change type\n")
	}
	return s.String()
}

func testInstructions(b *chatmodel.ContextBundle) string {
	var s strings.Builder
	s.WriteString("**Test Guidance Guidelines:**\n")
	if b.Summary != nil && len(b.Summary.TestRecommendations) > 0 {
		s.WriteString(fmt.Sprintf("- Existing test recommendations: %s\n",
			textutil.Truncate(strings.Join(b.Summary.TestRecommendations, "; "), descriptionChars, "...")))
	}
	s.WriteString("- Propose concrete test cases for the changed functions, including edge cases\n")
	s.WriteString("- Name the test files that should be added or updated\n")
	return s.String()
}

func generalInstructions(*chatmodel.ContextBundle) string {
	return "**General Guidelines:**\n- Answer from the provided context and say clearly when it does not cover the question\n"
}
