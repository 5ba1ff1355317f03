package validator

import (
	"math"
	"regexp"
	"strings"

	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/textutil"
)

// unknownScore is returned when there is nothing to compare against.
const unknownScore = 0.5

// claimSupport is the share of a claim's keywords that must appear in the
// context for the claim to count as supported.
const claimSupport = 0.6

var claimPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)the file (\w+\.\w+) (contains|has|shows)`),
	regexp.MustCompile(`(?i)there are (\d+) (files|issues|problems)`),
	regexp.MustCompile(`(?i)the (author|reviewer) is (\w+)`),
	regexp.MustCompile(`(?i)this pr (adds|removes|modifies|fixes)`),
}

var technicalTermPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\w+\.(js|ts|py|java|cpp|c|h|css|html|json|xml|yml|yaml|md|go)\b`),
	regexp.MustCompile(`(?i)\b(function|class|method|variable|constant|import|export)\s+\w+`),
	regexp.MustCompile(`(?i)\b(API|endpoint|route|service|controller|middleware)\b`),
}

// KeywordHallucination compares factual claims and technical terms in the
// answer with the flattened context text.
type KeywordHallucination struct{}

func (KeywordHallucination) Hallucination(answer string, bundle *chatmodel.ContextBundle) float64 {
	if strings.TrimSpace(answer) == "" || bundle.Empty() {
		return unknownScore
	}
	contextText := strings.ToLower(FlattenContext(bundle))
	contextWords := textutil.KeywordSet(contextText)

	score := 0.0
	if claims := extractAll(claimPatterns, answer); len(claims) > 0 {
		unsupported := 0
		for _, c := range claims {
			if !claimSupported(c, contextWords) {
				unsupported++
			}
		}
		score = float64(unsupported) / float64(len(claims))
	}

	if terms := extractAll(technicalTermPatterns, answer); len(terms) > 0 {
		unsupported := 0
		for _, term := range terms {
			if !strings.Contains(contextText, strings.ToLower(term)) {
				unsupported++
			}
		}
		score = math.Max(score, float64(unsupported)/float64(len(terms)))
	}
	return math.Min(1, score)
}

func claimSupported(claim string, contextWords map[string]struct{}) bool {
	words := textutil.Keywords(claim)
	supported := 0
	for _, w := range words {
		if _, ok := contextWords[w]; ok {
			supported++
		}
	}
	return supported >= int(math.Ceil(float64(len(words))*claimSupport))
}

func extractAll(patterns []*regexp.Regexp, text string) []string {
	var out []string
	for _, p := range patterns {
		out = append(out, p.FindAllString(text, -1)...)
	}
	return out
}

// FlattenContext joins the human readable text of every kind in the bundle.
func FlattenContext(b *chatmodel.ContextBundle) string {
	if b == nil {
		return ""
	}
	var parts []string
	add := func(s ...string) {
		for _, v := range s {
			if v != "" {
				parts = append(parts, v)
			}
		}
	}

	if m := b.Metadata; m != nil {
		add(m.Title, m.Description, m.Author.Login, m.State, m.Base.Ref, m.Head.Ref, m.RepoFullName)
	}
	if s := b.Summary; s != nil {
		add(s.Summary)
		add(s.IssuesFound...)
		add(s.Suggestions...)
		add(s.SecurityConcerns...)
		add(s.PerformanceIssues...)
		add(s.TestRecommendations...)
	}
	if f := b.Files; f != nil {
		for _, file := range f.Files {
			add(file.Filename, file.PreviousFilename, file.PatchPreview)
		}
		add(f.Summary.Languages...)
	}
	if r := b.Reviews; r != nil {
		for _, review := range r.Reviews {
			add(review.Reviewer.Login, review.Body)
		}
	}
	if c := b.Comments; c != nil {
		for _, comment := range c.Comments {
			add(comment.Author.Login, comment.FilePath, comment.Body)
		}
	}
	if c := b.Commits; c != nil {
		for _, commit := range c.Commits {
			add(commit.Message, commit.AuthorName)
		}
	}
	if s := b.Security; s != nil {
		add(s.Concerns...)
		add(s.Recommendations...)
	}
	if p := b.Performance; p != nil {
		add(p.Issues...)
		add(p.Recommendations...)
	}
	if r := b.Repository; r != nil {
		add(r.Repository.FullName, r.Repository.Description, r.Repository.DefaultBranch)
		for _, pr := range r.RecentPRs {
			add(pr.Title, pr.Author)
		}
	}
	return strings.Join(parts, " ")
}
