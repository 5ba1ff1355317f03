package contextagg

import (
	"strings"

	"github.com/livereview/prchat/internal/chatmodel"
)

var (
	securityRecommendationKeywords    = []string{"security", "auth", "encrypt"}
	performanceRecommendationKeywords = []string{"performance", "optimization", "efficiency"}
)

// SecurityScore starts at 10 and loses 3 points per critical or high
// concern, 2 per medium and 1 for anything else, floored at 0.
func SecurityScore(concerns []string) int {
	score := 10
	for _, c := range concerns {
		lower := strings.ToLower(c)
		switch {
		case strings.Contains(lower, "critical"), strings.Contains(lower, "high"):
			score -= 3
		case strings.Contains(lower, "medium"):
			score -= 2
		default:
			score--
		}
	}
	return max(0, score)
}

// DeriveSecurity builds the security view of an automated summary.
func DeriveSecurity(sum *chatmodel.SummaryContext) *chatmodel.SecurityAnalysis {
	if sum == nil {
		return nil
	}
	return &chatmodel.SecurityAnalysis{
		Concerns:        nonNil(sum.SecurityConcerns),
		Score:           SecurityScore(sum.SecurityConcerns),
		Recommendations: filterContaining(sum.Suggestions, securityRecommendationKeywords),
	}
}

// DerivePerformance builds the performance view of an automated summary.
// The score is the scalability rating, zero when unrated.
func DerivePerformance(sum *chatmodel.SummaryContext) *chatmodel.PerformanceAnalysis {
	if sum == nil {
		return nil
	}
	pa := &chatmodel.PerformanceAnalysis{
		Issues:          nonNil(sum.PerformanceIssues),
		Recommendations: filterContaining(sum.Suggestions, performanceRecommendationKeywords),
	}
	if sum.QualityRating != nil {
		pa.Score = sum.QualityRating.Scalability
	}
	return pa
}

func filterContaining(items, keywords []string) []string {
	out := []string{}
	for _, item := range items {
		lower := strings.ToLower(item)
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
