package chatmodel

var defaultFollowups = map[Category][]string{
	CategorySummary: {
		"What files were changed in this PR?",
		"What did reviewers say about this PR?",
		"Are there any security concerns?",
	},
	CategoryCodeAnalysis: {
		"Show me the largest code changes",
		"What are the main implementation details?",
		"Are there any potential bugs in the changes?",
	},
	CategoryReviewFeedback: {
		"What specific feedback did reviewers provide?",
		"Has this PR been approved?",
		"Are there any unresolved review comments?",
	},
	CategorySecurity: {
		"What specific security issues were found?",
		"How can these security concerns be addressed?",
		"Are there any authentication-related changes?",
	},
	CategoryPerformance: {
		"What performance optimizations are recommended?",
		"Are there any bottlenecks in the code?",
		"How does this impact system performance?",
	},
	CategoryTimeline: {
		"When was this PR created?",
		"When was it last updated?",
		"What is the review timeline?",
	},
	CategoryFileListing: {
		"Show me the files with the most changes",
		"What programming languages are used?",
		"Are there any configuration files changed?",
	},
	CategoryTestGuidance: {
		"What types of tests should be added?",
		"Is there adequate test coverage?",
		"Are there any edge cases to consider?",
	},
	CategoryGeneral: {
		"What is this PR about?",
		"Who authored this PR?",
		"What is the current status?",
	},
}

// DefaultFollowups returns the static follow-up suggestions for a category.
// Unknown categories get the general ones.
func DefaultFollowups(c Category) []string {
	f, ok := defaultFollowups[c]
	if !ok {
		f = defaultFollowups[CategoryGeneral]
	}
	return append([]string(nil), f...)
}
