package chatmodel

import "time"

// ContextKind names one slice of retrievable or derived context.
type ContextKind string

const (
	ContextMetadata    ContextKind = "metadata"
	ContextSummary     ContextKind = "summary"
	ContextFiles       ContextKind = "files"
	ContextReviews     ContextKind = "reviews"
	ContextComments    ContextKind = "comments"
	ContextCommits     ContextKind = "commits"
	ContextSecurity    ContextKind = "security_analysis"
	ContextPerformance ContextKind = "performance_analysis"
	ContextRepository  ContextKind = "repository"
)

// AllContextKinds is the universe of context kinds in bundle order.
var AllContextKinds = []ContextKind{
	ContextMetadata,
	ContextSummary,
	ContextFiles,
	ContextReviews,
	ContextComments,
	ContextCommits,
	ContextSecurity,
	ContextPerformance,
	ContextRepository,
}

// Valid reports whether k is a known context kind.
func (k ContextKind) Valid() bool {
	for _, known := range AllContextKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Scope identifies what a session is about: one pull request or a whole repository.
type Scope struct {
	PRMetadataID string
	RepositoryID string
}

// Person is a GitHub user as seen in PR data.
type Person struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// GitRef is one side of a pull request.
type GitRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// PRMetadata is the basic pull-request record.
type PRMetadata struct {
	PRMetadataID string     `json:"pr_metadata_id"`
	Number       int        `json:"pr_number"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	State        string     `json:"state"`
	Draft        bool       `json:"is_draft"`
	Mergeable    *bool      `json:"mergeable,omitempty"`
	Author       Person     `json:"author"`
	RepoName     string     `json:"repository_name"`
	RepoOwner    string     `json:"repository_owner"`
	RepoFullName string     `json:"repository_full_name"`
	Base         GitRef     `json:"base"`
	Head         GitRef     `json:"head"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

type WellHandledCase struct {
	Area   string `json:"area"`
	Reason string `json:"reason"`
}

// QualityRating holds the 0-10 sub-scores from the automated review.
type QualityRating struct {
	Readability     float64 `json:"readability"`
	Maintainability float64 `json:"maintainability"`
	Scalability     float64 `json:"scalability"`
	Testing         float64 `json:"testing"`
}

// SummaryContext is the prior automated analysis of the pull request.
type SummaryContext struct {
	Summary             string            `json:"summary"`
	OverallScore        float64           `json:"overall_score"`
	IssuesFound         []string          `json:"issues_found"`
	Suggestions         []string          `json:"suggestions"`
	TestRecommendations []string          `json:"test_recommendations"`
	SecurityConcerns    []string          `json:"security_concerns"`
	PerformanceIssues   []string          `json:"performance_issues"`
	WellHandledCases    []WellHandledCase `json:"well_handled_cases"`
	FutureEnhancements  []string          `json:"future_enhancements"`
	QualityRating       *QualityRating    `json:"code_quality_rating,omitempty"`
	AnalysisModel       string            `json:"analysis_model,omitempty"`
	AnalysisTimestamp   *time.Time        `json:"analysis_timestamp,omitempty"`
}

// FileChange is one changed file of the pull request.
type FileChange struct {
	Filename         string `json:"filename"`
	PreviousFilename string `json:"previous_filename,omitempty"`
	ChangeType       string `json:"change_type"`
	Additions        int    `json:"additions"`
	Deletions        int    `json:"deletions"`
	Patch            string `json:"-"`
	PatchPreview     string `json:"patch_preview,omitempty"`
	Hunks            int    `json:"hunks"`
	Language         string `json:"language,omitempty"`
	IsBinary         bool   `json:"is_binary"`
	SizeBytes        int    `json:"file_size,omitempty"`
}

// Changes returns additions plus deletions.
func (f FileChange) Changes() int { return f.Additions + f.Deletions }

type FilesSummary struct {
	TotalFiles      int      `json:"total_files"`
	TotalAdditions  int      `json:"total_additions"`
	TotalDeletions  int      `json:"total_deletions"`
	Languages       []string `json:"languages"`
	ChangeTypes     []string `json:"change_types"`
	SecretsDetected int      `json:"secrets_detected,omitempty"`
}

type FilesContext struct {
	Files   []FileChange `json:"files"`
	Summary FilesSummary `json:"summary"`
}

type Review struct {
	ID          string     `json:"id"`
	Reviewer    Person     `json:"reviewer"`
	State       string     `json:"state"`
	Body        string     `json:"body"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CommitSHA   string     `json:"commit_sha,omitempty"`
}

type ReviewsSummary struct {
	Total            int      `json:"total_reviews"`
	Approved         int      `json:"approved"`
	ChangesRequested int      `json:"changes_requested"`
	Commented        int      `json:"commented"`
	Reviewers        []string `json:"reviewers"`
}

type ReviewsContext struct {
	Reviews []Review       `json:"reviews"`
	Summary ReviewsSummary `json:"summary"`
}

type Comment struct {
	ID        string    `json:"id"`
	Author    Person    `json:"author"`
	Body      string    `json:"body"`
	FilePath  string    `json:"file_path,omitempty"`
	Line      int       `json:"line,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CommentsSummary struct {
	Total        int      `json:"total_comments"`
	Commenters   []string `json:"commenters"`
	FileSpecific int      `json:"file_specific_comments"`
	General      int      `json:"general_comments"`
}

type CommentsContext struct {
	Comments []Comment       `json:"comments"`
	Summary  CommentsSummary `json:"summary"`
}

type Commit struct {
	SHA         string    `json:"sha"`
	Message     string    `json:"message"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	CommittedAt time.Time `json:"committed_at"`
	Verified    bool      `json:"verified"`
	Additions   int       `json:"additions"`
	Deletions   int       `json:"deletions"`
	Author      *Person   `json:"github_author,omitempty"`
}

type CommitsSummary struct {
	Total    int      `json:"total_commits"`
	Authors  []string `json:"authors"`
	Verified int      `json:"verified_commits"`
}

type CommitsContext struct {
	Commits []Commit       `json:"commits"`
	Summary CommitsSummary `json:"summary"`
}

// SecurityAnalysis is derived from the automated summary.
type SecurityAnalysis struct {
	Concerns        []string `json:"security_concerns"`
	Score           int      `json:"overall_security_score"`
	Recommendations []string `json:"recommendations"`
}

// PerformanceAnalysis is derived from the automated summary.
type PerformanceAnalysis struct {
	Issues          []string `json:"performance_issues"`
	Score           float64  `json:"performance_score"`
	Recommendations []string `json:"recommendations"`
}

type RepositoryInfo struct {
	RepositoryID  string `json:"repository_id"`
	Name          string `json:"name"`
	Owner         string `json:"owner"`
	FullName      string `json:"full_name"`
	Description   string `json:"description,omitempty"`
	DefaultBranch string `json:"default_branch"`
	IsPrivate     bool   `json:"is_private"`
}

type RepositoryPR struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RepositoryStats struct {
	TotalPRs  int `json:"total_prs"`
	OpenPRs   int `json:"open_prs"`
	MergedPRs int `json:"merged_prs"`
}

// RepositoryContext backs repository-wide sessions.
type RepositoryContext struct {
	Repository RepositoryInfo  `json:"repository"`
	RecentPRs  []RepositoryPR  `json:"recent_prs"`
	Stats      RepositoryStats `json:"stats"`
}

// ContextBundle is the per-question payload handed to the model. Every field
// is optional; a nil field means the kind was not required or had no data.
type ContextBundle struct {
	Metadata    *PRMetadata          `json:"metadata,omitempty"`
	Summary     *SummaryContext      `json:"summary,omitempty"`
	Files       *FilesContext        `json:"files,omitempty"`
	Reviews     *ReviewsContext      `json:"reviews,omitempty"`
	Comments    *CommentsContext     `json:"comments,omitempty"`
	Commits     *CommitsContext      `json:"commits,omitempty"`
	Security    *SecurityAnalysis    `json:"security,omitempty"`
	Performance *PerformanceAnalysis `json:"performance,omitempty"`
	Repository  *RepositoryContext   `json:"repository,omitempty"`
}

// Has reports whether the bundle carries the given kind.
func (b *ContextBundle) Has(kind ContextKind) bool {
	if b == nil {
		return false
	}
	switch kind {
	case ContextMetadata:
		return b.Metadata != nil
	case ContextSummary:
		return b.Summary != nil
	case ContextFiles:
		return b.Files != nil
	case ContextReviews:
		return b.Reviews != nil
	case ContextComments:
		return b.Comments != nil
	case ContextCommits:
		return b.Commits != nil
	case ContextSecurity:
		return b.Security != nil
	case ContextPerformance:
		return b.Performance != nil
	case ContextRepository:
		return b.Repository != nil
	}
	return false
}

// Kinds lists the present kinds in bundle order.
func (b *ContextBundle) Kinds() []ContextKind {
	var kinds []ContextKind
	for _, k := range AllContextKinds {
		if b.Has(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Empty reports whether nothing was gathered.
func (b *ContextBundle) Empty() bool {
	return len(b.Kinds()) == 0
}
