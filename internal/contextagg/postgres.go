package contextagg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/livereview/prchat/internal/chatmodel"
)

// PostgresStorage reads pull-request data written by the ingestion side.
type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(db *sql.DB) *PostgresStorage { return &PostgresStorage{db: db} }

func (s *PostgresStorage) GetMetadata(ctx context.Context, scope chatmodel.Scope) (*chatmodel.PRMetadata, error) {
	if scope.PRMetadataID == "" {
		return nil, nil
	}
	var md chatmodel.PRMetadata
	var body, avatar sql.NullString
	var mergeable sql.NullBool
	var mergedAt, closedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
        SELECT m.pr_metadata_id, m.pr_number, m.title, m.body, m.state, m.draft, m.mergeable,
               u.login, u.avatar_url, r.repository_name, r.repository_owner,
               m.base_ref, m.base_sha, m.head_ref, m.head_sha,
               m.github_created_at, m.github_updated_at, m.merged_at, m.closed_at
        FROM pr_metadata m
        JOIN github_users u ON u.github_user_id = m.author_github_user_id
        JOIN repositories r ON r.repository_id = m.repository_id
        WHERE m.pr_metadata_id = $1 AND m.deleted_at IS NULL
    `, scope.PRMetadataID).Scan(
		&md.PRMetadataID, &md.Number, &md.Title, &body, &md.State, &md.Draft, &mergeable,
		&md.Author.Login, &avatar, &md.RepoName, &md.RepoOwner,
		&md.Base.Ref, &md.Base.SHA, &md.Head.Ref, &md.Head.SHA,
		&md.CreatedAt, &md.UpdatedAt, &mergedAt, &closedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pr metadata: %w", err)
	}
	md.Description = body.String
	md.Author.AvatarURL = avatar.String
	md.RepoFullName = md.RepoOwner + "/" + md.RepoName
	if mergeable.Valid {
		md.Mergeable = &mergeable.Bool
	}
	md.MergedAt = nullTime(mergedAt)
	md.ClosedAt = nullTime(closedAt)
	return &md, nil
}

func (s *PostgresStorage) GetSummary(ctx context.Context, scope chatmodel.Scope) (*chatmodel.SummaryContext, error) {
	if scope.PRMetadataID == "" {
		return nil, nil
	}
	var sum chatmodel.SummaryContext
	var wellHandled, rating []byte
	var model sql.NullString
	var analyzedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
        SELECT s.summary, s.overall_score, s.issues_found, s.suggestions, s.test_recommendations,
               s.security_concerns, s.performance_issues, s.well_handled_cases, s.future_enhancements,
               s.code_quality_rating, s.analysis_model, s.analysis_timestamp
        FROM pr_summary s
        JOIN pr_reviews pr ON pr.pr_review_id = s.pr_review_id
        WHERE pr.pr_metadata_id = $1 AND s.deleted_at IS NULL
        ORDER BY s.created_at DESC
        LIMIT 1
    `, scope.PRMetadataID).Scan(
		&sum.Summary, &sum.OverallScore,
		pq.Array(&sum.IssuesFound), pq.Array(&sum.Suggestions), pq.Array(&sum.TestRecommendations),
		pq.Array(&sum.SecurityConcerns), pq.Array(&sum.PerformanceIssues),
		&wellHandled, pq.Array(&sum.FutureEnhancements),
		&rating, &model, &analyzedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pr summary: %w", err)
	}
	if len(wellHandled) > 0 {
		if err := json.Unmarshal(wellHandled, &sum.WellHandledCases); err != nil {
			return nil, fmt.Errorf("decode well_handled_cases: %w", err)
		}
	}
	if len(rating) > 0 {
		var qr chatmodel.QualityRating
		if err := json.Unmarshal(rating, &qr); err != nil {
			return nil, fmt.Errorf("decode code_quality_rating: %w", err)
		}
		sum.QualityRating = &qr
	}
	sum.AnalysisModel = model.String
	sum.AnalysisTimestamp = nullTime(analyzedAt)
	return &sum, nil
}

func (s *PostgresStorage) GetFiles(ctx context.Context, scope chatmodel.Scope, fileNames []string) ([]chatmodel.FileChange, error) {
	if scope.PRMetadataID == "" {
		return nil, nil
	}
	patterns := make([]string, 0, len(fileNames))
	for _, n := range fileNames {
		patterns = append(patterns, "%"+n+"%")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT f.file_path, coalesce(f.previous_file_path,''), f.change_type, f.additions, f.deletions,
               coalesce(f.patch,''), coalesce(f.file_language,''), coalesce(f.is_binary,false), coalesce(f.file_size_bytes,0)
        FROM pr_files f
        JOIN pr_reviews pr ON pr.pr_review_id = f.pr_review_id
        WHERE pr.pr_metadata_id = $1 AND f.deleted_at IS NULL
          AND (cardinality($2::text[]) = 0 OR f.file_path ILIKE ANY($2::text[]))
        ORDER BY f.additions + f.deletions DESC
    `, scope.PRMetadataID, pq.Array(patterns))
	if err != nil {
		return nil, fmt.Errorf("query pr files: %w", err)
	}
	defer rows.Close()
	var out []chatmodel.FileChange
	for rows.Next() {
		var f chatmodel.FileChange
		if err := rows.Scan(&f.Filename, &f.PreviousFilename, &f.ChangeType, &f.Additions, &f.Deletions,
			&f.Patch, &f.Language, &f.IsBinary, &f.SizeBytes); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) GetReviews(ctx context.Context, scope chatmodel.Scope) ([]chatmodel.Review, error) {
	if scope.PRMetadataID == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT r.github_review_id, u.login, coalesce(u.avatar_url,''), r.state, coalesce(r.body,''),
               r.submitted_at, coalesce(r.commit_sha,'')
        FROM github_pr_reviews r
        JOIN github_users u ON u.github_user_id = r.reviewer_github_user_id
        WHERE r.pr_metadata_id = $1 AND r.deleted_at IS NULL
        ORDER BY r.submitted_at DESC NULLS LAST
    `, scope.PRMetadataID)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()
	var out []chatmodel.Review
	for rows.Next() {
		var r chatmodel.Review
		var submitted sql.NullTime
		if err := rows.Scan(&r.ID, &r.Reviewer.Login, &r.Reviewer.AvatarURL, &r.State, &r.Body, &submitted, &r.CommitSHA); err != nil {
			return nil, err
		}
		r.SubmittedAt = nullTime(submitted)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) GetComments(ctx context.Context, scope chatmodel.Scope, limit int) ([]chatmodel.Comment, error) {
	if scope.PRMetadataID == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT c.github_comment_id, u.login, coalesce(u.avatar_url,''), coalesce(c.body,''),
               coalesce(c.path,''), coalesce(c.line,0), c.github_created_at, c.github_updated_at
        FROM pr_comments c
        JOIN github_users u ON u.github_user_id = c.author_github_user_id
        WHERE c.pr_metadata_id = $1 AND c.deleted_at IS NULL
        ORDER BY c.github_created_at DESC
        LIMIT $2
    `, scope.PRMetadataID, limit)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()
	var out []chatmodel.Comment
	for rows.Next() {
		var c chatmodel.Comment
		if err := rows.Scan(&c.ID, &c.Author.Login, &c.Author.AvatarURL, &c.Body, &c.FilePath, &c.Line, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) GetCommits(ctx context.Context, scope chatmodel.Scope) ([]chatmodel.Commit, error) {
	if scope.PRMetadataID == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT c.commit_sha, c.message, c.author, coalesce(c.author_email,''), c.committed_at,
               coalesce(c.verified,false), c.additions, c.deletions
        FROM pr_commits c
        JOIN pr_reviews pr ON pr.pr_review_id = c.pr_review_id
        WHERE pr.pr_metadata_id = $1 AND c.deleted_at IS NULL
        ORDER BY c.committed_at DESC
    `, scope.PRMetadataID)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()
	var out []chatmodel.Commit
	for rows.Next() {
		var c chatmodel.Commit
		if err := rows.Scan(&c.SHA, &c.Message, &c.AuthorName, &c.AuthorEmail, &c.CommittedAt, &c.Verified, &c.Additions, &c.Deletions); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) GetRepository(ctx context.Context, repositoryID string) (*chatmodel.RepositoryContext, error) {
	if repositoryID == "" {
		return nil, nil
	}
	var rc chatmodel.RepositoryContext
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx, `
        SELECT repository_id, repository_name, repository_owner, description,
               coalesce(metadata->>'default_branch','main'), coalesce((metadata->>'private')::boolean,false)
        FROM repositories
        WHERE repository_id = $1 AND deleted_at IS NULL
    `, repositoryID).Scan(&rc.Repository.RepositoryID, &rc.Repository.Name, &rc.Repository.Owner, &desc,
		&rc.Repository.DefaultBranch, &rc.Repository.IsPrivate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query repository: %w", err)
	}
	rc.Repository.Description = desc.String
	rc.Repository.FullName = rc.Repository.Owner + "/" + rc.Repository.Name

	err = s.db.QueryRowContext(ctx, `
        SELECT count(*),
               count(*) FILTER (WHERE state = 'open'),
               count(*) FILTER (WHERE state = 'merged')
        FROM pr_metadata
        WHERE repository_id = $1 AND deleted_at IS NULL
    `, repositoryID).Scan(&rc.Stats.TotalPRs, &rc.Stats.OpenPRs, &rc.Stats.MergedPRs)
	if err != nil {
		return nil, fmt.Errorf("query repository stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT m.pr_number, m.title, m.state, u.login, m.github_created_at, m.github_updated_at
        FROM pr_metadata m
        JOIN github_users u ON u.github_user_id = m.author_github_user_id
        WHERE m.repository_id = $1 AND m.deleted_at IS NULL
        ORDER BY m.github_updated_at DESC
        LIMIT $2
    `, repositoryID, recentPRLimit)
	if err != nil {
		return nil, fmt.Errorf("query recent prs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pr chatmodel.RepositoryPR
		if err := rows.Scan(&pr.Number, &pr.Title, &pr.State, &pr.Author, &pr.CreatedAt, &pr.UpdatedAt); err != nil {
			return nil, err
		}
		rc.RecentPRs = append(rc.RecentPRs, pr)
	}
	return &rc, rows.Err()
}

// FindPullRequest resolves owner/name#number to the stored pull request and
// its repository id.
func (s *PostgresStorage) FindPullRequest(ctx context.Context, owner, name string, number int) (*chatmodel.PRMetadata, string, error) {
	var id, repositoryID string
	err := s.db.QueryRowContext(ctx, `
        SELECT m.pr_metadata_id, r.repository_id
        FROM pr_metadata m
        JOIN repositories r ON r.repository_id = m.repository_id
        WHERE lower(r.repository_owner) = lower($1) AND lower(r.repository_name) = lower($2)
          AND m.pr_number = $3 AND m.deleted_at IS NULL
    `, owner, name, number).Scan(&id, &repositoryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("find pull request: %w", err)
	}
	md, err := s.GetMetadata(ctx, chatmodel.Scope{PRMetadataID: id})
	if err != nil || md == nil {
		return nil, "", err
	}
	return md, repositoryID, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
