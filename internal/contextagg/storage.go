package contextagg

import (
	"context"

	"github.com/livereview/prchat/internal/chatmodel"
)

// Storage is the read-only view of pull-request data the aggregator needs.
// Every method returns a nil value and a nil error when there is no data.
type Storage interface {
	GetMetadata(ctx context.Context, scope chatmodel.Scope) (*chatmodel.PRMetadata, error)
	// GetSummary returns the latest automated analysis of the pull request.
	GetSummary(ctx context.Context, scope chatmodel.Scope) (*chatmodel.SummaryContext, error)
	// GetFiles returns changed files. When fileNames is non-empty only paths
	// containing one of the names (case-insensitive) are returned.
	GetFiles(ctx context.Context, scope chatmodel.Scope, fileNames []string) ([]chatmodel.FileChange, error)
	// GetReviews returns reviews newest first.
	GetReviews(ctx context.Context, scope chatmodel.Scope) ([]chatmodel.Review, error)
	// GetComments returns at most limit comments, newest first.
	GetComments(ctx context.Context, scope chatmodel.Scope, limit int) ([]chatmodel.Comment, error)
	// GetCommits returns commits newest first.
	GetCommits(ctx context.Context, scope chatmodel.Scope) ([]chatmodel.Commit, error)
	GetRepository(ctx context.Context, repositoryID string) (*chatmodel.RepositoryContext, error)
}
