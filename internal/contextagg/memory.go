package contextagg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/livereview/prchat/internal/chatmodel"
)

// PRFixture is everything known about one pull request.
type PRFixture struct {
	Metadata *chatmodel.PRMetadata     `json:"metadata,omitempty"`
	Summary  *chatmodel.SummaryContext `json:"summary,omitempty"`
	Files    []FixtureFile             `json:"files,omitempty"`
	Reviews  []chatmodel.Review        `json:"reviews,omitempty"`
	Comments []chatmodel.Comment       `json:"comments,omitempty"`
	Commits  []chatmodel.Commit        `json:"commits,omitempty"`
}

// FixtureFile carries the patch, which FileChange does not serialise.
type FixtureFile struct {
	chatmodel.FileChange
	Patch string `json:"patch,omitempty"`
}

// Fixtures is the on-disk shape loaded by LoadFixtures.
type Fixtures struct {
	PullRequests map[string]PRFixture                    `json:"pull_requests"`
	Repositories map[string]*chatmodel.RepositoryContext `json:"repositories,omitempty"`
}

// InMemoryStorage serves fixtures from memory. It backs tests and the
// one-shot ask command.
type InMemoryStorage struct {
	mu    sync.RWMutex
	prs   map[string]PRFixture
	repos map[string]*chatmodel.RepositoryContext
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		prs:   make(map[string]PRFixture),
		repos: make(map[string]*chatmodel.RepositoryContext),
	}
}

// LoadFixtures reads a JSON fixture file into a new storage.
func LoadFixtures(path string) (*InMemoryStorage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var fx Fixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	s := NewInMemoryStorage()
	for id, pr := range fx.PullRequests {
		s.PutPR(id, pr)
	}
	for id, repo := range fx.Repositories {
		s.PutRepository(id, repo)
	}
	return s, nil
}

func (s *InMemoryStorage) PutPR(prMetadataID string, pr PRFixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prs[prMetadataID] = pr
}

func (s *InMemoryStorage) PutRepository(repositoryID string, repo *chatmodel.RepositoryContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[repositoryID] = repo
}

// FindPullRequest looks a pull request up by repository and number.
func (s *InMemoryStorage) FindPullRequest(ctx context.Context, owner, name string, number int) (*chatmodel.PRMetadata, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, pr := range s.prs {
		md := pr.Metadata
		if md == nil || md.Number != number {
			continue
		}
		if strings.EqualFold(md.RepoOwner, owner) && strings.EqualFold(md.RepoName, name) {
			cp := *md
			if cp.PRMetadataID == "" {
				cp.PRMetadataID = id
			}
			return &cp, s.repositoryIDFor(owner, name), nil
		}
	}
	return nil, "", nil
}

func (s *InMemoryStorage) repositoryIDFor(owner, name string) string {
	for id, repo := range s.repos {
		if repo != nil && strings.EqualFold(repo.Repository.Owner, owner) && strings.EqualFold(repo.Repository.Name, name) {
			return id
		}
	}
	return ""
}

func (s *InMemoryStorage) pr(scope chatmodel.Scope) (PRFixture, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if scope.PRMetadataID == "" {
		return PRFixture{}, false
	}
	pr, ok := s.prs[scope.PRMetadataID]
	return pr, ok
}

func (s *InMemoryStorage) GetMetadata(ctx context.Context, scope chatmodel.Scope) (*chatmodel.PRMetadata, error) {
	pr, ok := s.pr(scope)
	if !ok || pr.Metadata == nil {
		return nil, nil
	}
	md := *pr.Metadata
	return &md, nil
}

func (s *InMemoryStorage) GetSummary(ctx context.Context, scope chatmodel.Scope) (*chatmodel.SummaryContext, error) {
	pr, ok := s.pr(scope)
	if !ok || pr.Summary == nil {
		return nil, nil
	}
	sum := *pr.Summary
	return &sum, nil
}

func (s *InMemoryStorage) GetFiles(ctx context.Context, scope chatmodel.Scope, fileNames []string) ([]chatmodel.FileChange, error) {
	pr, ok := s.pr(scope)
	if !ok {
		return nil, nil
	}
	var out []chatmodel.FileChange
	for _, f := range pr.Files {
		if len(fileNames) > 0 && !matchesAny(f.Filename, fileNames) {
			continue
		}
		fc := f.FileChange
		fc.Patch = f.Patch
		out = append(out, fc)
	}
	return out, nil
}

func matchesAny(path string, names []string) bool {
	lower := strings.ToLower(path)
	for _, n := range names {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func (s *InMemoryStorage) GetReviews(ctx context.Context, scope chatmodel.Scope) ([]chatmodel.Review, error) {
	pr, ok := s.pr(scope)
	if !ok || len(pr.Reviews) == 0 {
		return nil, nil
	}
	out := append([]chatmodel.Review(nil), pr.Reviews...)
	sort.SliceStable(out, func(i, j int) bool {
		return timeOrZero(out[i].SubmittedAt).After(timeOrZero(out[j].SubmittedAt))
	})
	return out, nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (s *InMemoryStorage) GetComments(ctx context.Context, scope chatmodel.Scope, limit int) ([]chatmodel.Comment, error) {
	pr, ok := s.pr(scope)
	if !ok || len(pr.Comments) == 0 {
		return nil, nil
	}
	out := append([]chatmodel.Comment(nil), pr.Comments...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStorage) GetCommits(ctx context.Context, scope chatmodel.Scope) ([]chatmodel.Commit, error) {
	pr, ok := s.pr(scope)
	if !ok || len(pr.Commits) == 0 {
		return nil, nil
	}
	out := append([]chatmodel.Commit(nil), pr.Commits...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CommittedAt.After(out[j].CommittedAt) })
	return out, nil
}

func (s *InMemoryStorage) GetRepository(ctx context.Context, repositoryID string) (*chatmodel.RepositoryContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.repos[repositoryID]
	if !ok || repo == nil {
		return nil, nil
	}
	cp := *repo
	cp.RecentPRs = append([]chatmodel.RepositoryPR(nil), repo.RecentPRs...)
	return &cp, nil
}
