package contextagg

import (
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/go-diff/diff"

	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/metrics"
	"github.com/livereview/prchat/internal/textutil"
)

const (
	DefaultMaxFiles     = 50
	DefaultPreviewChars = 1000
	DefaultMaxComments  = 50
	recentPRLimit       = 10
)

// RankFiles orders files by additions+deletions descending, keeping the
// storage order for ties, and keeps at most limit of them.
func RankFiles(files []chatmodel.FileChange, limit int) []chatmodel.FileChange {
	out := append([]chatmodel.FileChange(nil), files...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Changes() > out[j].Changes() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// buildFilesContext ranks, truncates and summarises files. Patches are
// reduced to previews and dropped.
func buildFilesContext(files []chatmodel.FileChange, maxFiles, previewChars int, redactor Redactor) *chatmodel.FilesContext {
	if len(files) == 0 {
		return nil
	}
	ranked := RankFiles(files, maxFiles)
	fc := &chatmodel.FilesContext{Files: ranked}
	languages := make(map[string]struct{})
	changeTypes := make(map[string]struct{})
	for i := range ranked {
		f := &ranked[i]
		f.Hunks = countHunks(f.Patch)
		preview, found := redactor.Redact(textutil.Truncate(f.Patch, previewChars, "..."))
		f.PatchPreview = preview
		f.Patch = ""
		if found > 0 {
			fc.Summary.SecretsDetected += found
			metrics.SecretsRedacted.Add(float64(found))
			log.Warn().Str("file", f.Filename).Int("count", found).Msg("Redacted secrets from patch preview")
		}

		fc.Summary.TotalAdditions += f.Additions
		fc.Summary.TotalDeletions += f.Deletions
		if f.Language != "" {
			if _, ok := languages[f.Language]; !ok {
				languages[f.Language] = struct{}{}
				fc.Summary.Languages = append(fc.Summary.Languages, f.Language)
			}
		}
		if f.ChangeType != "" {
			if _, ok := changeTypes[f.ChangeType]; !ok {
				changeTypes[f.ChangeType] = struct{}{}
				fc.Summary.ChangeTypes = append(fc.Summary.ChangeTypes, f.ChangeType)
			}
		}
	}
	fc.Summary.TotalFiles = len(ranked)
	return fc
}

// countHunks parses a unified diff body. Unparseable patches count as zero.
func countHunks(patch string) int {
	if patch == "" {
		return 0
	}
	hunks, err := diff.ParseHunks([]byte(patch))
	if err != nil {
		log.Debug().Err(err).Msg("Could not parse patch hunks")
		return 0
	}
	return len(hunks)
}

func buildReviewsContext(reviews []chatmodel.Review) *chatmodel.ReviewsContext {
	if len(reviews) == 0 {
		return nil
	}
	rc := &chatmodel.ReviewsContext{Reviews: reviews}
	seen := make(map[string]struct{})
	for _, r := range reviews {
		switch r.State {
		case "APPROVED":
			rc.Summary.Approved++
		case "CHANGES_REQUESTED":
			rc.Summary.ChangesRequested++
		case "COMMENTED":
			rc.Summary.Commented++
		}
		if _, ok := seen[r.Reviewer.Login]; !ok && r.Reviewer.Login != "" {
			seen[r.Reviewer.Login] = struct{}{}
			rc.Summary.Reviewers = append(rc.Summary.Reviewers, r.Reviewer.Login)
		}
	}
	rc.Summary.Total = len(reviews)
	return rc
}

func buildCommentsContext(comments []chatmodel.Comment, limit int) *chatmodel.CommentsContext {
	if len(comments) == 0 {
		return nil
	}
	if limit > 0 && len(comments) > limit {
		comments = comments[:limit]
	}
	cc := &chatmodel.CommentsContext{Comments: comments}
	seen := make(map[string]struct{})
	for _, c := range comments {
		if c.FilePath != "" {
			cc.Summary.FileSpecific++
		} else {
			cc.Summary.General++
		}
		if _, ok := seen[c.Author.Login]; !ok && c.Author.Login != "" {
			seen[c.Author.Login] = struct{}{}
			cc.Summary.Commenters = append(cc.Summary.Commenters, c.Author.Login)
		}
	}
	cc.Summary.Total = len(comments)
	return cc
}

func buildCommitsContext(commits []chatmodel.Commit) *chatmodel.CommitsContext {
	if len(commits) == 0 {
		return nil
	}
	cc := &chatmodel.CommitsContext{Commits: commits}
	seen := make(map[string]struct{})
	for _, c := range commits {
		if c.Verified {
			cc.Summary.Verified++
		}
		if _, ok := seen[c.AuthorName]; !ok && c.AuthorName != "" {
			seen[c.AuthorName] = struct{}{}
			cc.Summary.Authors = append(cc.Summary.Authors, c.AuthorName)
		}
	}
	cc.Summary.Total = len(commits)
	return cc
}
