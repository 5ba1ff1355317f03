package chat

import (
	"errors"

	"github.com/livereview/prchat/internal/fallback"
)

var (
	ErrInvalidQuestion = errors.New("invalid question")
	ErrSessionNotFound = errors.New("chat session not found")
	ErrInvalidSession  = errors.New("either pr_url or repository_id must be provided")
	ErrInvalidPRURL    = errors.New("invalid GitHub PR URL format")
	ErrPRNotFound      = errors.New("PR not found in database")
	ErrRepoNotFound    = errors.New("repository not found")

	// ErrRateLimited is reported when a session asks faster than its limit.
	ErrRateLimited = fallback.ErrRateLimited
)
