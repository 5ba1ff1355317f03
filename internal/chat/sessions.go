package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/broadcast"
	"github.com/livereview/prchat/internal/chatmodel"
	"github.com/livereview/prchat/internal/textutil"
)

var prURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/pull/(\d+)$`)

// PRRef identifies a GitHub pull request.
type PRRef struct {
	Owner  string
	Name   string
	Number int
}

// ParsePRURL parses https://github.com/<owner>/<name>/pull/<n>.
func ParsePRURL(raw string) (PRRef, error) {
	m := prURLPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return PRRef{}, ErrInvalidPRURL
	}
	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return PRRef{}, ErrInvalidPRURL
	}
	return PRRef{Owner: m[1], Name: m[2], Number: n}, nil
}

type CreateSessionRequest struct {
	SessionName  string
	PRURL        string
	RepositoryID string
}

// SessionWithMessages is a session and its full message log.
type SessionWithMessages struct {
	Session  *chatmodel.Session  `json:"session"`
	Messages []chatmodel.Message `json:"messages"`
}

// CreateSession opens a PR-specific session when PRURL is set, otherwise a
// repository-wide one.
func (s *Service) CreateSession(ctx context.Context, userID int64, req CreateSessionRequest) (*chatmodel.Session, error) {
	sess := &chatmodel.Session{UserID: userID, Name: strings.TrimSpace(req.SessionName)}
	switch {
	case req.PRURL != "":
		ref, err := ParsePRURL(req.PRURL)
		if err != nil {
			return nil, err
		}
		pr, repoID, err := s.deps.PRs.FindPullRequest(ctx, ref.Owner, ref.Name, ref.Number)
		if err != nil {
			return nil, fmt.Errorf("find pull request: %w", err)
		}
		if pr == nil {
			return nil, ErrPRNotFound
		}
		prID := pr.PRMetadataID
		sess.Kind = chatmodel.SessionPRSpecific
		sess.PRMetadataID = &prID
		if repoID != "" {
			sess.RepositoryID = &repoID
		}
		if sess.Name == "" {
			sess.Name = fmt.Sprintf("Chat about PR #%d: %s...", pr.Number, textutil.Truncate(pr.Title, 50, ""))
		}
	case req.RepositoryID != "":
		repo, err := s.deps.PRs.GetRepository(ctx, req.RepositoryID)
		if err != nil {
			return nil, fmt.Errorf("find repository: %w", err)
		}
		if repo == nil {
			return nil, ErrRepoNotFound
		}
		repoID := req.RepositoryID
		sess.Kind = chatmodel.SessionRepositoryWide
		sess.RepositoryID = &repoID
		if sess.Name == "" {
			sess.Name = fmt.Sprintf("Chat about %s/%s", repo.Repository.Owner, repo.Repository.Name)
		}
	default:
		return nil, ErrInvalidSession
	}

	if err := s.deps.Store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	log.Info().
		Str("session_id", sess.ID).
		Str("session_type", string(sess.Kind)).
		Int64("user_id", userID).
		Msg("Created chat session")
	return sess, nil
}

// ListSessions returns the user's live sessions, most recently active first.
func (s *Service) ListSessions(ctx context.Context, userID int64, filter SessionFilter) ([]*chatmodel.Session, error) {
	sessions, err := s.deps.Store.ListSessions(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) GetSession(ctx context.Context, userID int64, sessionID string) (*SessionWithMessages, error) {
	sess, err := s.deps.Store.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.deps.Store.ListMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return &SessionWithMessages{Session: sess, Messages: msgs}, nil
}

// DeleteSession soft-deletes the session. Its conversation state and
// broadcast room are dropped by the cleanup job, or inline when no
// scheduler is configured.
func (s *Service) DeleteSession(ctx context.Context, userID int64, sessionID string) error {
	if err := s.deps.Store.DeleteSession(ctx, sessionID, userID, s.opts.Now()); err != nil {
		return err
	}
	s.forgetLimiter(sessionID)
	if s.deps.Cleanup != nil {
		err := s.deps.Cleanup.ScheduleSessionCleanup(ctx, sessionID)
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to enqueue session cleanup, cleaning up inline")
	}
	s.CleanupSession(sessionID)
	return nil
}

// CleanupSession drops live state for a session that no longer exists.
func (s *Service) CleanupSession(sessionID string) {
	if s.deps.Tracker != nil {
		s.deps.Tracker.Cleanup(sessionID)
	}
	if s.deps.Broadcast != nil {
		s.deps.Broadcast.CloseSession(sessionID)
	}
}

// CheckAccess lets only the session owner observe a session.
func (s *Service) CheckAccess(ctx context.Context, sessionID string, userID int64) error {
	_, err := s.deps.Store.GetSession(ctx, sessionID, userID)
	if errors.Is(err, ErrSessionNotFound) {
		return broadcast.ErrSessionNotFound
	}
	return err
}
