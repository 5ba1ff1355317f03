package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/livereview/prchat/internal/chatmodel"
)

// SessionFilter narrows ListSessions. Empty fields match everything.
type SessionFilter struct {
	RepositoryID string
	PRMetadataID string
}

// SessionStore persists sessions and their append-only messages. Lookups
// are scoped to the owning user; deleted sessions behave as missing.
type SessionStore interface {
	CreateSession(ctx context.Context, s *chatmodel.Session) error
	GetSession(ctx context.Context, sessionID string, userID int64) (*chatmodel.Session, error)
	ListSessions(ctx context.Context, userID int64, filter SessionFilter) ([]*chatmodel.Session, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	DeleteSession(ctx context.Context, sessionID string, userID int64, at time.Time) error
	AppendMessage(ctx context.Context, m *chatmodel.Message) error
	// ListMessages returns the last limit messages oldest first; limit <= 0
	// returns all of them.
	ListMessages(ctx context.Context, sessionID string, limit int) ([]chatmodel.Message, error)
}

// InMemoryStore is a threadsafe in-memory store for tests and the demo CLI
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*chatmodel.Session
	messages map[string][]chatmodel.Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*chatmodel.Session),
		messages: make(map[string][]chatmodel.Message),
	}
}

func (s *InMemoryStore) CreateSession(ctx context.Context, sess *chatmodel.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = NewSessionID()
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.LastActivity.IsZero() {
		sess.LastActivity = sess.CreatedAt
	}
	sess.UpdatedAt = sess.CreatedAt
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *InMemoryStore) GetSession(ctx context.Context, sessionID string, userID int64) (*chatmodel.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.DeletedAt != nil || sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *InMemoryStore) ListSessions(ctx context.Context, userID int64, filter SessionFilter) ([]*chatmodel.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*chatmodel.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.DeletedAt != nil {
			continue
		}
		if filter.RepositoryID != "" && (sess.RepositoryID == nil || *sess.RepositoryID != filter.RepositoryID) {
			continue
		}
		if filter.PRMetadataID != "" && (sess.PRMetadataID == nil || *sess.PRMetadataID != filter.PRMetadataID) {
			continue
		}
		out = append(out, cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

func (s *InMemoryStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.DeletedAt != nil {
		return ErrSessionNotFound
	}
	sess.LastActivity = at
	sess.UpdatedAt = at
	return nil
}

func (s *InMemoryStore) DeleteSession(ctx context.Context, sessionID string, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.DeletedAt != nil || sess.UserID != userID {
		return ErrSessionNotFound
	}
	deleted := at
	sess.DeletedAt = &deleted
	sess.UpdatedAt = at
	return nil
}

func (s *InMemoryStore) AppendMessage(ctx context.Context, m *chatmodel.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[m.SessionID]; !ok {
		return ErrSessionNotFound
	}
	if m.ID == "" {
		m.ID = NewMessageID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.messages[m.SessionID] = append(s.messages[m.SessionID], cloneMessage(*m))
	return nil
}

func (s *InMemoryStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]chatmodel.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]chatmodel.Message, len(all))
	for i, m := range all {
		out[i] = cloneMessage(m)
	}
	return out, nil
}

func cloneSession(in *chatmodel.Session) *chatmodel.Session {
	out := *in
	out.PRMetadataID = cloneString(in.PRMetadataID)
	out.RepositoryID = cloneString(in.RepositoryID)
	if in.DeletedAt != nil {
		t := *in.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

func cloneMessage(in chatmodel.Message) chatmodel.Message {
	out := in
	out.ContextUsed = append([]string(nil), in.ContextUsed...)
	if in.Classification != nil {
		c := *in.Classification
		out.Classification = &c
	}
	if in.Metadata != nil {
		md := *in.Metadata
		md.FollowupQuestions = append([]string(nil), in.Metadata.FollowupQuestions...)
		md.ContextSources = append([]string(nil), in.Metadata.ContextSources...)
		out.Metadata = &md
	}
	return out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
