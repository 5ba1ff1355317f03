package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livereview/prchat/internal/api/auth"
	"github.com/livereview/prchat/internal/broadcast"
	"github.com/livereview/prchat/internal/chat"
	"github.com/livereview/prchat/internal/chatmodel"
)

const testSecret = "api-test-secret"

type fakeChat struct {
	mu        sync.Mutex
	created   chat.CreateSessionRequest
	filter    chat.SessionFilter
	asked     []string
	deleted   string
	askResult *chat.AskResult
	err       error
}

func (f *fakeChat) CreateSession(_ context.Context, userID int64, req chat.CreateSessionRequest) (*chatmodel.Session, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return &chatmodel.Session{ID: "s-1", Name: "Chat about acme/api", Kind: chatmodel.SessionRepositoryWide, UserID: userID}, nil
}

func (f *fakeChat) ListSessions(_ context.Context, userID int64, filter chat.SessionFilter) ([]*chatmodel.Session, error) {
	f.filter = filter
	return []*chatmodel.Session{{ID: "s-1", UserID: userID}, {ID: "s-2", UserID: userID}}, f.err
}

func (f *fakeChat) GetSession(_ context.Context, _ int64, sessionID string) (*chat.SessionWithMessages, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &chat.SessionWithMessages{Session: &chatmodel.Session{ID: sessionID}, Messages: []chatmodel.Message{}}, nil
}

func (f *fakeChat) DeleteSession(_ context.Context, _ int64, sessionID string) error {
	f.deleted = sessionID
	return f.err
}

func (f *fakeChat) AskQuestion(_ context.Context, _ int64, _ string, question string) (*chat.AskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, question)
	if f.err != nil {
		return nil, f.err
	}
	return f.askResult, nil
}

func (f *fakeChat) SessionAnalytics(_ context.Context, _ int64, sessionID string) (*chat.SessionAnalytics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &chat.SessionAnalytics{SessionID: sessionID, QueryTypes: map[string]int{"files": 1}}, nil
}

// setAnswer swaps what AskQuestion returns while a socket is being served.
func (f *fakeChat) setAnswer(res *chat.AskResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.askResult, f.err = res, err
}

func (f *fakeChat) questions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.asked...)
}

func bearer(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.JWTClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func newTestServer(fc *fakeChat) (*Server, *broadcast.Hub) {
	hub := broadcast.NewHub(broadcast.AccessCheckerFunc(func(_ context.Context, sessionID string, userID int64) error {
		if sessionID != "s-1" {
			return broadcast.ErrSessionNotFound
		}
		return nil
	}))
	return NewServer(Options{Port: 0}, fc, hub, auth.NewTokenService(testSecret)), hub
}

func do(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer(t, 7))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(&fakeChat{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRoutesRequireAuth(t *testing.T) {
	s, _ := newTestServer(&fakeChat{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chatbot/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionRoutes(t *testing.T) {
	fc := &fakeChat{}
	s, _ := newTestServer(fc)

	t.Run("create", func(t *testing.T) {
		rec, env := do(t, s, http.MethodPost, "/api/v1/chatbot/sessions", `{"repository_id":"repo-1"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, env.Success)
		assert.Equal(t, "Chat session created successfully", env.Message)
		assert.Equal(t, "repo-1", fc.created.RepositoryID)
		assert.Equal(t, "s-1", env.Data.(map[string]interface{})["session_id"])
	})

	t.Run("create needs a target", func(t *testing.T) {
		rec, env := do(t, s, http.MethodPost, "/api/v1/chatbot/sessions", `{"session_name":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, env.Success)
		assert.Contains(t, env.Message, "required_without")
	})

	t.Run("list with filters", func(t *testing.T) {
		rec, env := do(t, s, http.MethodGet, "/api/v1/chatbot/sessions?repository_id=repo-1&pr_metadata_id=pr-7", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Retrieved 2 chat sessions successfully", env.Message)
		assert.Equal(t, chat.SessionFilter{RepositoryID: "repo-1", PRMetadataID: "pr-7"}, fc.filter)
	})

	t.Run("get", func(t *testing.T) {
		rec, env := do(t, s, http.MethodGet, "/api/v1/chatbot/sessions/s-9", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		data := env.Data.(map[string]interface{})
		assert.Equal(t, "s-9", data["session"].(map[string]interface{})["session_id"])
	})

	t.Run("delete", func(t *testing.T) {
		rec, env := do(t, s, http.MethodDelete, "/api/v1/chatbot/sessions/s-3", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, env.Data)
		assert.Equal(t, "s-3", fc.deleted)
	})

	t.Run("analytics", func(t *testing.T) {
		rec, env := do(t, s, http.MethodGet, "/api/v1/chatbot/analytics/sessions/s-1", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Session analytics retrieved successfully", env.Message)
	})
}

func TestAskRoute(t *testing.T) {
	fc := &fakeChat{askResult: &chat.AskResult{
		MessageID:   "m-2",
		SessionID:   "s-1",
		ModelAnswer: chatmodel.ModelAnswer{Answer: "Three files changed.", Confidence: 0.9},
		State:       chat.StateDelivered,
	}}
	s, _ := newTestServer(fc)

	rec, env := do(t, s, http.MethodPost, "/api/v1/chatbot/sessions/s-1/ask", `{"question":"what files changed?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "Three files changed.", data["answer"])
	assert.Equal(t, false, data["is_fallback"])
	assert.Equal(t, []string{"what files changed?"}, fc.questions())

	rec, _ = do(t, s, http.MethodPost, "/api/v1/chatbot/sessions/s-1/ask", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/chatbot/sessions/s-1/ask", `{"question":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{chat.ErrInvalidQuestion, http.StatusBadRequest},
		{chat.ErrInvalidPRURL, http.StatusBadRequest},
		{chat.ErrSessionNotFound, http.StatusNotFound},
		{chat.ErrPRNotFound, http.StatusNotFound},
		{chat.ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			s, _ := newTestServer(&fakeChat{err: tt.err})
			rec, env := do(t, s, http.MethodGet, "/api/v1/chatbot/sessions/s-1", "")
			assert.Equal(t, tt.want, rec.Code)
			assert.False(t, env.Success)
			if tt.want == http.StatusInternalServerError {
				assert.Equal(t, "internal error", env.Message)
			}
		})
	}
}
