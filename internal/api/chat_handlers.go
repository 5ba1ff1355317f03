package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/api/auth"
	"github.com/livereview/prchat/internal/chat"
)

// APIResponse is the envelope of every chatbot REST response.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type createSessionRequest struct {
	SessionName  string `json:"session_name" validate:"max=200"`
	PRURL        string `json:"pr_url" validate:"required_without=RepositoryID,max=500"`
	RepositoryID string `json:"repository_id" validate:"required_without=PRURL,max=100"`
}

type askQuestionRequest struct {
	Question string `json:"question" validate:"required"`
}

type listSessionsQuery struct {
	RepositoryID string `query:"repository_id" validate:"max=100"`
	PRMetadataID string `query:"pr_metadata_id" validate:"max=100"`
}

func ok(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, APIResponse{Success: true, Message: message, Data: data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, APIResponse{Success: false, Message: message})
}

// chatError maps service errors to a response. Unknown errors are logged
// and reported as 500 without detail.
func chatError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, chat.ErrInvalidQuestion),
		errors.Is(err, chat.ErrInvalidSession),
		errors.Is(err, chat.ErrInvalidPRURL):
		return fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrSessionNotFound),
		errors.Is(err, chat.ErrPRNotFound),
		errors.Is(err, chat.ErrRepoNotFound):
		return fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrRateLimited):
		return fail(c, http.StatusTooManyRequests, err.Error())
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("Chat request failed")
	return fail(c, http.StatusInternalServerError, "internal error")
}

// bindAndValidate binds the request into dst and runs its validate tags.
// It returns the client-facing problem, or "" when dst is usable.
func (s *Server) bindAndValidate(c echo.Context, dst interface{}) string {
	if err := c.Bind(dst); err != nil {
		return "invalid request body"
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return ""
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func userID(c echo.Context) int64 {
	if u := auth.GetUser(c); u != nil {
		return u.ID
	}
	return 0
}

func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if msg := s.bindAndValidate(c, &req); msg != "" {
		return fail(c, http.StatusBadRequest, msg)
	}
	session, err := s.chat.CreateSession(c.Request().Context(), userID(c), chat.CreateSessionRequest{
		SessionName:  req.SessionName,
		PRURL:        req.PRURL,
		RepositoryID: req.RepositoryID,
	})
	if err != nil {
		return chatError(c, err)
	}
	return ok(c, http.StatusCreated, "Chat session created successfully", session)
}

func (s *Server) listSessions(c echo.Context) error {
	var q listSessionsQuery
	if msg := s.bindAndValidate(c, &q); msg != "" {
		return fail(c, http.StatusBadRequest, msg)
	}
	sessions, err := s.chat.ListSessions(c.Request().Context(), userID(c), chat.SessionFilter{
		RepositoryID: q.RepositoryID,
		PRMetadataID: q.PRMetadataID,
	})
	if err != nil {
		return chatError(c, err)
	}
	return ok(c, http.StatusOK, fmt.Sprintf("Retrieved %d chat sessions successfully", len(sessions)), sessions)
}

func (s *Server) getSession(c echo.Context) error {
	res, err := s.chat.GetSession(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return chatError(c, err)
	}
	return ok(c, http.StatusOK, "Session and messages retrieved successfully", res)
}

func (s *Server) askQuestion(c echo.Context) error {
	var req askQuestionRequest
	if msg := s.bindAndValidate(c, &req); msg != "" {
		return fail(c, http.StatusBadRequest, msg)
	}
	res, err := s.chat.AskQuestion(c.Request().Context(), userID(c), c.Param("id"), req.Question)
	if err != nil {
		return chatError(c, err)
	}
	return ok(c, http.StatusOK, "Question processed successfully", res)
}

func (s *Server) deleteSession(c echo.Context) error {
	if err := s.chat.DeleteSession(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return chatError(c, err)
	}
	return ok(c, http.StatusOK, "Chat session deleted successfully", nil)
}

func (s *Server) sessionAnalytics(c echo.Context) error {
	analytics, err := s.chat.SessionAnalytics(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return chatError(c, err)
	}
	return ok(c, http.StatusOK, "Session analytics retrieved successfully", analytics)
}
