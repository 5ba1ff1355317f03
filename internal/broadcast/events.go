package broadcast

import (
	"errors"
	"fmt"
	"time"
)

// Event names sent to observers.
type Event string

const (
	EventSessionJoined  Event = "session_joined"
	EventSessionLeft    Event = "session_left"
	EventSessionClosed  Event = "session:closed"
	EventMessageNew     Event = "message:new"
	EventTyping         Event = "message:typing"
	EventSessionUpdated Event = "session:updated"
	EventUserJoined     Event = "user_joined"
	EventUserLeft       Event = "user_left"
	EventSessionUsers   Event = "session_users"
	EventError          Event = "error"
)

// ErrorCode is the protocol-level error reported in an error event.
type ErrorCode string

const (
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeJoinFailed      ErrorCode = "JOIN_FAILED"
	CodeInvalidResponse ErrorCode = "INVALID_RESPONSE"
	CodeMessageFailed   ErrorCode = "MESSAGE_FAILED"
	CodeBadRequest      ErrorCode = "BAD_REQUEST"
)

// Errors an AccessChecker reports.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnauthorized    = errors.New("not authorized for session")
)

type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// JoinError is returned by Hub.Join with the code to report to the client.
type JoinError struct {
	Code ErrorCode
	Err  error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

// Payload returns the error event body for the client.
func (e *JoinError) Payload() ErrorPayload {
	switch e.Code {
	case CodeUnauthorized:
		return ErrorPayload{Code: e.Code, Message: "Not authenticated"}
	case CodeSessionNotFound:
		return ErrorPayload{Code: e.Code, Message: "Session not found"}
	}
	return ErrorPayload{Code: CodeJoinFailed, Message: "Failed to join session"}
}

type SessionPayload struct {
	SessionID string `json:"session_id"`
}

type PresencePayload struct {
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
	UserCount int    `json:"user_count"`
}

type TypingPayload struct {
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
	IsTyping  bool   `json:"is_typing"`
}

type SessionUsersPayload struct {
	SessionID string  `json:"session_id"`
	UserCount int     `json:"user_count"`
	Users     []int64 `json:"users"`
}

// ChatMessage is the rendered message carried by message:new.
type ChatMessage struct {
	MessageID   string    `json:"message_id"`
	SenderType  string    `json:"sender_type"`
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

type MessageMetadata struct {
	ContextUsed       []string `json:"context_used"`
	FollowupQuestions []string `json:"followup_questions"`
	ConfidenceScore   float64  `json:"confidence_score"`
}

type MessagePayload struct {
	SessionID        string          `json:"session_id"`
	Message          ChatMessage     `json:"message"`
	ResponseMetadata MessageMetadata `json:"response_metadata"`
}

type SessionUpdatedPayload struct {
	SessionID    string    `json:"session_id"`
	LastActivity time.Time `json:"last_activity"`
}
