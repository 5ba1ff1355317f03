package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/broadcast"
)

// Client events accepted by the websocket gateway.
const (
	clientJoinSession     broadcast.Event = "join_session"
	clientLeaveSession    broadcast.Event = "leave_session"
	clientSendMessage     broadcast.Event = "message:send"
	clientTypingStart     broadcast.Event = "typing:start"
	clientTypingStop      broadcast.Event = "typing:stop"
	clientGetSessionUsers broadcast.Event = "get_session_users"
)

// newUpgrader accepts the configured CORS origins, or any origin when none
// are configured.
func newUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

type sessionRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type sendMessageRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Message   string `json:"message" validate:"required"`
}

// handleWebSocket upgrades an authenticated request and serves the
// client's events until it disconnects.
func (s *Server) handleWebSocket(c echo.Context) error {
	uid := userID(c)
	if uid == 0 {
		return fail(c, http.StatusUnauthorized, "Not authenticated")
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade the websocket")
		return nil
	}
	conn := broadcast.NewWSConnection(ws, uid)
	defer conn.Close()
	defer s.hub.Disconnect(conn.ID())
	log.Info().Str("conn_id", conn.ID()).Int64("user_id", uid).Msg("Websocket client connected")

	ctx := c.Request().Context()
	for {
		env, err := conn.Receive()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("Websocket read failed")
			}
			log.Info().Str("conn_id", conn.ID()).Msg("Websocket client disconnected")
			return nil
		}
		s.dispatch(ctx, conn, env)
	}
}

func (s *Server) dispatch(ctx context.Context, conn *broadcast.WSConnection, env broadcast.Envelope) {
	switch env.Event {
	case clientJoinSession:
		var req sessionRequest
		if !s.decode(conn, env, &req) {
			return
		}
		if err := s.hub.Join(ctx, req.SessionID, conn); err != nil {
			var jerr *broadcast.JoinError
			if errors.As(err, &jerr) {
				s.sendError(conn, jerr.Payload())
				return
			}
			s.sendError(conn, broadcast.ErrorPayload{Code: broadcast.CodeJoinFailed, Message: "Failed to join session"})
		}

	case clientLeaveSession:
		var req sessionRequest
		if !s.decode(conn, env, &req) {
			return
		}
		s.hub.Leave(req.SessionID, conn.ID())
		_ = conn.Send(broadcast.EventSessionLeft, broadcast.SessionPayload{SessionID: req.SessionID})

	case clientSendMessage:
		var req sendMessageRequest
		if !s.decode(conn, env, &req) || !s.requireMember(conn, req.SessionID) {
			return
		}
		s.sendMessage(ctx, conn, req)

	case clientTypingStart, clientTypingStop:
		var req sessionRequest
		if !s.decode(conn, env, &req) || !s.requireMember(conn, req.SessionID) {
			return
		}
		s.hub.Broadcast(req.SessionID, broadcast.EventTyping, broadcast.TypingPayload{
			SessionID: req.SessionID,
			UserID:    conn.UserID(),
			IsTyping:  env.Event == clientTypingStart,
		}, conn.ID())

	case clientGetSessionUsers:
		var req sessionRequest
		if !s.decode(conn, env, &req) || !s.requireMember(conn, req.SessionID) {
			return
		}
		_ = conn.Send(broadcast.EventSessionUsers, broadcast.SessionUsersPayload{
			SessionID: req.SessionID,
			UserCount: s.hub.SessionUserCount(req.SessionID),
			Users:     s.hub.SessionUsers(req.SessionID),
		})

	default:
		s.sendError(conn, broadcast.ErrorPayload{Code: broadcast.CodeBadRequest, Message: "Unknown event " + string(env.Event)})
	}
}

// sendMessage answers a question sent over the socket. The answer reaches
// the room through the service's message:new broadcast.
func (s *Server) sendMessage(ctx context.Context, conn *broadcast.WSConnection, req sendMessageRequest) {
	s.hub.Broadcast(req.SessionID, broadcast.EventTyping, broadcast.TypingPayload{
		SessionID: req.SessionID,
		UserID:    conn.UserID(),
		IsTyping:  false,
	})

	res, err := s.chat.AskQuestion(ctx, conn.UserID(), req.SessionID, req.Message)
	if err != nil {
		log.Error().Err(err).Str("session_id", req.SessionID).Msg("Failed to process message")
		s.sendError(conn, broadcast.ErrorPayload{Code: broadcast.CodeMessageFailed, Message: "Failed to process message"})
		return
	}
	if res == nil || strings.TrimSpace(res.Answer) == "" {
		log.Error().Str("session_id", req.SessionID).Msg("Chat service returned an empty answer")
		s.sendError(conn, broadcast.ErrorPayload{Code: broadcast.CodeInvalidResponse, Message: "Received invalid response from chat service"})
	}
}

// decode unmarshals and validates the event data, reporting BAD_REQUEST
// to the client on failure.
func (s *Server) decode(conn *broadcast.WSConnection, env broadcast.Envelope, dst interface{}) bool {
	if len(env.Data) == 0 {
		s.sendError(conn, broadcast.ErrorPayload{Code: broadcast.CodeBadRequest, Message: "Missing event data"})
		return false
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		s.sendError(conn, broadcast.ErrorPayload{Code: broadcast.CodeBadRequest, Message: "Malformed event data"})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		s.sendError(conn, broadcast.ErrorPayload{Code: broadcast.CodeBadRequest, Message: validationMessage(err)})
		return false
	}
	return true
}

// requireMember reports whether conn has joined the session, answering
// with the join refusal otherwise.
func (s *Server) requireMember(conn *broadcast.WSConnection, sessionID string) bool {
	if s.hub.IsMember(sessionID, conn.ID()) {
		return true
	}
	log.Warn().Str("session_id", sessionID).Int64("user_id", conn.UserID()).Msg("Event for a session the connection has not joined")
	refused := broadcast.JoinError{Code: broadcast.CodeUnauthorized, Err: broadcast.ErrUnauthorized}
	s.sendError(conn, refused.Payload())
	return false
}

func (s *Server) sendError(conn *broadcast.WSConnection, payload broadcast.ErrorPayload) {
	if err := conn.Send(broadcast.EventError, payload); err != nil {
		log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("Failed to send error event")
	}
}
