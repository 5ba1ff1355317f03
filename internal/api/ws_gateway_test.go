package api

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livereview/prchat/internal/broadcast"
	"github.com/livereview/prchat/internal/chat"
	"github.com/livereview/prchat/internal/chatmodel"
)

type frame struct {
	Event broadcast.Event `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server, userID int64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chatbot/ws?token=" + bearer(t, userID)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func emit(t *testing.T, ws *websocket.Conn, event broadcast.Event, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(frame{Event: event, Data: raw}))
}

func next(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func errorCode(t *testing.T, f frame) broadcast.ErrorCode {
	t.Helper()
	require.Equal(t, broadcast.EventError, f.Event)
	var p broadcast.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	return p.Code
}

func TestWebSocketGateway(t *testing.T) {
	fc := &fakeChat{askResult: &chat.AskResult{ModelAnswer: chatmodel.ModelAnswer{Answer: "ok"}}}
	s, hub := newTestServer(fc)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	alice := dial(t, srv, 7)
	bob := dial(t, srv, 8)

	emit(t, alice, clientJoinSession, sessionRequest{SessionID: "s-1"})
	assert.Equal(t, broadcast.EventSessionJoined, next(t, alice).Event)

	emit(t, bob, clientJoinSession, sessionRequest{SessionID: "s-1"})
	assert.Equal(t, broadcast.EventSessionJoined, next(t, bob).Event)
	joined := next(t, alice)
	assert.Equal(t, broadcast.EventUserJoined, joined.Event)
	assert.Equal(t, 2, hub.SessionUserCount("s-1"))

	t.Run("typing excludes sender", func(t *testing.T) {
		emit(t, bob, clientTypingStart, sessionRequest{SessionID: "s-1"})
		f := next(t, alice)
		require.Equal(t, broadcast.EventTyping, f.Event)
		var p broadcast.TypingPayload
		require.NoError(t, json.Unmarshal(f.Data, &p))
		assert.Equal(t, broadcast.TypingPayload{SessionID: "s-1", UserID: 8, IsTyping: true}, p)

		// bob's next frame is the users reply, not his own typing event
		emit(t, bob, clientGetSessionUsers, sessionRequest{SessionID: "s-1"})
		f = next(t, bob)
		require.Equal(t, broadcast.EventSessionUsers, f.Event)
		var users broadcast.SessionUsersPayload
		require.NoError(t, json.Unmarshal(f.Data, &users))
		assert.Equal(t, []int64{7, 8}, users.Users)
		assert.Equal(t, 2, users.UserCount)
	})

	t.Run("send message stops typing and asks", func(t *testing.T) {
		emit(t, alice, clientSendMessage, sendMessageRequest{SessionID: "s-1", Message: "what files changed?"})
		f := next(t, bob)
		assert.Equal(t, broadcast.EventTyping, f.Event)
		assert.Equal(t, broadcast.EventTyping, next(t, alice).Event)
		// frames are served in order, so the ask has finished once this replies
		emit(t, alice, clientGetSessionUsers, sessionRequest{SessionID: "s-1"})
		require.Equal(t, broadcast.EventSessionUsers, next(t, alice).Event)
		assert.Equal(t, []string{"what files changed?"}, fc.questions())
	})

	t.Run("empty answer is invalid response", func(t *testing.T) {
		fc.setAnswer(&chat.AskResult{}, nil)
		emit(t, alice, clientSendMessage, sendMessageRequest{SessionID: "s-1", Message: "hi"})
		next(t, alice) // typing stop
		assert.Equal(t, broadcast.CodeInvalidResponse, errorCode(t, next(t, alice)))
		next(t, bob) // typing stop
	})

	t.Run("service failure", func(t *testing.T) {
		fc.setAnswer(nil, errors.New("boom"))
		emit(t, alice, clientSendMessage, sendMessageRequest{SessionID: "s-1", Message: "hi"})
		next(t, alice)
		assert.Equal(t, broadcast.CodeMessageFailed, errorCode(t, next(t, alice)))
		next(t, bob)
	})

	t.Run("events from non-members are refused", func(t *testing.T) {
		carol := dial(t, srv, 9)
		asked := len(fc.questions())

		for _, ev := range []broadcast.Event{clientTypingStart, clientTypingStop, clientGetSessionUsers} {
			emit(t, carol, ev, sessionRequest{SessionID: "s-1"})
			f := next(t, carol)
			assert.Equal(t, broadcast.CodeUnauthorized, errorCode(t, f), "event %s", ev)
			var p broadcast.ErrorPayload
			require.NoError(t, json.Unmarshal(f.Data, &p))
			assert.Equal(t, "Not authenticated", p.Message)
		}
		emit(t, carol, clientSendMessage, sendMessageRequest{SessionID: "s-1", Message: "hi"})
		assert.Equal(t, broadcast.CodeUnauthorized, errorCode(t, next(t, carol)))
		assert.Len(t, fc.questions(), asked)

		// nothing from carol reached the room
		emit(t, alice, clientGetSessionUsers, sessionRequest{SessionID: "s-1"})
		f := next(t, alice)
		require.Equal(t, broadcast.EventSessionUsers, f.Event)
		var users broadcast.SessionUsersPayload
		require.NoError(t, json.Unmarshal(f.Data, &users))
		assert.Equal(t, []int64{7, 8}, users.Users)
		emit(t, bob, clientGetSessionUsers, sessionRequest{SessionID: "s-1"})
		assert.Equal(t, broadcast.EventSessionUsers, next(t, bob).Event)
	})

	t.Run("join unknown session", func(t *testing.T) {
		emit(t, alice, clientJoinSession, sessionRequest{SessionID: "nope"})
		assert.Equal(t, broadcast.CodeSessionNotFound, errorCode(t, next(t, alice)))
	})

	t.Run("bad requests", func(t *testing.T) {
		emit(t, alice, clientJoinSession, map[string]string{})
		assert.Equal(t, broadcast.CodeBadRequest, errorCode(t, next(t, alice)))
		emit(t, alice, "dance", sessionRequest{SessionID: "s-1"})
		assert.Equal(t, broadcast.CodeBadRequest, errorCode(t, next(t, alice)))
	})

	t.Run("leave notifies the room", func(t *testing.T) {
		emit(t, bob, clientLeaveSession, sessionRequest{SessionID: "s-1"})
		assert.Equal(t, broadcast.EventSessionLeft, next(t, bob).Event)
		f := next(t, alice)
		require.Equal(t, broadcast.EventUserLeft, f.Event)
		var p broadcast.PresencePayload
		require.NoError(t, json.Unmarshal(f.Data, &p))
		assert.Equal(t, 1, p.UserCount)
	})

	t.Run("disconnect leaves rooms", func(t *testing.T) {
		require.NoError(t, alice.Close())
		assert.Eventually(t, func() bool { return hub.SessionUserCount("s-1") == 0 }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestWebSocketRequiresToken(t *testing.T) {
	s, _ := newTestServer(&fakeChat{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/chatbot/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestUpgraderOrigins(t *testing.T) {
	u := newUpgrader([]string{"https://app.example.com/"})
	req := httptest.NewRequest("GET", "/", nil)
	assert.True(t, u.CheckOrigin(req))
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, u.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, u.CheckOrigin(req))

	req.Header.Set("Origin", "https://anything")
	assert.True(t, newUpgrader(nil).CheckOrigin(req))
}
