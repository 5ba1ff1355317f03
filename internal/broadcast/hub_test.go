package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	event   Event
	payload interface{}
}

type fakeConn struct {
	id     string
	userID int64
	fail   bool

	mu     sync.Mutex
	events []sent
}

func newConn(id string, user int64) *fakeConn { return &fakeConn{id: id, userID: user} }

func (c *fakeConn) ID() string    { return c.id }
func (c *fakeConn) UserID() int64 { return c.userID }

func (c *fakeConn) Send(event Event, payload interface{}) error {
	if c.fail {
		return errors.New("broken pipe")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, sent{event, payload})
	return nil
}

func (c *fakeConn) names() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	for i, e := range c.events {
		out[i] = e.event
	}
	return out
}

// owners maps session ids to their owning user.
type owners map[string]int64

func (o owners) CheckAccess(_ context.Context, sessionID string, userID int64) error {
	owner, ok := o[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if owner != userID {
		return ErrUnauthorized
	}
	return nil
}

func TestBroadcastToEmptySessionIsNoop(t *testing.T) {
	h := NewHub(owners{})
	assert.NotPanics(t, func() {
		assert.Equal(t, 0, h.Broadcast("nobody-here", EventMessageNew, map[string]string{"x": "y"}))
	})
	assert.Empty(t, h.ActiveSessions())
}

func TestJoinBroadcastLeave(t *testing.T) {
	h := NewHub(owners{"s1": 7})
	a, b := newConn("a", 7), newConn("b", 7)

	require.NoError(t, h.Join(context.Background(), "s1", a))
	require.NoError(t, h.Join(context.Background(), "s1", b))
	assert.Equal(t, []Event{EventSessionJoined, EventUserJoined}, a.names())
	assert.Equal(t, []Event{EventSessionJoined}, b.names())
	assert.Equal(t, 2, h.SessionUserCount("s1"))
	assert.Equal(t, []int64{7}, h.SessionUsers("s1"))
	assert.Equal(t, []string{"s1"}, h.ActiveSessions())

	n := h.Broadcast("s1", EventTyping, TypingPayload{SessionID: "s1", UserID: 7, IsTyping: true}, "a")
	assert.Equal(t, 1, n)
	assert.NotContains(t, a.names(), EventTyping)
	assert.Contains(t, b.names(), EventTyping)

	h.Leave("s1", "a")
	assert.Equal(t, 1, h.SessionUserCount("s1"))
	assert.Equal(t, EventUserLeft, b.names()[len(b.names())-1])

	h.Leave("s1", "b")
	assert.Empty(t, h.ActiveSessions())
	assert.Equal(t, 0, h.SessionUserCount("s1"))
}

func TestJoinRefused(t *testing.T) {
	h := NewHub(owners{"s1": 7})
	tests := []struct {
		name    string
		session string
		conn    *fakeConn
		code    ErrorCode
	}{
		{"unknown session", "nope", newConn("a", 7), CodeSessionNotFound},
		{"other user", "s1", newConn("b", 8), CodeUnauthorized},
		{"anonymous", "s1", newConn("c", 0), CodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Join(context.Background(), tt.session, tt.conn)
			var je *JoinError
			require.ErrorAs(t, err, &je)
			assert.Equal(t, tt.code, je.Code)
			assert.Equal(t, tt.code, je.Payload().Code)
			assert.Empty(t, tt.conn.names())
		})
	}
	assert.Empty(t, h.ActiveSessions())

	failing := NewHub(AccessCheckerFunc(func(context.Context, string, int64) error {
		return errors.New("db down")
	}))
	err := failing.Join(context.Background(), "s1", newConn("d", 7))
	var je *JoinError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, CodeJoinFailed, je.Payload().Code)
}

func TestDisconnectLeavesAllRooms(t *testing.T) {
	h := NewHub(owners{"s1": 1, "s2": 1})
	c, other := newConn("c", 1), newConn("o", 1)
	require.NoError(t, h.Join(context.Background(), "s1", c))
	require.NoError(t, h.Join(context.Background(), "s2", c))
	require.NoError(t, h.Join(context.Background(), "s2", other))

	h.Disconnect("c")
	assert.Equal(t, []string{"s2"}, h.ActiveSessions())
	assert.Equal(t, 1, h.SessionUserCount("s2"))
	assert.False(t, h.IsMember("s2", "c"))
	assert.True(t, h.IsMember("s2", "o"))
	assert.False(t, h.IsMember("s3", "o"))

	h.Disconnect("unknown")
}

func TestCloseSession(t *testing.T) {
	h := NewHub(owners{"s1": 1})
	a, b := newConn("a", 1), newConn("b", 1)
	require.NoError(t, h.Join(context.Background(), "s1", a))
	require.NoError(t, h.Join(context.Background(), "s1", b))

	assert.Equal(t, 2, h.CloseSession("s1"))
	assert.Contains(t, a.names(), EventSessionClosed)
	assert.Empty(t, h.ActiveSessions())
	assert.Equal(t, 0, h.CloseSession("s1"))

	// rejoining creates a fresh room
	require.NoError(t, h.Join(context.Background(), "s1", a))
	assert.Equal(t, 1, h.SessionUserCount("s1"))
}

func TestFailedSendDoesNotStopFanOut(t *testing.T) {
	h := NewHub(nil)
	bad, good := newConn("bad", 1), newConn("good", 2)
	require.NoError(t, h.Join(context.Background(), "s1", good))
	bad.fail = true
	require.NoError(t, h.Join(context.Background(), "s1", bad))

	assert.Equal(t, 1, h.Broadcast("s1", EventMessageNew, "hi"))
}

func TestConcurrentJoinLeave(t *testing.T) {
	h := NewHub(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newConn(fmt.Sprintf("c%d", i), int64(i%5+1))
			session := fmt.Sprintf("s%d", i%3)
			_ = h.Join(context.Background(), session, c)
			h.Broadcast(session, EventMessageNew, "x")
			h.Leave(session, c.ID())
		}(i)
	}
	wg.Wait()
	assert.Empty(t, h.ActiveSessions())
}

func TestWSConnection(t *testing.T) {
	h := NewHub(nil)
	upgrader := websocket.Upgrader{}
	joined := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn := NewWSConnection(ws, 9)
		env, err := conn.Receive()
		require.NoError(t, err)
		var body SessionPayload
		require.NoError(t, json.Unmarshal(env.Data, &body))
		require.NoError(t, h.Join(context.Background(), body.SessionID, conn))
		close(joined)
		// keep the handler alive until the client goes away
		_, _ = conn.Receive()
		h.Disconnect(conn.ID())
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteJSON(map[string]interface{}{
		"event": "join_session",
		"data":  map[string]string{"session_id": "s1"},
	}))

	var first Envelope
	require.NoError(t, client.ReadJSON(&first))
	assert.Equal(t, EventSessionJoined, first.Event)
	<-joined

	h.Broadcast("s1", EventMessageNew, map[string]string{"content": "hello"})
	var second Envelope
	require.NoError(t, client.ReadJSON(&second))
	assert.Equal(t, EventMessageNew, second.Event)
	assert.JSONEq(t, `{"content":"hello"}`, string(second.Data))
}

func TestJoinRacingCloseLeavesNoStaleRegistration(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < 200; i++ {
		c := newConn(fmt.Sprintf("c%d", i), 1)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = h.Join(context.Background(), "s1", c)
		}()
		go func() {
			defer wg.Done()
			h.CloseSession("s1")
		}()
		wg.Wait()

		h.connsMu.Lock()
		registered := make(map[string][]string)
		for id, reg := range h.conns {
			for sid := range reg.sessions {
				registered[id] = append(registered[id], sid)
			}
		}
		h.connsMu.Unlock()

		for id, sessions := range registered {
			for _, sid := range sessions {
				assert.True(t, h.IsMember(sid, id), "%s registered in %s without membership", id, sid)
			}
		}
	}
}
