// Package broadcast routes session events to the connections observing a
// session. It holds no business data.
package broadcast

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/livereview/prchat/internal/metrics"
)

// Connection is one observer.
type Connection interface {
	ID() string
	UserID() int64
	Send(event Event, payload interface{}) error
}

// AccessChecker confirms a user may observe a session. It returns
// ErrSessionNotFound or ErrUnauthorized when access is refused.
type AccessChecker interface {
	CheckAccess(ctx context.Context, sessionID string, userID int64) error
}

type AccessCheckerFunc func(ctx context.Context, sessionID string, userID int64) error

func (f AccessCheckerFunc) CheckAccess(ctx context.Context, sessionID string, userID int64) error {
	return f(ctx, sessionID, userID)
}

type room struct {
	mu      sync.RWMutex
	members map[string]Connection
	// closed is set once the room left the hub; joiners must fetch a new one.
	closed bool
}

type registration struct {
	conn     Connection
	sessions map[string]struct{}
}

// Hub tracks rooms (session id to connections) and the connection registry.
// Each room has its own lock; the registry has another.
type Hub struct {
	access AccessChecker

	roomsMu sync.Mutex
	rooms   map[string]*room

	connsMu sync.Mutex
	conns   map[string]*registration
}

func NewHub(access AccessChecker) *Hub {
	return &Hub{
		access: access,
		rooms:  make(map[string]*room),
		conns:  make(map[string]*registration),
	}
}

// Join checks access and adds conn to the session's room. The joiner gets
// session_joined and the other members get user_joined. Failures are
// *JoinError values.
func (h *Hub) Join(ctx context.Context, sessionID string, conn Connection) error {
	if conn.UserID() == 0 {
		return &JoinError{Code: CodeUnauthorized, Err: ErrUnauthorized}
	}
	if h.access != nil {
		if err := h.access.CheckAccess(ctx, sessionID, conn.UserID()); err != nil {
			code := CodeJoinFailed
			switch {
			case errors.Is(err, ErrSessionNotFound):
				code = CodeSessionNotFound
			case errors.Is(err, ErrUnauthorized):
				code = CodeUnauthorized
			}
			log.Warn().Err(err).Str("session_id", sessionID).Int64("user_id", conn.UserID()).Msg("Join refused")
			return &JoinError{Code: code, Err: err}
		}
	}

	added := false
	for {
		r := h.room(sessionID, true)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}
		if _, ok := r.members[conn.ID()]; !ok {
			r.members[conn.ID()] = conn
			added = true
		}
		// registered under the room lock so CloseSession, which takes the
		// same lock first, always sees and clears this entry
		h.register(conn, sessionID)
		r.mu.Unlock()
		break
	}

	if added {
		metrics.ActiveObservers.Inc()
	}
	log.Info().Str("session_id", sessionID).Str("conn_id", conn.ID()).Msg("Connection joined session")

	if err := conn.Send(EventSessionJoined, SessionPayload{SessionID: sessionID}); err != nil {
		log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("Failed to confirm join")
	}
	if added {
		h.Broadcast(sessionID, EventUserJoined, PresencePayload{
			SessionID: sessionID,
			UserID:    conn.UserID(),
			UserCount: h.SessionUserCount(sessionID),
		}, conn.ID())
	}
	return nil
}

// Leave removes the connection from the session's room. The room is deleted
// once empty.
func (h *Hub) Leave(sessionID, connID string) {
	h.connsMu.Lock()
	var userID int64
	if reg, ok := h.conns[connID]; ok {
		delete(reg.sessions, sessionID)
		userID = reg.conn.UserID()
	}
	h.connsMu.Unlock()

	if h.removeMember(sessionID, connID) {
		h.Broadcast(sessionID, EventUserLeft, PresencePayload{
			SessionID: sessionID,
			UserID:    userID,
			UserCount: h.SessionUserCount(sessionID),
		})
	}
}

// Disconnect leaves every room the connection joined and forgets it.
func (h *Hub) Disconnect(connID string) {
	h.connsMu.Lock()
	reg, ok := h.conns[connID]
	delete(h.conns, connID)
	h.connsMu.Unlock()
	if !ok {
		return
	}
	for sessionID := range reg.sessions {
		if h.removeMember(sessionID, connID) {
			h.Broadcast(sessionID, EventUserLeft, PresencePayload{
				SessionID: sessionID,
				UserID:    reg.conn.UserID(),
				UserCount: h.SessionUserCount(sessionID),
			})
		}
	}
	log.Debug().Str("conn_id", connID).Msg("Connection disconnected")
}

// CloseSession notifies and drops every member of the session's room.
func (h *Hub) CloseSession(sessionID string) int {
	h.roomsMu.Lock()
	r, ok := h.rooms[sessionID]
	delete(h.rooms, sessionID)
	h.roomsMu.Unlock()
	if !ok {
		return 0
	}

	r.mu.Lock()
	r.closed = true
	members := make([]Connection, 0, len(r.members))
	for _, c := range r.members {
		members = append(members, c)
	}
	r.members = map[string]Connection{}
	r.mu.Unlock()

	h.connsMu.Lock()
	for _, c := range members {
		if reg, ok := h.conns[c.ID()]; ok {
			delete(reg.sessions, sessionID)
		}
	}
	h.connsMu.Unlock()

	for _, c := range members {
		metrics.ActiveObservers.Dec()
		h.send(c, EventSessionClosed, SessionPayload{SessionID: sessionID})
	}
	log.Info().Str("session_id", sessionID).Int("observers", len(members)).Msg("Closed session room")
	return len(members)
}

// Broadcast sends the event to every member of the session except the
// excluded connection ids. An unknown session is logged and ignored. It
// returns the number of connections the event was sent to.
func (h *Hub) Broadcast(sessionID string, event Event, payload interface{}, exclude ...string) int {
	r := h.room(sessionID, false)
	if r == nil {
		log.Warn().Str("session_id", sessionID).Str("event", string(event)).Msg("No session room found")
		return 0
	}

	r.mu.RLock()
	targets := make([]Connection, 0, len(r.members))
	for id, c := range r.members {
		if !contains(exclude, id) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if h.send(c, event, payload) {
			sent++
		}
	}
	log.Debug().
		Str("session_id", sessionID).
		Str("event", string(event)).
		Int("sent", sent).
		Msg("Broadcast complete")
	return sent
}

func (h *Hub) send(c Connection, event Event, payload interface{}) bool {
	if err := c.Send(event, payload); err != nil {
		log.Warn().Err(err).Str("conn_id", c.ID()).Str("event", string(event)).Msg("Failed to send event")
		return false
	}
	metrics.BroadcastEvents.WithLabelValues(string(event)).Inc()
	return true
}

// IsMember reports whether the connection is in the session's room.
func (h *Hub) IsMember(sessionID, connID string) bool {
	r := h.room(sessionID, false)
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[connID]
	return ok
}

// SessionUserCount is the number of connections in the session's room.
func (h *Hub) SessionUserCount(sessionID string) int {
	r := h.room(sessionID, false)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// SessionUsers returns the distinct users observing the session, sorted.
func (h *Hub) SessionUsers(sessionID string) []int64 {
	users := []int64{}
	r := h.room(sessionID, false)
	if r == nil {
		return users
	}
	seen := make(map[int64]struct{})
	r.mu.RLock()
	for _, c := range r.members {
		if _, ok := seen[c.UserID()]; !ok {
			seen[c.UserID()] = struct{}{}
			users = append(users, c.UserID())
		}
	}
	r.mu.RUnlock()
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// ActiveSessions lists the sessions with at least one observer, sorted.
func (h *Hub) ActiveSessions() []string {
	h.roomsMu.Lock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.roomsMu.Unlock()
	sort.Strings(ids)
	return ids
}

func (h *Hub) register(conn Connection, sessionID string) {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	reg, ok := h.conns[conn.ID()]
	if !ok {
		reg = &registration{conn: conn, sessions: make(map[string]struct{})}
		h.conns[conn.ID()] = reg
	}
	reg.sessions[sessionID] = struct{}{}
}

func (h *Hub) room(sessionID string, create bool) *room {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	r, ok := h.rooms[sessionID]
	if !ok && create {
		r = &room{members: make(map[string]Connection)}
		h.rooms[sessionID] = r
	}
	return r
}

// removeMember reports whether the connection was a member. An emptied room
// is closed and removed from the hub.
func (h *Hub) removeMember(sessionID, connID string) bool {
	r := h.room(sessionID, false)
	if r == nil {
		return false
	}
	r.mu.Lock()
	_, ok := r.members[connID]
	delete(r.members, connID)
	empty := len(r.members) == 0 && !r.closed
	if empty {
		r.closed = true
	}
	r.mu.Unlock()

	if empty {
		h.roomsMu.Lock()
		if h.rooms[sessionID] == r {
			delete(h.rooms, sessionID)
		}
		h.roomsMu.Unlock()
		log.Debug().Str("session_id", sessionID).Msg("Deleted empty session room")
	}
	if ok {
		metrics.ActiveObservers.Dec()
	}
	return ok
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
