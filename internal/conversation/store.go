package conversation

import (
	"sync"
	"time"
)

// Store holds conversation states keyed by session id. Implementations must
// serialise mutations per session without a process-wide lock on the states.
type Store interface {
	// Mutate runs fn on the session's state under that session's lock,
	// creating the state first if needed, and returns a copy of the result.
	Mutate(sessionID string, fn func(*State)) State
	Get(sessionID string) (State, bool)
	Delete(sessionID string)
	// DeleteIf removes the state when pred holds, checked under the session lock.
	DeleteIf(sessionID string, pred func(*State) bool) bool
	SessionIDs() []string
}

type entry struct {
	mu      sync.Mutex
	state   *State
	removed bool
}

// InMemoryStore keeps one lock per session. The map lock is only held while
// looking up or removing entries, never while a state is being mutated.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *InMemoryStore) lookup(sessionID string, create bool) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sessionID]
	if !ok && create {
		e = &entry{}
		s.entries[sessionID] = e
	}
	return e
}

func (s *InMemoryStore) Mutate(sessionID string, fn func(*State)) State {
	for {
		e := s.lookup(sessionID, true)
		e.mu.Lock()
		if e.removed {
			// lost a race with Delete; retry on a fresh entry
			e.mu.Unlock()
			continue
		}
		if e.state == nil {
			e.state = newState(sessionID, s.now())
		}
		fn(e.state)
		out := e.state.Clone()
		e.mu.Unlock()
		return out
	}
}

func (s *InMemoryStore) Get(sessionID string) (State, bool) {
	e := s.lookup(sessionID, false)
	if e == nil {
		return State{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.state == nil {
		return State{}, false
	}
	return e.state.Clone(), true
}

func (s *InMemoryStore) Delete(sessionID string) {
	s.DeleteIf(sessionID, func(*State) bool { return true })
}

func (s *InMemoryStore) DeleteIf(sessionID string, pred func(*State) bool) bool {
	e := s.lookup(sessionID, false)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	if e.state != nil && !pred(e.state) {
		return false
	}
	e.removed = true
	s.mu.Lock()
	if s.entries[sessionID] == e {
		delete(s.entries, sessionID)
	}
	s.mu.Unlock()
	return true
}

func (s *InMemoryStore) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	return out
}
