package chat

import (
	"time"

	"github.com/rs/zerolog/log"
)

// EvictIdle is the periodic idle sweep. It drops conversation states and
// rate limiters untouched for longer than ttl, keeping those of sessions
// that still have observers, and returns the number of evicted states.
func (s *Service) EvictIdle(ttl time.Duration) int {
	var keep []string
	if s.deps.Broadcast != nil {
		keep = s.deps.Broadcast.ActiveSessions()
	}
	evicted := s.deps.Tracker.EvictIdle(ttl, keep...)
	pruned := s.pruneLimiters(ttl, keep)
	if evicted > 0 || pruned > 0 {
		log.Debug().
			Int("states", evicted).
			Int("limiters", pruned).
			Int("observed", len(keep)).
			Msg("Swept idle sessions")
	}
	return evicted
}

func (s *Service) pruneLimiters(ttl time.Duration, keep []string) int {
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	cutoff := s.opts.Now().Add(-ttl)

	s.limitMu.Lock()
	defer s.limitMu.Unlock()
	pruned := 0
	for id, l := range s.limiters {
		if _, ok := kept[id]; ok {
			continue
		}
		if l.lastUsed.Before(cutoff) {
			delete(s.limiters, id)
			pruned++
		}
	}
	return pruned
}
