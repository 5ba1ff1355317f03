package jobqueue

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog/log"
)

// SessionCleaner drops the live state of a deleted session.
type SessionCleaner interface {
	CleanupSession(sessionID string)
}

// SessionCleanerFunc adapts a function to SessionCleaner.
type SessionCleanerFunc func(sessionID string)

func (f SessionCleanerFunc) CleanupSession(sessionID string) { f(sessionID) }

// IdleEvictor drops session state idle for longer than ttl.
type IdleEvictor interface {
	EvictIdle(ttl time.Duration) int
}

// SessionCleanupArgs represents the arguments for a session cleanup job
type SessionCleanupArgs struct {
	SessionID string `json:"session_id"`
}

// Kind returns the job kind for River
func (SessionCleanupArgs) Kind() string { return "chat_session_cleanup" }

// SessionCleanupWorker handles session cleanup jobs
type SessionCleanupWorker struct {
	river.WorkerDefaults[SessionCleanupArgs]
	cleaner SessionCleaner
}

func (w *SessionCleanupWorker) Work(ctx context.Context, job *river.Job[SessionCleanupArgs]) error {
	w.cleaner.CleanupSession(job.Args.SessionID)
	log.Info().Str("session_id", job.Args.SessionID).Msg("Cleaned up chat session")
	return nil
}

// IdleSweepArgs represents the periodic conversation state sweep
type IdleSweepArgs struct{}

func (IdleSweepArgs) Kind() string { return "conversation_idle_sweep" }

// IdleSweepWorker evicts idle conversation states
type IdleSweepWorker struct {
	river.WorkerDefaults[IdleSweepArgs]
	evictor IdleEvictor
	ttl     time.Duration
}

func (w *IdleSweepWorker) Work(ctx context.Context, job *river.Job[IdleSweepArgs]) error {
	n := w.evictor.EvictIdle(w.ttl)
	log.Debug().Int("evicted", n).Dur("ttl", w.ttl).Msg("Swept idle conversation states")
	return nil
}
