/*
Package jobqueue configuration - tunable parameters for the River job queue.

# Jobs

  - chat_session_cleanup: drops the conversation state and broadcast room of
    a deleted chat session. Enqueued by chat.Service.DeleteSession.
  - conversation_idle_sweep: periodic job evicting conversation states that
    have been idle longer than IdleTTL.

## Tuning:
  - MaxWorkers bounds concurrent jobs and the pgx pool usage.
  - MaxAttempts applies to every job; cleanup is idempotent so retries are safe.
  - SweepInterval and IdleTTL trade memory for how long a paused conversation
    keeps its context.

## Database Requirements:
  - PostgreSQL with River schema migrations applied
*/
package jobqueue

import (
	"time"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the job queue
type QueueConfig struct {
	// Worker Configuration
	MaxWorkers int // Number of concurrent workers processing jobs (default: 5)

	// Retry Configuration
	MaxAttempts int           // Maximum attempts per job (default: 5)
	JobTimeout  time.Duration // Maximum time a single job can run (default: 30 seconds)

	// Conversation state sweep
	IdleTTL       time.Duration // States idle longer than this are evicted (default: 2 hours)
	SweepInterval time.Duration // How often the sweep runs (default: 10 minutes)
}

// DefaultQueueConfig returns the default configuration
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers:    5,
		MaxAttempts:   5,
		JobTimeout:    30 * time.Second,
		IdleTTL:       2 * time.Hour,
		SweepInterval: 10 * time.Minute,
	}
}

// withDefaults fills zero fields from DefaultQueueConfig.
func (c *QueueConfig) withDefaults() *QueueConfig {
	d := DefaultQueueConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.MaxWorkers <= 0 {
		out.MaxWorkers = d.MaxWorkers
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = d.MaxAttempts
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = d.JobTimeout
	}
	if out.IdleTTL <= 0 {
		out.IdleTTL = d.IdleTTL
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = d.SweepInterval
	}
	return &out
}

// RiverQueueConfig converts our config to River's queue configuration format
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {
			MaxWorkers: c.MaxWorkers,
		},
	}
}
