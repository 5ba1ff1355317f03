/*
Package jobqueue provides a River-based job queue for chat session
housekeeping: cleanup of deleted sessions and the idle conversation state
sweep.

For configuration options and tuning parameters, see queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"
)

// Deps are the in-process components the workers act on.
type Deps struct {
	Cleaner SessionCleaner
	Evictor IdleEvictor
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance
func NewJobQueue(ctx context.Context, databaseURL string, deps Deps, config *QueueConfig) (*JobQueue, error) {
	config = config.withDefaults()

	// Create a pgx connection pool
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers, periodic := registerWorkers(deps, config)
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:       config.RiverQueueConfig(),
		Workers:      workers,
		PeriodicJobs: periodic,
		JobTimeout:   config.JobTimeout,
		MaxAttempts:  config.MaxAttempts,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

func registerWorkers(deps Deps, config *QueueConfig) (*river.Workers, []*river.PeriodicJob) {
	workers := river.NewWorkers()
	var periodic []*river.PeriodicJob
	if deps.Cleaner != nil {
		river.AddWorker(workers, &SessionCleanupWorker{cleaner: deps.Cleaner})
	}
	if deps.Evictor != nil {
		river.AddWorker(workers, &IdleSweepWorker{evictor: deps.Evictor, ttl: config.IdleTTL})
		periodic = append(periodic, river.NewPeriodicJob(
			river.PeriodicInterval(config.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) { return IdleSweepArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}
	return workers, periodic
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers and closes the pool
func (jq *JobQueue) Stop(ctx context.Context) error {
	defer jq.pool.Close()
	return jq.client.Stop(ctx)
}

// ScheduleSessionCleanup queues a cleanup job for a deleted session
func (jq *JobQueue) ScheduleSessionCleanup(ctx context.Context, sessionID string) error {
	_, err := jq.client.Insert(ctx, SessionCleanupArgs{SessionID: sessionID}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue session cleanup job: %w", err)
	}
	return nil
}

// RunLocalSweep evicts idle conversation states on a ticker until ctx is
// done. It stands in for the periodic job when no database is configured.
func RunLocalSweep(ctx context.Context, evictor IdleEvictor, config *QueueConfig) {
	config = config.withDefaults()
	ticker := time.NewTicker(config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := evictor.EvictIdle(config.IdleTTL); n > 0 {
				log.Debug().Int("evicted", n).Msg("Swept idle conversation states")
			}
		}
	}
}
