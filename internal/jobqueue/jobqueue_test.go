package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEvictor struct {
	mu   sync.Mutex
	ttls []time.Duration
}

func (r *recordingEvictor) EvictIdle(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttls = append(r.ttls, ttl)
	return 1
}

func (r *recordingEvictor) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ttls)
}

func TestSessionCleanupWorker(t *testing.T) {
	var cleaned []string
	w := &SessionCleanupWorker{cleaner: SessionCleanerFunc(func(id string) { cleaned = append(cleaned, id) })}

	err := w.Work(context.Background(), &river.Job[SessionCleanupArgs]{Args: SessionCleanupArgs{SessionID: "s1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, cleaned)
	assert.Equal(t, "chat_session_cleanup", SessionCleanupArgs{}.Kind())
}

func TestIdleSweepWorker(t *testing.T) {
	ev := &recordingEvictor{}
	w := &IdleSweepWorker{evictor: ev, ttl: time.Hour}

	require.NoError(t, w.Work(context.Background(), &river.Job[IdleSweepArgs]{}))
	assert.Equal(t, []time.Duration{time.Hour}, ev.ttls)
}

func TestRegisterWorkers(t *testing.T) {
	cfg := DefaultQueueConfig()

	_, periodic := registerWorkers(Deps{}, cfg)
	assert.Empty(t, periodic)

	_, periodic = registerWorkers(Deps{
		Cleaner: SessionCleanerFunc(func(string) {}),
		Evictor: &recordingEvictor{},
	}, cfg)
	assert.Len(t, periodic, 1)
}

func TestQueueConfigDefaults(t *testing.T) {
	var nilCfg *QueueConfig
	assert.Equal(t, DefaultQueueConfig(), nilCfg.withDefaults())

	cfg := (&QueueConfig{MaxWorkers: 2, IdleTTL: time.Minute}).withDefaults()
	assert.Equal(t, 2, cfg.MaxWorkers)
	assert.Equal(t, time.Minute, cfg.IdleTTL)
	assert.Equal(t, DefaultQueueConfig().SweepInterval, cfg.SweepInterval)
	assert.Equal(t, 2, cfg.RiverQueueConfig()[river.QueueDefault].MaxWorkers)
}

func TestRunLocalSweep(t *testing.T) {
	ev := &recordingEvictor{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunLocalSweep(ctx, ev, &QueueConfig{SweepInterval: 5 * time.Millisecond, IdleTTL: time.Minute})
		close(done)
	}()

	assert.Eventually(t, func() bool { return ev.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
