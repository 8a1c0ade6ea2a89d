package quarantine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labor/internal/config"
	"labor/internal/logger"
	"labor/internal/message"
)

type recordingReplayer struct {
	mu      sync.Mutex
	svc     *Service
	entries []string
}

func (r *recordingReplayer) Replay(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	r.entries = append(r.entries, entry.ID)
	r.mu.Unlock()
	return r.svc.Resolve(ctx, entry)
}

type fakeLock struct {
	held     bool
	acquired int
}

func (l *fakeLock) Acquire(context.Context) (bool, error) {
	if l.held {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *fakeLock) Release(context.Context) error { return nil }

func TestWorker_Tick_ReplaysDueEntries(t *testing.T) {
	repo := newMemoryRepository()
	svc, c := newTestService(repo, 5)
	ctx := context.Background()

	for _, id := range []string{"raw-1", "raw-2", "raw-3"} {
		repo.rawStatus[id] = message.StatusReceived
		_, err := svc.Quarantine(ctx, &message.Raw{ID: id}, decodeFailure(t))
		require.NoError(t, err)
	}
	c.Advance(time.Minute)

	replayer := &recordingReplayer{svc: svc}
	lock := &fakeLock{}
	w := NewWorker(svc, replayer, lock, config.WorkerConfig{BatchSize: 10, Concurrency: 2}, logger.NopLogger())

	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, replayer.entries, 3)
	assert.Equal(t, 1, lock.acquired)

	n, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "resolved entries are not leased again")
}

func TestWorker_Tick_SkipsWhenLockHeld(t *testing.T) {
	repo := newMemoryRepository()
	svc, c := newTestService(repo, 5)
	ctx := context.Background()

	repo.rawStatus["raw-1"] = message.StatusReceived
	_, err := svc.Quarantine(ctx, &message.Raw{ID: "raw-1"}, decodeFailure(t))
	require.NoError(t, err)
	c.Advance(time.Minute)

	replayer := &recordingReplayer{svc: svc}
	w := NewWorker(svc, replayer, &fakeLock{held: true}, config.WorkerConfig{}, logger.NopLogger())

	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, replayer.entries)
}

func TestWorker_Tick_NotYetDue(t *testing.T) {
	repo := newMemoryRepository()
	svc, _ := newTestService(repo, 5)
	ctx := context.Background()

	repo.rawStatus["raw-1"] = message.StatusReceived
	_, err := svc.Quarantine(ctx, &message.Raw{ID: "raw-1"}, decodeFailure(t))
	require.NoError(t, err)

	w := NewWorker(svc, &recordingReplayer{svc: svc}, nil, config.WorkerConfig{}, logger.NopLogger())
	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
