package quarantine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"labor/internal/config"
	"labor/internal/logger"
	"labor/pkg/logging"
	"labor/pkg/metrics"
)

// Replayer reprocesses a leased entry. It owns the lease for the duration of the call
// and must either resolve the entry, record a failure or release the lease.
type Replayer interface {
	Replay(ctx context.Context, entry *Entry) error
}

type Worker struct {
	service  *Service
	replayer Replayer
	lock     TickLock
	cfg      config.WorkerConfig
	logger   logger.Logger
}

// NewWorker returns a worker. lock may be nil when a single worker runs.
func NewWorker(service *Service, replayer Replayer, lock TickLock, cfg config.WorkerConfig, log logger.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Worker{service: service, replayer: replayer, lock: lock, cfg: cfg, logger: log}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infow("Quarantine retry worker started",
		"poll_interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"concurrency", w.cfg.Concurrency,
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.logger.Errorw("Quarantine retry tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Quarantine retry worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick leases one batch of due entries and replays them. It returns the number leased.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	if w.lock != nil {
		ok, err := w.lock.Acquire(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := w.lock.Release(context.WithoutCancel(ctx)); err != nil {
				w.logger.Warnw("Failed to release worker lock", "error", err)
			}
		}()
	}

	entries, err := w.service.LeaseDue(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	metrics.ObserveLeasedEntries(len(entries))
	if len(entries) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, entry := range entries {
		g.Go(func() error {
			entryCtx := logging.WithQuarantineID(gctx, entry.ID)
			entryCtx = logging.WithRawMessageID(entryCtx, entry.RawMessageID)
			if err := w.replayer.Replay(entryCtx, entry); err != nil {
				w.logger.ErrorwCtx(entryCtx, "Quarantine replay failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return len(entries), nil
}
