package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Watchdog periodically expires processing jobs that stopped reporting
// progress, e.g. after a crashed or partitioned worker. Expired jobs move to
// status=error and emit their single terminal event.
type Watchdog struct {
	manager    *Manager
	staleAfter time.Duration
	sweep      time.Duration
	logger     *slog.Logger
}

// NewWatchdog creates a watchdog. staleAfter is the progress silence that
// marks a run abandoned; sweep is how often to check.
func NewWatchdog(manager *Manager, staleAfter, sweep time.Duration, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		manager:    manager,
		staleAfter: staleAfter,
		sweep:      sweep,
		logger:     logger,
	}
}

// Run sweeps until the context is canceled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("watchdog sweep failed", "error", err)
			}
		}
	}
}

// Sweep expires all currently stale jobs once.
func (w *Watchdog) Sweep(ctx context.Context) error {
	msg := fmt.Sprintf("run abandoned: no progress within %s", w.staleAfter)
	expired, err := w.manager.store.ExpireStale(ctx, w.staleAfter, msg)
	if err != nil {
		return err
	}

	for i := range expired {
		job := &expired[i]
		w.logger.Warn("expired stale indexing run",
			"job", job.ActionID(), "base", job.BaseID, "updated_at", job.UpdatedAt)
		w.manager.publishJob(ctx, job)
		w.manager.publishTerminalAction(ctx, job)
	}
	return nil
}
