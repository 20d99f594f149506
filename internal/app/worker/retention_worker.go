package worker

import (
	"context"
	"log/slog"
	"time"
)

// JobEvicter drops finished jobs older than maxAge and returns their ids.
type JobEvicter interface {
	Evict(maxAge time.Duration) []string
}

// RetentionWorker periodically evicts finished jobs from memory. Jobs still
// grading are never touched; archived results stay reachable through the
// archive.
type RetentionWorker struct {
	registry JobEvicter
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
}

func NewRetentionWorker(registry JobEvicter, maxAge, interval time.Duration, logger *slog.Logger) *RetentionWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RetentionWorker{registry: registry, maxAge: maxAge, interval: interval, logger: logger}
}

// Start sweeps until ctx is done. It returns at once when retention is off.
func (w *RetentionWorker) Start(ctx context.Context) {
	if w.maxAge <= 0 {
		w.logger.Info("job retention disabled, finished jobs stay in memory")
		return
	}
	w.logger.Info("retention worker started", "max_age", w.maxAge, "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retention worker stopping")
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

func (w *RetentionWorker) Sweep() []string {
	evicted := w.registry.Evict(w.maxAge)
	for _, id := range evicted {
		w.logger.Debug("evicted grading job", "job_id", id)
	}
	return evicted
}
