package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/intake-api/internal/repository"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/metrics"
)

type SessionCleanupConfig struct {
	Retention time.Duration
	Interval  time.Duration
}

// SessionCleanupWorker removes intake sessions idle for longer than the
// retention window.
type SessionCleanupWorker struct {
	store   repository.SessionStore
	config  SessionCleanupConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSessionCleanupWorker(store repository.SessionStore, config SessionCleanupConfig, log *logger.Logger, m *metrics.Metrics) *SessionCleanupWorker {
	if config.Retention <= 0 {
		config.Retention = 24 * time.Hour
	}
	if config.Interval <= 0 {
		config.Interval = 10 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SessionCleanupWorker{
		store:   store,
		config:  config,
		logger:  log,
		metrics: m,
		now:     time.Now,
	}
}

func (w *SessionCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("Starting session cleanup worker", "retention", w.config.Retention.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down session cleanup worker")
			return
		case <-ticker.C:
			if _, err := w.cleanup(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error(err, "Failed to prune intake sessions")
			}
		}
	}
}

func (w *SessionCleanupWorker) cleanup(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.config.Retention)
	n, err := w.store.Prune(ctx, cutoff)
	if n > 0 {
		if w.metrics != nil {
			w.metrics.SessionsPruned.Add(float64(n))
		}
		w.logger.Info("Pruned idle intake sessions", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, err
}
