package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veranemoloko/audio-downloader/internal/metrics"
	"github.com/veranemoloko/audio-downloader/internal/storage"
)

const sweepParallelism = 4

// SweepStats summarizes one sweep.
type SweepStats struct {
	Deleted int
	Kept    int
	Failed  int
}

// RetentionSweeper periodically removes output files older than MaxAge.
type RetentionSweeper struct {
	files    *storage.FileStorage
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewRetentionSweeper creates a RetentionSweeper over files.
func NewRetentionSweeper(files *storage.FileStorage, maxAge, interval time.Duration, logger *slog.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		files:    files,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (w *RetentionSweeper) Run(ctx context.Context) error {
	w.logger.Info("retention sweeper started",
		"dir", w.files.Dir(),
		"max_age", w.maxAge,
		"interval", w.interval,
	)

	w.Sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retention sweeper stopped")
			return nil
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep deletes every file whose modification time is older than the
// retention age. Failures are logged and counted; the sweep continues.
func (w *RetentionSweeper) Sweep(ctx context.Context) SweepStats {
	files, err := w.files.List()
	if err != nil {
		metrics.SweepErrors.Inc()
		w.logger.Error("failed to list output directory", "dir", w.files.Dir(), "error", err)
		return SweepStats{Failed: 1}
	}

	cutoff := w.now().Add(-w.maxAge)
	var deleted, kept, failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepParallelism)

	for _, f := range files {
		if !f.ModTime.Before(cutoff) {
			kept.Add(1)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		f := f // per-iteration copy; go directive predates Go 1.22 loopvar semantics
		g.Go(func() error {
			if err := w.files.Remove(f.Path); err != nil {
				failed.Add(1)
				metrics.SweepErrors.Inc()
				w.logger.Error("failed to delete expired file", "file_path", f.Path, "error", err)
				return nil
			}
			deleted.Add(1)
			metrics.SweptFiles.Inc()
			w.logger.Info("expired file deleted",
				"file_path", f.Path,
				"age", w.now().Sub(f.ModTime).Round(time.Second),
			)
			return nil
		})
	}
	_ = g.Wait()

	stats := SweepStats{Deleted: int(deleted.Load()), Kept: int(kept.Load()), Failed: int(failed.Load())}
	w.logger.Debug("sweep finished", "deleted", stats.Deleted, "kept", stats.Kept, "failed", stats.Failed)
	return stats
}
