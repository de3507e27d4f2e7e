package ingest

import (
	"context"
	"log/slog"
	"time"

	"deliveryTracking/repository"
)

// StartRetentionSweeper periodically purges pings older than the retention
// window. SQLite has no TTL index, so the sweep stands in for the storage
// collaborator's automatic expiry. Returns when ctx is done.
func StartRetentionSweeper(ctx context.Context, pings repository.PingRepositoryI, retention, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("retention sweeper exiting")
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				n, err := pings.PurgeOlderThan(ctx, cutoff)
				if err != nil {
					logger.Error("ping retention sweep failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("purged expired pings", "count", n, "cutoff", cutoff)
				}
			}
		}
	}()
}
