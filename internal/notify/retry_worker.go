package notify

import (
	"context"
	"time"

	"deliveryTracking/models"
)

const retryBatchSize = 100

// StartRetryWorker polls the retry queue and re-attempts due notifications
// until ctx is cancelled. Due retries run concurrently; per-delivery
// ordering applies to first attempts only.
func (d *Dispatcher) StartRetryWorker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.drainDueRetries(ctx)
			}
		}
	}()
}

func (d *Dispatcher) drainDueRetries(ctx context.Context) {
	ids, err := d.retryQueue.Due(ctx, d.nowFn(), retryBatchSize)
	if err != nil {
		d.logger.Error("poll retry queue failed", "error", err)
		return
	}
	for _, id := range ids {
		if err := d.retryQueue.Remove(ctx, id); err != nil {
			d.logger.Warn("retry queue remove failed", "notification_id", id, "error", err)
			continue
		}
		n, err := d.notifications.GetByID(ctx, id)
		if err != nil {
			d.logger.Error("load notification failed", "notification_id", id, "error", err)
			continue
		}
		if n == nil || n.Status != models.NotificationRetry {
			// Resolved elsewhere since it was scheduled.
			continue
		}
		d.wg.Add(1)
		go func(n models.Notification) {
			defer d.wg.Done()
			d.attemptSend(ctx, n)
		}(*n)
	}
}
