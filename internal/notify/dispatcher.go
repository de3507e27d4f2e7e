package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"deliveryTracking/internal/config"
	"deliveryTracking/internal/metrics"
	"deliveryTracking/internal/tracking"
	"deliveryTracking/models"
	"deliveryTracking/repository"
)

// laneState serializes first-attempt sends for one delivery. Notifications
// are appended in trigger order and drained by a single goroutine, so a
// user never sees "delivered" before "picked up" on the same delivery.
// Retries leave the lane and run independently.
type laneState struct {
	queue   []models.Notification
	running bool
}

// Dispatcher fans committed transitions out to notification channels and
// owns the retry bookkeeping. It implements tracking.TransitionSink.
type Dispatcher struct {
	notifications repository.NotificationRepositoryI
	settings      repository.SettingsRepositoryI
	senders       map[models.NotificationChannel]Sender
	retryQueue    RetryQueue
	cfg           config.NotifyConfig
	logger        *slog.Logger
	nowFn         func() time.Time

	mu    sync.Mutex
	lanes map[string]*laneState
	wg    sync.WaitGroup
}

// NewDispatcher wires the dispatcher. senders that share a channel overwrite
// each other; the last one wins.
func NewDispatcher(
	notifications repository.NotificationRepositoryI,
	settings repository.SettingsRepositoryI,
	senders []Sender,
	retryQueue RetryQueue,
	cfg config.NotifyConfig,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	byChannel := make(map[models.NotificationChannel]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &Dispatcher{
		notifications: notifications,
		settings:      settings,
		senders:       byChannel,
		retryQueue:    retryQueue,
		cfg:           cfg,
		logger:        logger,
		nowFn:         func() time.Time { return time.Now().UTC() },
		lanes:         make(map[string]*laneState),
	}
}

// SetNow overrides the dispatcher's clock. Test hook.
func (d *Dispatcher) SetNow(nowFn func() time.Time) { d.nowFn = nowFn }

// TransitionCommitted records one notification per channel for the committed
// transition and hands them to the delivery's send lane. Record creation is
// synchronous so the per-delivery emit order matches the trigger order;
// sending happens in the background.
func (d *Dispatcher) TransitionCommitted(ctx context.Context, trig tracking.Trigger) {
	event := string(trig.NewStatus)

	s, err := d.settings.GetByUserID(ctx, trig.UserID)
	if err != nil {
		d.logger.Warn("load settings failed, notifying on all events",
			"user_id", trig.UserID, "error", err)
		s = nil
	}
	if s != nil && !s.WantsEvent(event) {
		d.logger.Debug("event muted by settings",
			"delivery_id", trig.DeliveryID, "event", event)
		return
	}

	msg := composeMessage(trig)
	for _, ch := range models.AllChannels {
		if _, ok := d.senders[ch]; !ok {
			continue
		}
		n, err := d.notifications.Create(ctx, &models.Notification{
			DeliveryID: trig.DeliveryID,
			UserID:     trig.UserID,
			Channel:    ch,
			Event:      event,
			Message:    &msg,
			Status:     models.NotificationQueued,
			CreatedAt:  d.nowFn(),
		})
		if err != nil {
			d.logger.Error("create notification failed",
				"delivery_id", trig.DeliveryID, "channel", ch, "error", err)
			continue
		}
		metrics.NotificationsEnqueuedTotal.Inc()
		d.enqueue(*n)
	}
}

func (d *Dispatcher) enqueue(n models.Notification) {
	d.mu.Lock()
	lane, ok := d.lanes[n.DeliveryID]
	if !ok {
		lane = &laneState{}
		d.lanes[n.DeliveryID] = lane
	}
	lane.queue = append(lane.queue, n)
	if !lane.running {
		lane.running = true
		d.wg.Add(1)
		go d.runLane(n.DeliveryID)
	}
	d.mu.Unlock()
}

// runLane drains one delivery's queue in order, then exits. A fresh
// goroutine is started when the next notification arrives.
func (d *Dispatcher) runLane(deliveryID string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		lane := d.lanes[deliveryID]
		if len(lane.queue) == 0 {
			lane.running = false
			d.mu.Unlock()
			return
		}
		n := lane.queue[0]
		lane.queue = lane.queue[1:]
		d.mu.Unlock()

		d.attemptSend(context.Background(), n)
	}
}

// attemptSend performs one delivery attempt and applies the retry policy.
// Also called by the retry worker for due retries.
func (d *Dispatcher) attemptSend(ctx context.Context, n models.Notification) {
	sender, ok := d.senders[n.Channel]
	if !ok {
		d.failNotification(ctx, n.ID, fmt.Sprintf("no sender for channel %s", n.Channel))
		return
	}

	msg := ""
	if n.Message != nil {
		msg = *n.Message
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	start := time.Now()
	err := sender.Send(sendCtx, n.UserID, msg)
	metrics.NotificationSendDuration.Observe(time.Since(start).Seconds())
	cancel()

	if err == nil {
		if err := d.notifications.MarkSent(ctx, n.ID, d.nowFn()); err != nil {
			d.logger.Error("mark sent failed", "notification_id", n.ID, "error", err)
			return
		}
		if err := d.retryQueue.Remove(ctx, n.ID); err != nil {
			d.logger.Warn("retry queue remove failed", "notification_id", n.ID, "error", err)
		}
		metrics.NotificationsSentTotal.Inc()
		return
	}

	d.logger.Warn("send attempt failed",
		"notification_id", n.ID, "channel", n.Channel, "error", err)

	count, mErr := d.notifications.MarkRetry(ctx, n.ID, err.Error())
	if mErr != nil {
		d.logger.Error("mark retry failed", "notification_id", n.ID, "error", mErr)
		return
	}
	metrics.NotificationRetriesTotal.Inc()

	if count >= d.cfg.MaxAttempts {
		d.failNotification(ctx, n.ID, err.Error())
		return
	}

	due := d.nowFn().Add(d.backoffFor(count))
	if err := d.retryQueue.Schedule(ctx, n.ID, due); err != nil {
		d.logger.Error("schedule retry failed", "notification_id", n.ID, "error", err)
	}
}

// failNotification marks the record FAILED and removes any pending retry.
func (d *Dispatcher) failNotification(ctx context.Context, id, errMsg string) {
	if err := d.notifications.MarkFailed(ctx, id, errMsg); err != nil {
		d.logger.Error("mark failed failed", "notification_id", id, "error", err)
		return
	}
	if err := d.retryQueue.Remove(ctx, id); err != nil {
		d.logger.Warn("retry queue remove failed", "notification_id", id, "error", err)
	}
	metrics.NotificationsFailedTotal.Inc()
}

// backoffFor returns the delay before the next attempt after retryCount
// failures so far. Doubles per failure up to the configured cap.
func (d *Dispatcher) backoffFor(retryCount int) time.Duration {
	delay := d.cfg.RetryBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= d.cfg.RetryCap {
			return d.cfg.RetryCap
		}
	}
	return delay
}

// Flush blocks until every started lane has drained. Test hook; retries
// scheduled in the queue are not waited on.
func (d *Dispatcher) Flush() { d.wg.Wait() }

func composeMessage(trig tracking.Trigger) string {
	var msg string
	switch trig.NewStatus {
	case models.DeliveryStatusAssigned:
		msg = fmt.Sprintf("A rider has been assigned to your delivery %s.", trig.DeliveryID)
	case models.DeliveryStatusPickedUp:
		msg = fmt.Sprintf("Your delivery %s has been picked up.", trig.DeliveryID)
	case models.DeliveryStatusEnRoute:
		msg = fmt.Sprintf("Your delivery %s is on the way.", trig.DeliveryID)
	case models.DeliveryStatusNearby:
		msg = fmt.Sprintf("Your rider is nearby with delivery %s.", trig.DeliveryID)
	case models.DeliveryStatusDelivered:
		msg = fmt.Sprintf("Your delivery %s has arrived.", trig.DeliveryID)
	case models.DeliveryStatusFailed:
		msg = fmt.Sprintf("Delivery %s could not be completed.", trig.DeliveryID)
	case models.DeliveryStatusCancelled:
		msg = fmt.Sprintf("Delivery %s was cancelled.", trig.DeliveryID)
	default:
		msg = fmt.Sprintf("Delivery %s is now %s.", trig.DeliveryID, trig.NewStatus)
	}
	if trig.Note != nil && *trig.Note != "" {
		msg = msg + " " + *trig.Note
	}
	return msg
}
