package notify

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RetryQueue schedules notification retries by due time. The schedule lives
// outside the notification records; the records remain the source of truth
// for status and retry counts.
type RetryQueue interface {
	Schedule(ctx context.Context, notificationID string, due time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
	Remove(ctx context.Context, notificationID string) error
}

// MemoryQueue is an in-process RetryQueue for tests and single-instance
// deployments without Redis.
type MemoryQueue struct {
	mu  sync.Mutex
	due map[string]time.Time
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{due: make(map[string]time.Time)}
}

func (q *MemoryQueue) Schedule(_ context.Context, notificationID string, due time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.due[notificationID] = due
	return nil
}

func (q *MemoryQueue) Due(_ context.Context, now time.Time, limit int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	type entry struct {
		id  string
		due time.Time
	}
	var ready []entry
	for id, due := range q.due {
		if !due.After(now) {
			ready = append(ready, entry{id, due})
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].due.Before(ready[j].due) })
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	ids := make([]string, len(ready))
	for i, e := range ready {
		ids[i] = e.id
	}
	return ids, nil
}

func (q *MemoryQueue) Remove(_ context.Context, notificationID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.due, notificationID)
	return nil
}
