package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"deliveryTracking/internal/testutil"
	"deliveryTracking/models"
	"deliveryTracking/repository"
)

// flakyDeliveryRepo wraps a real repository and injects sqlite lock errors
// for a configured number of calls before delegating.
type flakyDeliveryRepo struct {
	repository.DeliveryRepositoryI
	mu            sync.Mutex
	snapshotLocks int
	appendLocks   int
	hideOrderID   bool
}

func (f *flakyDeliveryRepo) GetSnapshot(ctx context.Context, id string) (*models.Delivery, error) {
	f.mu.Lock()
	if f.snapshotLocks > 0 {
		f.snapshotLocks--
		f.mu.Unlock()
		return nil, sqlite3.Error{Code: sqlite3.ErrLocked}
	}
	f.mu.Unlock()
	return f.DeliveryRepositoryI.GetSnapshot(ctx, id)
}

func (f *flakyDeliveryRepo) AppendEvent(ctx context.Context, deliveryID string, expectVersion int64, ev *models.DeliveryEvent) (bool, error) {
	f.mu.Lock()
	if f.appendLocks > 0 {
		f.appendLocks--
		f.mu.Unlock()
		return false, sqlite3.Error{Code: sqlite3.ErrBusy}
	}
	f.mu.Unlock()
	return f.DeliveryRepositoryI.AppendEvent(ctx, deliveryID, expectVersion, ev)
}

func (f *flakyDeliveryRepo) GetByOrderID(ctx context.Context, orderID string) (*models.Delivery, error) {
	if f.hideOrderID {
		return nil, nil
	}
	return f.DeliveryRepositoryI.GetByOrderID(ctx, orderID)
}

// recordingSink captures triggers in arrival order.
type recordingSink struct {
	mu       sync.Mutex
	triggers []Trigger
}

func (s *recordingSink) TransitionCommitted(_ context.Context, trig Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, trig)
}

func (s *recordingSink) all() []Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Trigger, len(s.triggers))
	copy(out, s.triggers)
	return out
}

func newTestTracker(t *testing.T, name string) (*Tracker, *recordingSink, *repository.DeliveryRepository) {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, name)
	repo := repository.NewDeliveryRepository(d)
	sink := &recordingSink{}
	return NewTracker(repo, sink, nil), sink, repo
}

func createTestDelivery(t *testing.T, tr *Tracker, orderID string) *models.Delivery {
	t.Helper()
	d, err := tr.CreateDelivery(context.Background(), CreateDeliveryInput{
		OrderID: orderID,
		UserID:  "user-1",
		DestLat: 37.7749,
		DestLng: -122.4194,
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	if d.Status != models.DeliveryStatusPending {
		t.Fatalf("new delivery status = %s, want PENDING", d.Status)
	}
	return d
}

func TestCreateDelivery_DuplicateOrder(t *testing.T) {
	tr, _, _ := newTestTracker(t, "tracker_dup_order")
	createTestDelivery(t, tr, "order-1")
	if _, err := tr.CreateDelivery(context.Background(), CreateDeliveryInput{
		OrderID: "order-1",
		UserID:  "user-2",
		DestLat: 1,
		DestLng: 1,
	}); !errors.Is(err, ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists, got %v", err)
	}
}

func TestCreateDelivery_InvalidDestination(t *testing.T) {
	tr, _, _ := newTestTracker(t, "tracker_bad_dest")
	if _, err := tr.CreateDelivery(context.Background(), CreateDeliveryInput{
		OrderID: "order-1",
		UserID:  "user-1",
		DestLat: 91,
		DestLng: 0,
	}); !errors.Is(err, ErrInvalidLocation) {
		t.Fatalf("expected ErrInvalidLocation, got %v", err)
	}
}

func TestApplyTransition_HappyPath(t *testing.T) {
	tr, sink, repo := newTestTracker(t, "tracker_happy")
	ctx := context.Background()
	d := createTestDelivery(t, tr, "order-1")

	steps := []models.DeliveryStatus{
		models.DeliveryStatusAssigned,
		models.DeliveryStatusPickedUp,
		models.DeliveryStatusEnRoute,
		models.DeliveryStatusNearby,
		models.DeliveryStatusDelivered,
	}
	for _, s := range steps {
		got, err := tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: s})
		if err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
		if got.Status != s {
			t.Fatalf("status after transition = %s, want %s", got.Status, s)
		}
	}

	// Timeline invariant: snapshot status equals the last event, and the
	// version counts the appended events.
	full, err := repo.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if len(full.Events) != len(steps)+1 {
		t.Fatalf("event count = %d, want %d", len(full.Events), len(steps)+1)
	}
	last := full.Events[len(full.Events)-1]
	if last.Status != full.Status {
		t.Fatalf("snapshot status %s != last event status %s", full.Status, last.Status)
	}
	if full.Version != int64(len(full.Events)-1) {
		t.Fatalf("version = %d, want %d", full.Version, len(full.Events)-1)
	}

	trigs := sink.all()
	if len(trigs) != len(steps) {
		t.Fatalf("trigger count = %d, want %d", len(trigs), len(steps))
	}
	for i, s := range steps {
		if trigs[i].NewStatus != s {
			t.Errorf("trigger %d = %s, want %s", i, trigs[i].NewStatus, s)
		}
	}
}

func TestApplyTransition_Invalid(t *testing.T) {
	tr, _, _ := newTestTracker(t, "tracker_invalid")
	ctx := context.Background()
	d := createTestDelivery(t, tr, "order-1")

	// Skipping states is rejected.
	if _, err := tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: models.DeliveryStatusDelivered}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("PENDING->DELIVERED: expected ErrInvalidTransition, got %v", err)
	}
	// Unknown statuses are rejected before touching storage.
	if _, err := tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: "SHIPPED"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("unknown status: expected ErrInvalidTransition, got %v", err)
	}
}

func TestApplyTransition_NotFound(t *testing.T) {
	tr, _, _ := newTestTracker(t, "tracker_missing")
	if _, err := tr.ApplyTransition(context.Background(), "no-such-id", TransitionInput{NewStatus: models.DeliveryStatusAssigned}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyTransition_TerminalIsFrozen(t *testing.T) {
	tr, _, _ := newTestTracker(t, "tracker_terminal")
	ctx := context.Background()
	d := createTestDelivery(t, tr, "order-1")
	if _, err := tr.Cancel(ctx, d.ID, nil, time.Time{}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: models.DeliveryStatusAssigned}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after CANCELLED, got %v", err)
	}
}

func TestApplyTransition_StaleTimestamp(t *testing.T) {
	tr, _, _ := newTestTracker(t, "tracker_stale")
	ctx := context.Background()
	d := createTestDelivery(t, tr, "order-1")
	if _, err := tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: models.DeliveryStatusAssigned}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	old := time.Now().UTC().Add(-time.Hour)
	if _, err := tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: models.DeliveryStatusPickedUp, Timestamp: old}); !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite for old timestamp, got %v", err)
	}
}

func TestApplyTransition_ConcurrentSingleWinner(t *testing.T) {
	tr, _, _ := newTestTracker(t, "tracker_race")
	ctx := context.Background()
	d := createTestDelivery(t, tr, "order-1")
	for _, s := range []models.DeliveryStatus{
		models.DeliveryStatusAssigned,
		models.DeliveryStatusPickedUp,
		models.DeliveryStatusEnRoute,
		models.DeliveryStatusNearby,
	} {
		if _, err := tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: s}); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}

	// Two writers race to close the delivery. Exactly one transition may
	// land; the loser re-reads the terminal state and is rejected.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	targets := []models.DeliveryStatus{models.DeliveryStatusDelivered, models.DeliveryStatusFailed}
	for i := range targets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: targets[i]})
		}(i)
	}
	wg.Wait()

	var okCount int
	for _, err := range errs {
		if err == nil {
			okCount++
		} else if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrStaleWrite) {
			t.Fatalf("unexpected race error: %v", err)
		}
	}
	if okCount != 1 {
		t.Fatalf("winners = %d, want exactly 1", okCount)
	}
}

func TestAssign_SetsRider(t *testing.T) {
	tr, _, repo := newTestTracker(t, "tracker_assign")
	ctx := context.Background()
	d := createTestDelivery(t, tr, "order-1")
	got, err := tr.Assign(ctx, d.ID, "rider-7", time.Time{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.RiderID == nil || *got.RiderID != "rider-7" {
		t.Fatalf("rider id not set on result: %+v", got.RiderID)
	}
	stored, err := repo.GetSnapshot(ctx, d.ID)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if stored.Status != models.DeliveryStatusAssigned {
		t.Errorf("status = %s, want ASSIGNED", stored.Status)
	}
	if stored.RiderID == nil || *stored.RiderID != "rider-7" {
		t.Errorf("stored rider id = %v, want rider-7", stored.RiderID)
	}
}

func TestCreateDelivery_DuplicateOrderRace(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "tracker_dup_race")
	repo := repository.NewDeliveryRepository(d)
	// hideOrderID simulates the window where a concurrent create commits
	// between the existence check and the insert.
	tr := NewTracker(&flakyDeliveryRepo{DeliveryRepositoryI: repo, hideOrderID: true}, nil, nil)

	in := CreateDeliveryInput{OrderID: "order-1", UserID: "user-1", DestLat: 1, DestLng: 1}
	if _, err := tr.CreateDelivery(context.Background(), in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := tr.CreateDelivery(context.Background(), in); !errors.Is(err, ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists from unique index, got %v", err)
	}
}

func TestApplyTransition_RetriesLockedAppend(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "tracker_locked_append")
	repo := repository.NewDeliveryRepository(d)
	flaky := &flakyDeliveryRepo{DeliveryRepositoryI: repo, appendLocks: 2}
	tr := NewTracker(flaky, nil, nil)
	dl := createTestDelivery(t, tr, "order-1")

	got, err := tr.ApplyTransition(context.Background(), dl.ID, TransitionInput{NewStatus: models.DeliveryStatusAssigned})
	if err != nil {
		t.Fatalf("transition under lock contention: %v", err)
	}
	if got.Status != models.DeliveryStatusAssigned {
		t.Fatalf("status = %s, want ASSIGNED", got.Status)
	}
	if got.Version != 1 {
		t.Fatalf("version = %d, want 1 (blocked attempts must not append)", got.Version)
	}
}

func TestApplyTransition_RetriesLockedSnapshot(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "tracker_locked_snap")
	repo := repository.NewDeliveryRepository(d)
	flaky := &flakyDeliveryRepo{DeliveryRepositoryI: repo}
	tr := NewTracker(flaky, nil, nil)
	dl := createTestDelivery(t, tr, "order-1")

	flaky.mu.Lock()
	flaky.snapshotLocks = 1
	flaky.mu.Unlock()
	got, err := tr.ApplyTransition(context.Background(), dl.ID, TransitionInput{NewStatus: models.DeliveryStatusAssigned})
	if err != nil {
		t.Fatalf("transition with blocked read: %v", err)
	}
	if got.Status != models.DeliveryStatusAssigned {
		t.Fatalf("status = %s, want ASSIGNED", got.Status)
	}
}

func TestApplyTransition_LockContentionExhausted(t *testing.T) {
	d := testutil.OpenInMemoryDB(t, "tracker_locked_exhaust")
	repo := repository.NewDeliveryRepository(d)
	flaky := &flakyDeliveryRepo{DeliveryRepositoryI: repo, appendLocks: 100}
	tr := NewTracker(flaky, nil, nil)
	dl := createTestDelivery(t, tr, "order-1")

	if _, err := tr.ApplyTransition(context.Background(), dl.ID, TransitionInput{NewStatus: models.DeliveryStatusAssigned}); !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected ErrStaleWrite after exhausted retries, got %v", err)
	}
	snap, err := repo.GetSnapshot(context.Background(), dl.ID)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if snap.Status != models.DeliveryStatusPending || snap.Version != 0 {
		t.Fatalf("delivery moved despite failure: status=%s version=%d", snap.Status, snap.Version)
	}
}

func TestApplyTransition_LocationSurvivesLocationlessEvent(t *testing.T) {
	tr, _, repo := newTestTracker(t, "tracker_loc_sticky")
	ctx := context.Background()
	d := createTestDelivery(t, tr, "order-1")

	lat, lng := 37.7800, -122.4100
	if _, err := tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: models.DeliveryStatusAssigned}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: models.DeliveryStatusPickedUp, Lat: &lat, Lng: &lng}); err != nil {
		t.Fatalf("picked up: %v", err)
	}
	// A transition without coordinates must not clear the last known
	// location.
	got, err := tr.ApplyTransition(ctx, d.ID, TransitionInput{NewStatus: models.DeliveryStatusEnRoute})
	if err != nil {
		t.Fatalf("en route: %v", err)
	}
	if got.CurrentLat == nil || got.CurrentLng == nil || *got.CurrentLat != lat || *got.CurrentLng != lng {
		t.Fatalf("current location = (%v, %v), want (%v, %v)", got.CurrentLat, got.CurrentLng, lat, lng)
	}
	stored, err := repo.GetSnapshot(ctx, d.ID)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if stored.CurrentLat == nil || *stored.CurrentLat != lat {
		t.Fatalf("stored current_lat = %v, want %v", stored.CurrentLat, lat)
	}
}
