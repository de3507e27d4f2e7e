package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"deliveryTracking/internal/auth"
	"deliveryTracking/internal/ingest"
	"deliveryTracking/internal/testutil"
	"deliveryTracking/internal/tracking"
	"deliveryTracking/models"
	"deliveryTracking/repository"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, name string) (*httptest.Server, *tracking.Tracker) {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, name)
	deliveries := repository.NewDeliveryRepository(d)
	pings := repository.NewPingRepository(d)
	notifications := repository.NewNotificationRepository(d)
	settings := repository.NewSettingsRepository(d)
	feedback := repository.NewFeedbackRepository(d)

	tracker := tracking.NewTracker(deliveries, nil, nil)
	ingestor := ingest.NewIngestor(pings, deliveries, tracker, 150, nil)
	handler := NewHandler(tracker, ingestor, deliveries, pings, notifications, settings, feedback, testSecret, nil)

	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv, tracker
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func signFor(t *testing.T, id, kind string) string {
	t.Helper()
	tok, err := auth.SignToken(testSecret, id, kind, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func decodeData(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Status != "success" {
		t.Fatalf("status = %q, want success", envelope.Status)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestAPI_RequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, "api_auth")
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/deliveries", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	// Health stays open.
	resp = doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestAPI_CreateAndFetchDelivery(t *testing.T) {
	srv, _ := newTestServer(t, "api_create")
	userTok := signFor(t, "user-1", "user")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/deliveries", userTok, map[string]any{
		"order_id": "order-1",
		"dest_lat": 37.7749,
		"dest_lng": -122.4194,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created models.Delivery
	decodeData(t, resp, &created)
	if created.Status != models.DeliveryStatusPending {
		t.Fatalf("status = %s, want PENDING", created.Status)
	}
	if created.UserID != "user-1" {
		t.Fatalf("user id = %s, want the token subject", created.UserID)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/deliveries/"+created.ID, userTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}

	// Another user cannot read it.
	otherTok := signFor(t, "user-2", "user")
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/deliveries/"+created.ID, otherTok, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-user get status = %d, want 403", resp.StatusCode)
	}

	// Duplicate order id conflicts.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/deliveries", userTok, map[string]any{
		"order_id": "order-1",
		"dest_lat": 1,
		"dest_lng": 1,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate order status = %d, want 409", resp.StatusCode)
	}
}

func TestAPI_TransitionFlow(t *testing.T) {
	srv, _ := newTestServer(t, "api_transition")
	userTok := signFor(t, "user-1", "user")
	adminTok := signFor(t, "admin-1", "admin")
	riderTok := signFor(t, "rider-1", "rider")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/deliveries", userTok, map[string]any{
		"order_id": "order-1",
		"dest_lat": 0,
		"dest_lng": 0,
	})
	var created models.Delivery
	decodeData(t, resp, &created)

	// A rider cannot report on an unassigned delivery.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/deliveries/"+created.ID+"/transition", riderTok, map[string]any{
		"status": "PICKED_UP",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unassigned rider status = %d, want 403", resp.StatusCode)
	}

	// Admin assigns rider-1.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/deliveries/"+created.ID+"/assign", adminTok, map[string]any{
		"rider_id": "rider-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign status = %d, want 200", resp.StatusCode)
	}

	// The assigned rider walks the delivery forward.
	for _, s := range []string{"PICKED_UP", "EN_ROUTE"} {
		resp = doJSON(t, http.MethodPost, srv.URL+"/api/deliveries/"+created.ID+"/transition", riderTok, map[string]any{
			"status": s,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("transition to %s status = %d, want 200", s, resp.StatusCode)
		}
	}

	// Skipping a state is rejected.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/deliveries/"+created.ID+"/transition", riderTok, map[string]any{
		"status": "DELIVERED",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid transition status = %d, want 422", resp.StatusCode)
	}

	// Users cannot transition at all.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/deliveries/"+created.ID+"/transition", userTok, map[string]any{
		"status": "NEARBY",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user transition status = %d, want 403", resp.StatusCode)
	}
}

func TestAPI_PingAndLocation(t *testing.T) {
	srv, _ := newTestServer(t, "api_ping")
	riderTok := signFor(t, "rider-1", "rider")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/pings", riderTok, map[string]any{
		"lat": 10.0,
		"lng": 20.0,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ping status = %d, want 202", resp.StatusCode)
	}

	// Invalid coordinates are rejected.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/pings", riderTok, map[string]any{
		"lat": 95.0,
		"lng": 0.0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad ping status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/riders/rider-1/location", riderTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("location status = %d, want 200", resp.StatusCode)
	}
	var ping models.RiderPing
	decodeData(t, resp, &ping)
	if ping.Lat != 10 || ping.Lng != 20 {
		t.Fatalf("latest ping = (%v, %v), want (10, 20)", ping.Lat, ping.Lng)
	}

	// Riders cannot read other riders.
	otherTok := signFor(t, "rider-2", "rider")
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/riders/rider-1/location", otherTok, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-rider location status = %d, want 403", resp.StatusCode)
	}
}

func TestAPI_FeedbackOnlyAfterTerminal(t *testing.T) {
	srv, tracker := newTestServer(t, "api_feedback")
	userTok := signFor(t, "user-1", "user")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/deliveries", userTok, map[string]any{
		"order_id": "order-1",
		"dest_lat": 0,
		"dest_lng": 0,
	})
	var created models.Delivery
	decodeData(t, resp, &created)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/deliveries/"+created.ID+"/feedback", userTok, map[string]any{
		"rating": 4,
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("feedback on active delivery status = %d, want 422", resp.StatusCode)
	}

	// Cancel via the tracker, then feedback is accepted exactly once.
	if _, err := tracker.Cancel(context.Background(), created.ID, nil, time.Time{}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/deliveries/"+created.ID+"/feedback", userTok, map[string]any{
		"rating": 4,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("feedback status = %d, want 201", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/deliveries/"+created.ID+"/feedback", userTok, map[string]any{
		"rating": 2,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second feedback status = %d, want 409", resp.StatusCode)
	}

	// Out-of-range ratings are rejected.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/deliveries/"+created.ID+"/feedback", userTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get feedback status = %d, want 200", resp.StatusCode)
	}
}

func TestAPI_SettingsRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, "api_settings")
	userTok := signFor(t, "user-1", "user")

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/settings", userTok, map[string]any{
		"delivery_window": "EVENING",
		"notify_on":       []string{"DELIVERED"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put settings status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/settings", userTok, map[string]any{
		"notify_on": []string{"SHIPPED"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid notify_on status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/settings", userTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get settings status = %d, want 200", resp.StatusCode)
	}
	var s models.DeliverySettings
	decodeData(t, resp, &s)
	if s.DeliveryWindow == nil || *s.DeliveryWindow != models.WindowEvening {
		t.Fatalf("window = %v, want EVENING", s.DeliveryWindow)
	}
}

func TestAPI_ListDeliveries_Pagination(t *testing.T) {
	srv, _ := newTestServer(t, "api_list_page")
	userTok := signFor(t, "user-1", "user")

	// Spread creation times past the default keyset page size.
	for i := 0; i < 25; i++ {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/deliveries", userTok, map[string]any{
			"order_id": "order-" + strconv.Itoa(i),
			"dest_lat": 37.0,
			"dest_lng": -122.0,
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %d: status %d", i, resp.StatusCode)
		}
	}

	// Without pagination params the full history comes back.
	var all []models.Delivery
	decodeData(t, doJSON(t, http.MethodGet, srv.URL+"/api/deliveries", userTok, nil), &all)
	if len(all) != 25 {
		t.Fatalf("unpaginated list = %d deliveries, want 25", len(all))
	}

	var page []models.Delivery
	decodeData(t, doJSON(t, http.MethodGet, srv.URL+"/api/deliveries?page_size=10", userTok, nil), &page)
	if len(page) != 10 {
		t.Fatalf("paginated list = %d deliveries, want 10", len(page))
	}
}
