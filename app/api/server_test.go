package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bthode/engawa/app/database"
	"github.com/bthode/engawa/app/tasks"
)

type stubSubscriptions struct {
	subs []database.Subscription
}

func (s *stubSubscriptions) GetSubscription(ctx context.Context, id int64) (*database.Subscription, error) {
	for i := range s.subs {
		if s.subs[i].ID == id {
			return &s.subs[i], nil
		}
	}
	return nil, nil
}

func (s *stubSubscriptions) GetSubscriptionByName(ctx context.Context, name string) (*database.Subscription, error) {
	for i := range s.subs {
		if s.subs[i].Name == name {
			return &s.subs[i], nil
		}
	}
	return nil, nil
}

func (s *stubSubscriptions) ListSubscriptions(ctx context.Context) ([]database.Subscription, error) {
	return s.subs, nil
}

func (s *stubSubscriptions) GetSubscriptionCount(ctx context.Context) (int, error) {
	return len(s.subs), nil
}

func (s *stubSubscriptions) UpsertSubscription(ctx context.Context, sub *database.Subscription) (bool, error) {
	return false, nil
}

func (s *stubSubscriptions) DeleteSubscription(ctx context.Context, id int64) error {
	return nil
}

type stubVideos struct {
	videos []database.Video
}

func (s *stubVideos) GetVideos(ctx context.Context, subscriptionID int64, statuses ...database.VideoStatus) ([]database.Video, error) {
	var out []database.Video
	for _, v := range s.videos {
		if v.SubscriptionID != subscriptionID {
			continue
		}
		if len(statuses) > 0 && v.Status != statuses[0] {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *stubVideos) GetStatusCounts(ctx context.Context) (database.StatusCounts, error) {
	counts := database.StatusCounts{}
	for _, v := range s.videos {
		counts[v.Status]++
	}
	return counts, nil
}

func (s *stubVideos) GetStatusCountsBySubscription(ctx context.Context) (map[int64]database.StatusCounts, error) {
	counts := make(map[int64]database.StatusCounts)
	for _, v := range s.videos {
		if counts[v.SubscriptionID] == nil {
			counts[v.SubscriptionID] = database.StatusCounts{}
		}
		counts[v.SubscriptionID][v.Status]++
	}
	return counts, nil
}

type stubScheduler struct {
	accept   bool
	triggers int
	report   *tasks.CycleReport
}

func (s *stubScheduler) Start() {}
func (s *stubScheduler) Stop()  {}

func (s *stubScheduler) TriggerNow() bool {
	s.triggers++
	return s.accept
}

func (s *stubScheduler) LastReport() *tasks.CycleReport {
	return s.report
}

func newTestServer(apiKey string, scheduler *stubScheduler) http.Handler {
	synced := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	subs := &stubSubscriptions{subs: []database.Subscription{
		{ID: 1, Name: "example", Title: "Example", LastSyncedAt: &synced, Retention: database.RetentionPolicy{Type: database.RetentionCount}},
	}}
	videos := &stubVideos{videos: []database.Video{
		{SubscriptionID: 1, RemoteID: "a", Status: database.StatusDownloaded},
		{SubscriptionID: 1, RemoteID: "b", Status: database.StatusFiltered},
	}}
	return NewServer(NewHandler(subs, videos, scheduler, "test"), apiKey)
}

func doRequest(h http.Handler, method, path, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := doRequest(newTestServer("", &stubScheduler{}), http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["subscriptions"] != float64(1) {
		t.Errorf("Expected 1 subscription, got %v", body["subscriptions"])
	}
}

func TestStatsIncludesLastCycle(t *testing.T) {
	scheduler := &stubScheduler{report: &tasks.CycleReport{ID: "cycle-1"}}
	w := doRequest(newTestServer("", scheduler), http.MethodGet, "/stats", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body struct {
		Videos    map[string]int     `json:"videos"`
		Total     int                `json:"total"`
		LastCycle *tasks.CycleReport `json:"last_cycle"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 2 || body.Videos["downloaded"] != 1 {
		t.Errorf("Unexpected counts: %+v", body)
	}
	if body.LastCycle == nil || body.LastCycle.ID != "cycle-1" {
		t.Errorf("Expected last cycle report, got %+v", body.LastCycle)
	}
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	w := doRequest(newTestServer("", &stubScheduler{}), http.MethodGet, "/api/subscriptions", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestAPIRequiresKey(t *testing.T) {
	server := newTestServer("secret", &stubScheduler{})

	if w := doRequest(server, http.MethodGet, "/api/subscriptions", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without key, got %d", w.Code)
	}
	if w := doRequest(server, http.MethodGet, "/api/subscriptions", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with wrong key, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with bearer token, got %d", w.Code)
	}
}

func TestAPIListSubscriptions(t *testing.T) {
	w := doRequest(newTestServer("secret", &stubScheduler{}), http.MethodGet, "/api/subscriptions", "secret")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body struct {
		Subscriptions []subscriptionInfo `json:"subscriptions"`
		Total         int                `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 1 || body.Subscriptions[0].Name != "example" {
		t.Fatalf("Unexpected subscriptions: %+v", body)
	}
	if body.Subscriptions[0].Videos[database.StatusFiltered] != 1 {
		t.Errorf("Expected 1 filtered video, got %v", body.Subscriptions[0].Videos)
	}
	if body.Subscriptions[0].LastSyncedAt == nil {
		t.Error("Expected last sync time")
	}
}

func TestAPIGetSubscriptionVideos(t *testing.T) {
	server := newTestServer("secret", &stubScheduler{})

	w := doRequest(server, http.MethodGet, "/api/subscriptions/example/videos?status=downloaded", "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var body struct {
		Videos []videoInfo `json:"videos"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Videos) != 1 || body.Videos[0].RemoteID != "a" {
		t.Errorf("Expected only the downloaded video, got %+v", body.Videos)
	}

	if w := doRequest(server, http.MethodGet, "/api/subscriptions/missing/videos", "secret"); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown subscription, got %d", w.Code)
	}
	if w := doRequest(server, http.MethodGet, "/api/subscriptions/example/videos?status=bogus", "secret"); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown status, got %d", w.Code)
	}
}

func TestAPITriggerSync(t *testing.T) {
	scheduler := &stubScheduler{accept: true}
	server := newTestServer("secret", scheduler)

	if w := doRequest(server, http.MethodPost, "/api/sync", "secret"); w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", w.Code)
	}

	scheduler.accept = false
	if w := doRequest(server, http.MethodPost, "/api/sync", "secret"); w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 when a sync is queued, got %d", w.Code)
	}
	if scheduler.triggers != 2 {
		t.Errorf("Expected 2 trigger attempts, got %d", scheduler.triggers)
	}
}
