package library

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	header http.Header
}

func newRecorder(t *testing.T, status int) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query().Get("path"),
			header: r.Header.Clone(),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestPlexUpdater_RefreshSections(t *testing.T) {
	server, requests := newRecorder(t, http.StatusOK)
	updater := NewPlexUpdater(server.URL+"/", "plex-token", server.Client())

	err := updater.Refresh(context.Background(), []Target{
		{Path: "/media/a", Section: "3"},
		{Path: "/media/a", Section: "3"},
		{Path: "/media/b"},
	})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if len(*requests) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(*requests))
	}
	first := (*requests)[0]
	if first.method != http.MethodGet || first.path != "/library/sections/3/refresh" {
		t.Errorf("Unexpected section refresh %s %s", first.method, first.path)
	}
	if first.query != "/media/a" {
		t.Errorf("Expected path query '/media/a', got '%s'", first.query)
	}
	if first.header.Get("X-Plex-Token") != "plex-token" {
		t.Errorf("Expected plex token header, got '%s'", first.header.Get("X-Plex-Token"))
	}
	if (*requests)[1].path != "/library/sections/all/refresh" {
		t.Errorf("Expected full refresh, got %s", (*requests)[1].path)
	}
}

func TestPlexUpdater_NonOKStatus(t *testing.T) {
	server, _ := newRecorder(t, http.StatusUnauthorized)
	updater := NewPlexUpdater(server.URL, "bad", server.Client())

	if err := updater.Refresh(context.Background(), []Target{{Section: "1"}}); err == nil {
		t.Error("Expected error for 401 response")
	}
}

func TestPlexUpdater_Unconfigured(t *testing.T) {
	updater := NewPlexUpdater("", "", nil)
	if err := updater.Refresh(context.Background(), []Target{{Section: "1"}}); err != nil {
		t.Errorf("Expected unconfigured updater to be a no-op, got %v", err)
	}
}

func TestJellyfinUpdater_Refresh(t *testing.T) {
	server, requests := newRecorder(t, http.StatusOK)
	updater := NewJellyfinUpdater(server.URL, "jf-key", server.Client())

	if err := updater.Refresh(context.Background(), []Target{{Path: "/a"}, {Path: "/b"}}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if len(*requests) != 1 {
		t.Fatalf("Expected a single refresh request, got %d", len(*requests))
	}
	req := (*requests)[0]
	if req.method != http.MethodPost || req.path != "/Library/Refresh" {
		t.Errorf("Unexpected request %s %s", req.method, req.path)
	}
	if req.header.Get("X-Emby-Token") != "jf-key" {
		t.Errorf("Expected X-Emby-Token header, got '%s'", req.header.Get("X-Emby-Token"))
	}
}

func TestJellyfinUpdater_NoTargets(t *testing.T) {
	server, requests := newRecorder(t, http.StatusOK)
	updater := NewJellyfinUpdater(server.URL, "jf-key", server.Client())

	if err := updater.Refresh(context.Background(), nil); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if len(*requests) != 0 {
		t.Errorf("Expected no requests without targets, got %d", len(*requests))
	}
}
