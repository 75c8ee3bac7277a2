package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Target is one destination that received new content in a cycle
type Target struct {
	Path    string
	Section string
}

// Updater asks a media server to rescan the given targets
type Updater interface {
	Refresh(ctx context.Context, targets []Target) error
}

// HTTPDoer describes the HTTP client used by the media server updaters.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NoopUpdater is used when no media server is configured.
type NoopUpdater struct{}

func (NoopUpdater) Refresh(context.Context, []Target) error { return nil }

// PlexUpdater refreshes Plex library sections
type PlexUpdater struct {
	baseURL string
	token   string
	client  HTTPDoer
}

func NewPlexUpdater(baseURL, token string, client HTTPDoer) *PlexUpdater {
	if client == nil {
		client = http.DefaultClient
	}
	return &PlexUpdater{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  client,
	}
}

// Refresh rescans every distinct section among targets, scoped to the
// target path. Targets without a section trigger a full refresh.
func (p *PlexUpdater) Refresh(ctx context.Context, targets []Target) error {
	if p.baseURL == "" || p.token == "" || len(targets) == 0 {
		return nil
	}

	var requests []string
	refreshAll := false
	for _, t := range targets {
		if t.Section == "" {
			refreshAll = true
			continue
		}
		refreshURL := fmt.Sprintf("%s/library/sections/%s/refresh", p.baseURL, url.PathEscape(t.Section))
		if t.Path != "" {
			refreshURL += "?path=" + url.QueryEscape(t.Path)
		}
		if !slices.Contains(requests, refreshURL) {
			requests = append(requests, refreshURL)
		}
	}
	if refreshAll {
		requests = append(requests, p.baseURL+"/library/sections/all/refresh")
	}

	var errs []error
	for _, refreshURL := range requests {
		if err := p.get(ctx, refreshURL); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *PlexUpdater) get(ctx context.Context, refreshURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, refreshURL, nil)
	if err != nil {
		return fmt.Errorf("build plex refresh request: %w", err)
	}
	req.Header.Set("X-Plex-Token", p.token)
	req.Header.Set("Accept", "application/json")

	return doRefresh(p.client, req, "plex")
}

// JellyfinUpdater triggers a full Jellyfin library scan
type JellyfinUpdater struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

func NewJellyfinUpdater(baseURL, apiKey string, client HTTPDoer) *JellyfinUpdater {
	if client == nil {
		client = http.DefaultClient
	}
	return &JellyfinUpdater{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}
}

// Refresh issues one scan regardless of how many targets changed
func (j *JellyfinUpdater) Refresh(ctx context.Context, targets []Target) error {
	if j.baseURL == "" || j.apiKey == "" || len(targets) == 0 {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/Library/Refresh", nil)
	if err != nil {
		return fmt.Errorf("build jellyfin refresh request: %w", err)
	}
	req.Header.Set("X-Emby-Token", j.apiKey)

	return doRefresh(j.client, req, "jellyfin")
}

func doRefresh(client HTTPDoer, req *http.Request, server string) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("refresh %s library: %w", server, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%s refresh returned %d %s", server, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}
