package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bthode/engawa/app/database"
	"github.com/bthode/engawa/app/feed"
	"github.com/bthode/engawa/app/library"
	"github.com/bthode/engawa/app/metadata"
)

type fakeStore struct {
	mu         sync.Mutex
	subs       map[int64]database.Subscription
	videos     map[int64]database.Video
	nextID     int64
	commits    int
	commitErr  error
	commitHook func()
}

func newFakeStore(subs ...database.Subscription) *fakeStore {
	s := &fakeStore{
		subs:   make(map[int64]database.Subscription),
		videos: make(map[int64]database.Video),
	}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (s *fakeStore) addVideo(v database.Video) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	v.ID = s.nextID
	s.videos[v.ID] = v
	return v.ID
}

func (s *fakeStore) GetDueSubscriptions(ctx context.Context, cutoff time.Time) ([]database.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []database.Subscription
	for _, sub := range s.subs {
		if sub.LastSyncedAt == nil || sub.LastSyncedAt.Before(cutoff) {
			due = append(due, sub)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

func (s *fakeStore) LoadSyncState(ctx context.Context, subscriptionID int64) (*database.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[subscriptionID]
	if !ok {
		return nil, errors.New("subscription not found")
	}
	var videos []database.Video
	for _, v := range s.videos {
		if v.SubscriptionID == subscriptionID {
			videos = append(videos, v)
		}
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].ID < videos[j].ID })
	return database.NewSyncState(sub, videos), nil
}

func (s *fakeStore) ExistingRemoteIDs(ctx context.Context, remoteIDs []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owners := make(map[string]int64)
	for _, id := range remoteIDs {
		for _, v := range s.videos {
			if v.RemoteID == id {
				owners[id] = v.SubscriptionID
			}
		}
	}
	return owners, nil
}

func (s *fakeStore) CommitSyncState(ctx context.Context, state *database.SyncState) error {
	if s.commitHook != nil {
		s.commitHook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	for _, v := range state.NewVideos() {
		s.nextID++
		v.ID = s.nextID
		s.videos[v.ID] = *v
	}
	for _, v := range state.ChangedVideos() {
		s.videos[v.ID] = *v
	}
	sub := s.subs[state.Subscription.ID]
	sub.LastSyncedAt = state.Subscription.LastSyncedAt
	s.subs[sub.ID] = sub
	s.commits++
	return nil
}

func (s *fakeStore) video(remoteID string) (database.Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.videos {
		if v.RemoteID == remoteID {
			return v, true
		}
	}
	return database.Video{}, false
}

func (s *fakeStore) subscription(id int64) database.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[id]
}

func (s *fakeStore) snapshot() map[int64]database.Video {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]database.Video, len(s.videos))
	for k, v := range s.videos {
		out[k] = v
	}
	return out
}

type fakeFeeds struct {
	items map[string][]feed.RemoteItem
	errs  map[string]error
}

func (f *fakeFeeds) Fetch(ctx context.Context, feedURL string) ([]feed.RemoteItem, error) {
	if err := f.errs[feedURL]; err != nil {
		return nil, err
	}
	return f.items[feedURL], nil
}

type fakeMetadata struct {
	mu      sync.Mutex
	results map[string]metadata.Result
	batches [][]string
	panics  bool
	onBatch func()
}

func (f *fakeMetadata) FetchBatch(ctx context.Context, links []string) map[string]metadata.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("metadata backend exploded")
	}
	f.batches = append(f.batches, links)
	out := make(map[string]metadata.Result, len(links))
	for _, link := range links {
		if r, ok := f.results[link]; ok {
			out[link] = r
		}
	}
	if f.onBatch != nil {
		f.onBatch()
	}
	return out
}

func (f *fakeMetadata) set(link string, duration int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = make(map[string]metadata.Result)
	}
	f.results[link] = metadata.Result{Link: link, Metadata: &metadata.VideoMetadata{DurationSeconds: &duration, ThumbnailURL: link + "/thumb.jpg"}}
}

func (f *fakeMetadata) setUnknownDuration(link string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = make(map[string]metadata.Result)
	}
	f.results[link] = metadata.Result{Link: link, Metadata: &metadata.VideoMetadata{Title: "live"}}
}

func (f *fakeMetadata) fail(link string, kind metadata.ErrorKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = make(map[string]metadata.Result)
	}
	f.results[link] = metadata.Result{Link: link, Err: &metadata.Error{Kind: kind, Message: string(kind)}}
}

type fakeContent struct {
	mu        sync.Mutex
	failures   map[string]error
	downloads  []string
	onDownload func(link string)
}

func (f *fakeContent) Download(ctx context.Context, link, destination string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onDownload != nil {
		f.onDownload(link)
	}
	if err := f.failures[link]; err != nil {
		return "", err
	}
	f.downloads = append(f.downloads, link)
	return destination + "/" + link + ".mp4", nil
}

type fakeLibrary struct {
	mu    sync.Mutex
	calls [][]library.Target
	err   error
}

func (f *fakeLibrary) Refresh(ctx context.Context, targets []library.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, targets)
	return f.err
}
