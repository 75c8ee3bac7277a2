package database

import (
	"time"

	"github.com/bthode/engawa/app/metadata"
)

// SyncState is an in-memory working copy of one subscription and its
// videos. Nothing reaches the store until it is committed; dropping the
// value discards every change made to it.
type SyncState struct {
	Subscription Subscription
	Videos       []*Video

	baseline         map[int64]Video
	baselineSyncedAt *time.Time
	remoteIDs        map[string]struct{}
}

// NewSyncState snapshots the given rows so later changes can be detected.
func NewSyncState(sub Subscription, videos []Video) *SyncState {
	state := &SyncState{
		Subscription:     sub,
		Videos:           make([]*Video, 0, len(videos)),
		baseline:         make(map[int64]Video, len(videos)),
		baselineSyncedAt: sub.LastSyncedAt,
		remoteIDs:        make(map[string]struct{}, len(videos)),
	}
	for _, v := range videos {
		video := v
		state.Videos = append(state.Videos, &video)
		state.baseline[v.ID] = v
		state.remoteIDs[v.RemoteID] = struct{}{}
	}
	return state
}

func (s *SyncState) HasRemoteID(remoteID string) bool {
	_, ok := s.remoteIDs[remoteID]
	return ok
}

// AddVideo registers a video discovered during this cycle.
func (s *SyncState) AddVideo(v *Video) {
	v.ID = 0
	v.SubscriptionID = s.Subscription.ID
	s.Videos = append(s.Videos, v)
	s.remoteIDs[v.RemoteID] = struct{}{}
}

func (s *SyncState) VideosByStatus(status VideoStatus) []*Video {
	var videos []*Video
	for _, v := range s.Videos {
		if v.Status == status {
			videos = append(videos, v)
		}
	}
	return videos
}

func (s *SyncState) NewVideos() []*Video {
	var videos []*Video
	for _, v := range s.Videos {
		if v.ID == 0 {
			videos = append(videos, v)
		}
	}
	return videos
}

// ChangedVideos returns persisted videos that differ from their snapshot.
func (s *SyncState) ChangedVideos() []*Video {
	var videos []*Video
	for _, v := range s.Videos {
		if v.ID == 0 {
			continue
		}
		if original, ok := s.baseline[v.ID]; !ok || !sameVideo(original, *v) {
			videos = append(videos, v)
		}
	}
	return videos
}

func (s *SyncState) SubscriptionChanged() bool {
	return !equalTime(s.baselineSyncedAt, s.Subscription.LastSyncedAt)
}

// VideoMutations counts the video rows a commit of this state would write.
func (s *SyncState) VideoMutations() int {
	return len(s.NewVideos()) + len(s.ChangedVideos())
}

func sameVideo(a, b Video) bool {
	return a.RemoteID == b.RemoteID &&
		a.Title == b.Title &&
		a.Author == b.Author &&
		a.Description == b.Description &&
		a.Link == b.Link &&
		equalTime(a.PublishedAt, b.PublishedAt) &&
		equalPtr(a.DurationSeconds, b.DurationSeconds) &&
		equalPtr(a.ThumbnailURL, b.ThumbnailURL) &&
		a.Status == b.Status &&
		equalPtr[metadata.ErrorKind](a.MetadataError, b.MetadataError) &&
		a.MetadataErrorMessage == b.MetadataErrorMessage &&
		a.RetryCount == b.RetryCount &&
		a.FilePath == b.FilePath
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
