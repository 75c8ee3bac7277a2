package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bthode/engawa/app/metadata"
)

func TestSyncRepo_CommitAndLoad(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sub := createSubscription(t, db, "example")
	repo := NewSyncRepository(db)

	state, err := repo.LoadSyncState(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Videos) != 0 {
		t.Fatalf("Expected empty state, got %d videos", len(state.Videos))
	}

	published := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	duration := 1200
	thumbnail := "https://i.ytimg.com/vi/abc/hqdefault.jpg"
	video := &Video{
		RemoteID:        "abc",
		Title:           "A video",
		Link:            "https://www.youtube.com/watch?v=abc",
		PublishedAt:     &published,
		DurationSeconds: &duration,
		ThumbnailURL:    &thumbnail,
		Status:          StatusPendingDownload,
	}
	state.AddVideo(video)
	synced := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	state.Subscription.LastSyncedAt = &synced

	if err := repo.CommitSyncState(ctx, state); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if video.ID == 0 {
		t.Error("Expected committed video to receive an ID")
	}

	loaded, err := repo.LoadSyncState(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Subscription.LastSyncedAt == nil || !loaded.Subscription.LastSyncedAt.Equal(synced) {
		t.Errorf("Expected last_synced_at %v, got %v", synced, loaded.Subscription.LastSyncedAt)
	}
	if len(loaded.Videos) != 1 {
		t.Fatalf("Expected 1 video, got %d", len(loaded.Videos))
	}
	got := loaded.Videos[0]
	if got.Status != StatusPendingDownload {
		t.Errorf("Expected status %s, got %s", StatusPendingDownload, got.Status)
	}
	if got.DurationSeconds == nil || *got.DurationSeconds != 1200 {
		t.Errorf("Expected duration 1200, got %v", got.DurationSeconds)
	}
	if got.ThumbnailURL == nil || *got.ThumbnailURL != thumbnail {
		t.Errorf("Expected thumbnail %s, got %v", thumbnail, got.ThumbnailURL)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(published) {
		t.Errorf("Expected published_at %v, got %v", published, got.PublishedAt)
	}
	if loaded.VideoMutations() != 0 || loaded.SubscriptionChanged() {
		t.Error("Expected freshly loaded state to have no changes")
	}

	// Update through a second commit.
	kind := metadata.Unknown
	got.Status = StatusFailed
	got.RetryCount = 2
	got.MetadataError = &kind
	got.MetadataErrorMessage = "timed out"
	if loaded.VideoMutations() != 1 {
		t.Errorf("Expected 1 mutation, got %d", loaded.VideoMutations())
	}
	if err := repo.CommitSyncState(ctx, loaded); err != nil {
		t.Fatal(err)
	}

	videos, err := NewVideoRepository(db).GetVideos(ctx, sub.ID, StatusFailed)
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 1 || videos[0].RetryCount != 2 {
		t.Fatalf("Expected failed video with 2 retries, got %+v", videos)
	}
	if videos[0].MetadataError == nil || *videos[0].MetadataError != metadata.Unknown {
		t.Errorf("Expected metadata error %s, got %v", metadata.Unknown, videos[0].MetadataError)
	}
}

func TestSyncRepo_DiscardedStateLeavesStoreUntouched(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sub := createSubscription(t, db, "example")
	repo := NewSyncRepository(db)

	state, _ := repo.LoadSyncState(ctx, sub.ID)
	state.AddVideo(&Video{RemoteID: "gone", Link: "l", Status: StatusPending})
	now := time.Now()
	state.Subscription.LastSyncedAt = &now

	loaded, err := repo.LoadSyncState(ctx, sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Videos) != 0 || loaded.Subscription.LastSyncedAt != nil {
		t.Error("Expected uncommitted changes to stay out of the store")
	}
}

func TestSyncRepo_RemoteIDIsGloballyUnique(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	one := createSubscription(t, db, "one")
	two := createSubscription(t, db, "two")
	repo := NewSyncRepository(db)

	state, _ := repo.LoadSyncState(ctx, one.ID)
	state.AddVideo(&Video{RemoteID: "shared", Link: "l", Status: StatusPending})
	if err := repo.CommitSyncState(ctx, state); err != nil {
		t.Fatal(err)
	}

	owners, err := repo.ExistingRemoteIDs(ctx, []string{"shared", "unknown"})
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 1 || owners["shared"] != one.ID {
		t.Errorf("Expected shared owned by %d, got %v", one.ID, owners)
	}

	// A racing insert from another subscription is ignored.
	state, _ = repo.LoadSyncState(ctx, two.ID)
	state.AddVideo(&Video{RemoteID: "shared", Link: "l", Status: StatusPending})
	if err := repo.CommitSyncState(ctx, state); err != nil {
		t.Fatalf("Expected conflicting insert to be skipped, got %v", err)
	}
	videos, _ := NewVideoRepository(db).GetVideos(ctx, two.ID)
	if len(videos) != 0 {
		t.Errorf("Expected no videos for the second subscription, got %d", len(videos))
	}
}

func TestSyncRepo_ExistingRemoteIDsChunks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	sub := createSubscription(t, db, "example")
	repo := NewSyncRepository(db)

	state, _ := repo.LoadSyncState(ctx, sub.ID)
	ids := make([]string, 0, remoteIDChunk+25)
	for i := 0; i < remoteIDChunk+25; i++ {
		id := fmt.Sprintf("vid-%04d", i)
		ids = append(ids, id)
		state.AddVideo(&Video{RemoteID: id, Link: id, Status: StatusPending})
	}
	if err := repo.CommitSyncState(ctx, state); err != nil {
		t.Fatal(err)
	}

	owners, err := repo.ExistingRemoteIDs(ctx, ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != len(ids) {
		t.Errorf("Expected %d owners, got %d", len(ids), len(owners))
	}
}

func TestSyncRepo_GetDueSubscriptions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	never := createSubscription(t, db, "never")
	recent := createSubscription(t, db, "recent")
	stale := createSubscription(t, db, "stale")
	repo := NewSyncRepository(db)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mark := func(sub *Subscription, at time.Time) {
		state, err := repo.LoadSyncState(ctx, sub.ID)
		if err != nil {
			t.Fatal(err)
		}
		state.Subscription.LastSyncedAt = &at
		if err := repo.CommitSyncState(ctx, state); err != nil {
			t.Fatal(err)
		}
	}
	mark(recent, now.Add(-5*time.Minute))
	mark(stale, now.Add(-time.Hour))

	due, err := repo.GetDueSubscriptions(ctx, now.Add(-15*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("Expected 2 due subscriptions, got %d", len(due))
	}
	if due[0].ID != never.ID || due[1].ID != stale.ID {
		t.Errorf("Expected never-synced first then stale, got %s, %s", due[0].Name, due[1].Name)
	}
	if len(due[1].Filters) != 2 {
		t.Errorf("Expected due subscriptions to carry filters, got %d", len(due[1].Filters))
	}
}

func TestVideoRepo_StatusCounts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	one := createSubscription(t, db, "one")
	two := createSubscription(t, db, "two")
	repo := NewSyncRepository(db)

	add := func(sub *Subscription, statuses ...VideoStatus) {
		state, _ := repo.LoadSyncState(ctx, sub.ID)
		for i, s := range statuses {
			state.AddVideo(&Video{RemoteID: fmt.Sprintf("%s-%d", sub.Name, i), Link: "l", Status: s})
		}
		if err := repo.CommitSyncState(ctx, state); err != nil {
			t.Fatal(err)
		}
	}
	add(one, StatusDownloaded, StatusDownloaded, StatusFiltered)
	add(two, StatusFailed)

	videoRepo := NewVideoRepository(db)
	counts, err := videoRepo.GetStatusCounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[StatusDownloaded] != 2 || counts[StatusFiltered] != 1 || counts[StatusFailed] != 1 {
		t.Errorf("Unexpected counts: %v", counts)
	}
	if counts.Total() != 4 {
		t.Errorf("Expected total 4, got %d", counts.Total())
	}

	bySub, err := videoRepo.GetStatusCountsBySubscription(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if bySub[one.ID][StatusDownloaded] != 2 || bySub[two.ID][StatusFailed] != 1 {
		t.Errorf("Unexpected per-subscription counts: %v", bySub)
	}
}
