package tasks

import (
	"context"

	"github.com/bthode/engawa/app/feed"
	"github.com/bthode/engawa/app/library"
	"github.com/bthode/engawa/app/metadata"
)

// FeedFetcher returns the remote items of a subscription feed, in feed order.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]feed.RemoteItem, error)
}

// MetadataFetcher returns exactly one result per distinct link and never
// fails as a whole.
type MetadataFetcher interface {
	FetchBatch(ctx context.Context, links []string) map[string]metadata.Result
}

// ContentFetcher downloads a video into destinationPath and returns the
// saved file path.
type ContentFetcher interface {
	Download(ctx context.Context, link, destinationPath string) (string, error)
}

type LibraryUpdater = library.Updater

// CycleRunner runs one synchronization cycle over all due subscriptions.
type CycleRunner interface {
	RunCycle(ctx context.Context) CycleReport
}

// SchedulerInterface defines the interface for periodic cycle scheduling.
// Used by the main application and the API to start, stop and trigger
// synchronization.
// Example usage:
//
//	scheduler := NewScheduler(orchestrator, 10*time.Second)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.TriggerNow()
type SchedulerInterface interface {
	Start()
	Stop()
	TriggerNow() bool
	LastReport() *CycleReport
}
