package database

import (
	"context"
	"time"
)

type SubscriptionRepository interface {
	GetSubscription(ctx context.Context, id int64) (*Subscription, error)
	GetSubscriptionByName(ctx context.Context, name string) (*Subscription, error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	GetSubscriptionCount(ctx context.Context) (int, error)

	UpsertSubscription(ctx context.Context, sub *Subscription) (bool, error)
	DeleteSubscription(ctx context.Context, id int64) error
}

type VideoRepository interface {
	GetVideos(ctx context.Context, subscriptionID int64, statuses ...VideoStatus) ([]Video, error)
	GetStatusCounts(ctx context.Context) (StatusCounts, error)
	GetStatusCountsBySubscription(ctx context.Context) (map[int64]StatusCounts, error)
}

// SyncRepository is the store surface one synchronization cycle needs.
// A SyncState is loaded, mutated in memory and committed as one unit.
type SyncRepository interface {
	GetDueSubscriptions(ctx context.Context, cutoff time.Time) ([]Subscription, error)
	LoadSyncState(ctx context.Context, subscriptionID int64) (*SyncState, error)
	ExistingRemoteIDs(ctx context.Context, remoteIDs []string) (map[string]int64, error)
	CommitSyncState(ctx context.Context, state *SyncState) error
}
