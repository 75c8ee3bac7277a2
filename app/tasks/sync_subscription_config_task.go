package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bthode/engawa/app/database"
	"github.com/bthode/engawa/app/feed"
)

// SyncSubscriptionConfigTask mirrors the subscription config files into
// the store and removes subscriptions whose file is gone
type SyncSubscriptionConfigTask struct {
	Task
	configCache *feed.ConfigCache
	subRepo     database.SubscriptionRepository
}

func NewSyncSubscriptionConfigTask(configCache *feed.ConfigCache, subRepo database.SubscriptionRepository) *SyncSubscriptionConfigTask {
	return &SyncSubscriptionConfigTask{
		Task:        NewTask(TaskTypeSyncSubscriptionConfig, ""),
		configCache: configCache,
		subRepo:     subRepo,
	}
}

func (t *SyncSubscriptionConfigTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.configCache.Run(); err != nil {
		return fmt.Errorf("failed to load subscription configs: %w", err)
	}

	configs := t.configCache.GetConfigs()
	var errs []error
	created, updated := 0, 0

	for name, config := range configs {
		sub, err := config.ToSubscription()
		if err != nil {
			errs = append(errs, fmt.Errorf("subscription %s: %w", name, err))
			continue
		}

		isNew, err := t.subRepo.UpsertSubscription(ctx, sub)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to sync subscription %s: %w", name, err))
			continue
		}
		if isNew {
			created++
			slog.Info("Subscription added", "subscription", name, "feed_url", sub.FeedURL)
		} else {
			updated++
		}
	}

	existing, err := t.subRepo.ListSubscriptions(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list subscriptions: %w", err))
		return errors.Join(errs...)
	}

	removed := 0
	for _, sub := range existing {
		if _, ok := configs[sub.Name]; ok {
			continue
		}
		if err := t.subRepo.DeleteSubscription(ctx, sub.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove subscription %s: %w", sub.Name, err))
			continue
		}
		removed++
		slog.Info("Subscription removed", "subscription", sub.Name)
	}

	slog.Info("Task completed",
		"type", string(t.GetType()),
		"created", created,
		"updated", updated,
		"removed", removed,
		"duration", t.GetDuration())

	return errors.Join(errs...)
}
