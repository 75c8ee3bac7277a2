package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bthode/engawa/app/database"
	"github.com/bthode/engawa/app/feed"
	"github.com/bthode/engawa/app/library"
	"github.com/bthode/engawa/app/metadata"
)

var (
	// errFeedUnavailable marks a unit skipped before any state changed.
	errFeedUnavailable = errors.New("feed unavailable")
	// errNotDue marks a unit another cycle synced after this one listed it.
	errNotDue = errors.New("no longer due")
	// errInterrupted marks a unit abandoned on cancellation. It is never
	// committed.
	errInterrupted = errors.New("sync interrupted")
)

// SyncSubscriptionTask runs one subscription through a full cycle on an
// in-memory SyncState and commits it once at the end
type SyncSubscriptionTask struct {
	Task
	subscription database.Subscription
	deps         *Dependencies
	opts         Options
	now          time.Time

	state  *database.SyncState
	report SubscriptionReport
}

func NewSyncSubscriptionTask(sub database.Subscription, deps *Dependencies, opts Options, now time.Time) *SyncSubscriptionTask {
	return &SyncSubscriptionTask{
		Task:         NewTask(TaskTypeSyncSubscription, sub.Name),
		subscription: sub,
		deps:         deps,
		opts:         opts,
		now:          now,
		report: SubscriptionReport{
			SubscriptionID: sub.ID,
			Name:           sub.Name,
		},
	}
}

func (t *SyncSubscriptionTask) Report() SubscriptionReport {
	return t.report
}

func (t *SyncSubscriptionTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errInterrupted, err)
	}

	state, err := t.deps.Store.LoadSyncState(ctx, t.subscription.ID)
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}
	if last := state.Subscription.LastSyncedAt; last != nil && !last.Before(t.now.Add(-t.opts.UpdateWindow)) {
		return fmt.Errorf("%w: synced at %s", errNotDue, last.Format(time.RFC3339))
	}
	t.state = state

	items, err := t.deps.Feeds.Fetch(ctx, t.subscription.FeedURL)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", errInterrupted, ctx.Err())
		}
		return fmt.Errorf("%w: %w", errFeedUnavailable, err)
	}

	if err := t.addNewVideos(ctx, items); err != nil {
		return err
	}
	if err := t.retryFailed(); err != nil {
		return err
	}
	if err := t.obtainMetadata(ctx); err != nil {
		return err
	}
	if err := t.applyFilters(); err != nil {
		return err
	}
	if err := t.applyRetention(); err != nil {
		return err
	}
	if err := t.download(ctx); err != nil {
		return err
	}

	now := t.now
	state.Subscription.LastSyncedAt = &now
	t.report.Mutations = state.VideoMutations()

	// Cancellation after the last step still commits.
	if err := t.deps.Store.CommitSyncState(context.WithoutCancel(ctx), state); err != nil {
		return fmt.Errorf("failed to commit sync state: %w", err)
	}

	t.report.Outcome = OutcomeSynced
	return nil
}

func (t *SyncSubscriptionTask) addNewVideos(ctx context.Context, items []feed.RemoteItem) error {
	var candidates []feed.RemoteItem
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.RemoteID == "" || t.state.HasRemoteID(item.RemoteID) {
			continue
		}
		if _, dup := seen[item.RemoteID]; dup {
			continue
		}
		seen[item.RemoteID] = struct{}{}
		candidates = append(candidates, item)
	}
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]string, len(candidates))
	for i, item := range candidates {
		ids[i] = item.RemoteID
	}
	owners, err := t.deps.Store.ExistingRemoteIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to check existing videos: %w", err)
	}

	for _, item := range candidates {
		if owner, exists := owners[item.RemoteID]; exists {
			slog.Debug("Video already tracked by another subscription", "subscription", t.subscription.Name, "remote_id", item.RemoteID, "owner_id", owner)
			continue
		}

		video := &database.Video{
			RemoteID:    item.RemoteID,
			Title:       item.Title,
			Author:      item.Author,
			Description: item.Description,
			Link:        item.Link,
			PublishedAt: item.PublishedAt,
			Status:      database.StatusPending,
		}
		if item.ThumbnailURL != "" {
			thumbnail := item.ThumbnailURL
			video.ThumbnailURL = &thumbnail
		}
		t.state.AddVideo(video)
		t.report.New++
	}
	return nil
}

// retryFailed puts FAILED videos under the retry cap back into the
// lifecycle at the step that failed.
func (t *SyncSubscriptionTask) retryFailed() error {
	for _, v := range t.state.VideosByStatus(database.StatusFailed) {
		if t.opts.MaxRetries > 0 && v.RetryCount >= t.opts.MaxRetries {
			continue
		}

		if v.MetadataError != nil {
			if err := v.Transition(database.StatusPending); err != nil {
				return err
			}
			v.MetadataError = nil
			v.MetadataErrorMessage = ""
		} else {
			if err := v.Transition(database.StatusPendingDownload); err != nil {
				return err
			}
		}
		t.report.Retried++
	}
	return nil
}

func (t *SyncSubscriptionTask) obtainMetadata(ctx context.Context) error {
	pending := t.state.VideosByStatus(database.StatusPending)
	if len(pending) == 0 {
		return nil
	}

	links := make([]string, 0, len(pending))
	for _, v := range pending {
		if err := v.Transition(database.StatusObtainingMetadata); err != nil {
			return err
		}
		links = append(links, v.Link)
	}

	results := t.deps.Metadata.FetchBatch(ctx, links)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errInterrupted, err)
	}

	for _, v := range pending {
		result, ok := results[v.Link]
		if !ok {
			result = metadata.Result{Link: v.Link, Err: &metadata.Error{Kind: metadata.Unknown, Message: "no metadata result returned"}}
		}
		if err := t.applyMetadata(v, result); err != nil {
			return err
		}
	}
	return nil
}

func (t *SyncSubscriptionTask) applyMetadata(v *database.Video, result metadata.Result) error {
	if result.Err == nil && result.Metadata == nil {
		result.Err = &metadata.Error{Kind: metadata.Unknown, Message: "empty metadata result"}
	}

	if result.Err == nil {
		md := result.Metadata
		if err := v.Transition(database.StatusObtainedMetadata); err != nil {
			return err
		}
		v.DurationSeconds = nil
		if md.DurationSeconds != nil {
			duration := *md.DurationSeconds
			v.DurationSeconds = &duration
		}
		if md.ThumbnailURL != "" {
			thumbnail := md.ThumbnailURL
			v.ThumbnailURL = &thumbnail
		}
		if v.Title == "" {
			v.Title = md.Title
		}
		if v.Author == "" {
			v.Author = md.Uploader
		}
		if v.Description == "" {
			v.Description = md.Description
		}
		if v.PublishedAt == nil && md.UploadDate != nil {
			published := *md.UploadDate
			v.PublishedAt = &published
		}
		v.MetadataError = nil
		v.MetadataErrorMessage = ""
		return nil
	}

	kind := result.Err.Kind
	v.MetadataError = &kind
	v.MetadataErrorMessage = result.Err.Message

	switch kind {
	case metadata.LiveEventNotStarted, metadata.Unavailable, metadata.AgeRestricted:
		t.report.Excluded++
		return v.Transition(database.StatusExcluded)
	case metadata.CopyrightStrike:
		t.report.Excluded++
		return v.Transition(database.StatusCopyrightStrike)
	case metadata.Unknown:
		v.RetryCount++
		t.report.Failed++
		slog.Warn("Metadata fetch failed", "subscription", t.subscription.Name, "remote_id", v.RemoteID, "retry_count", v.RetryCount, "error", result.Err.Message)
		return v.Transition(database.StatusFailed)
	default:
		panic(fmt.Sprintf("tasks: unknown metadata error kind %q", kind))
	}
}

func (t *SyncSubscriptionTask) applyFilters() error {
	filters := t.state.Subscription.Filters
	for _, v := range t.state.VideosByStatus(database.StatusObtainedMetadata) {
		reason := t.deps.Filterer.Reason(v, filters)
		if reason == "" {
			if err := v.Transition(database.StatusPendingDownload); err != nil {
				return err
			}
			continue
		}

		slog.Debug("Video filtered", "subscription", t.subscription.Name, "remote_id", v.RemoteID, "reason", reason)
		if err := v.Transition(database.StatusFiltered); err != nil {
			return err
		}
		t.report.Filtered++
	}
	return nil
}

func (t *SyncSubscriptionTask) applyRetention() error {
	retired := t.deps.Retention.Select(t.state.Videos, t.state.Subscription.Retention, t.now)
	for _, v := range retired {
		if err := v.Transition(database.StatusDeleted); err != nil {
			return err
		}
		if v.FilePath != "" {
			t.report.removedFiles = append(t.report.removedFiles, v.FilePath)
		}
		t.report.Deleted++
	}
	return nil
}

func (t *SyncSubscriptionTask) download(ctx context.Context) error {
	queue := t.state.VideosByStatus(database.StatusPendingDownload)
	if len(queue) == 0 {
		return nil
	}

	destination := t.state.Subscription.Destination
	if err := t.deps.VerifyDestination(destination.Path); err != nil {
		var writeErr *library.WriteAccessError
		if !errors.As(err, &writeErr) {
			return fmt.Errorf("failed to verify destination: %w", err)
		}
		slog.Warn("Skipping downloads", "subscription", t.subscription.Name, "pending", len(queue), "error", err)
		t.report.DownloadsSkipped = true
		return nil
	}
	t.report.target = library.Target{Path: destination.Path, Section: destination.LibrarySection}

	for _, v := range queue {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", errInterrupted, err)
		}
		if err := v.Transition(database.StatusDownloading); err != nil {
			return err
		}

		path, err := t.fetchContent(ctx, v.Link, destination.Path)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", errInterrupted, ctx.Err())
			}
			v.RetryCount++
			t.report.Failed++
			slog.Warn("Download failed", "subscription", t.subscription.Name, "remote_id", v.RemoteID, "retry_count", v.RetryCount, "error", err)
			if err := v.Transition(database.StatusFailed); err != nil {
				return err
			}
			continue
		}

		v.FilePath = path
		if err := v.Transition(database.StatusDownloaded); err != nil {
			return err
		}
		t.report.Downloaded++
		slog.Info("Video downloaded", "subscription", t.subscription.Name, "remote_id", v.RemoteID, "path", path)
	}
	return nil
}

func (t *SyncSubscriptionTask) fetchContent(ctx context.Context, link, destination string) (string, error) {
	if t.opts.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.DownloadTimeout)
		defer cancel()
	}
	return t.deps.Content.Download(ctx, link, destination)
}
