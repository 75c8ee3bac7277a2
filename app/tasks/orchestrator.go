package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bthode/engawa/app/database"
	"github.com/bthode/engawa/app/feed"
	"github.com/bthode/engawa/app/library"
)

const (
	DefaultUpdateWindow = 15 * time.Minute
	DefaultMaxRetries   = 5
)

// Dependencies are the collaborators a cycle drives. Filterer, Retention,
// Library, VerifyDestination and RemoveFile get defaults when nil.
type Dependencies struct {
	Store     database.SyncRepository
	Feeds     FeedFetcher
	Metadata  MetadataFetcher
	Content   ContentFetcher
	Library   LibraryUpdater
	Filterer  *feed.Filterer
	Retention *feed.Retention

	VerifyDestination func(path string) error
	RemoveFile        func(path string) error
}

type Options struct {
	UpdateWindow    time.Duration
	MaxRetries      int // 0 retries forever
	DownloadTimeout time.Duration
	RefreshTimeout  time.Duration
	MinFreeSpace    uint64
}

// Orchestrator runs synchronization cycles. A subscription is processed
// by at most one cycle at a time; a cycle that finds it busy skips it.
type Orchestrator struct {
	deps Dependencies
	opts Options
	now  func() time.Time

	mu         sync.Mutex
	inProgress map[int64]struct{}
}

var _ CycleRunner = (*Orchestrator)(nil)

func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	if opts.UpdateWindow <= 0 {
		opts.UpdateWindow = DefaultUpdateWindow
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if deps.Filterer == nil {
		deps.Filterer = feed.NewFilterer()
	}
	if deps.Retention == nil {
		deps.Retention = feed.NewRetention()
	}
	if deps.Library == nil {
		deps.Library = library.NoopUpdater{}
	}
	if deps.VerifyDestination == nil {
		minFree := opts.MinFreeSpace
		deps.VerifyDestination = func(path string) error {
			return library.VerifyWriteAccess(path, minFree)
		}
	}
	if deps.RemoveFile == nil {
		deps.RemoveFile = os.Remove
	}

	return &Orchestrator{
		deps:       deps,
		opts:       opts,
		now:        time.Now,
		inProgress: make(map[int64]struct{}),
	}
}

// RunCycle processes every due subscription sequentially, then asks the
// library to rescan the destinations that received downloads.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleReport {
	start := o.now().UTC()
	report := CycleReport{ID: uuid.NewString(), StartedAt: start}

	subs, err := o.deps.Store.GetDueSubscriptions(ctx, start.Add(-o.opts.UpdateWindow))
	if err != nil {
		slog.Error("Failed to get due subscriptions", "cycle_id", report.ID, "error", err)
		report.Error = err.Error()
		report.Duration = time.Since(start)
		return report
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			slog.Debug("Cycle cancelled", "cycle_id", report.ID, "remaining", len(subs)-len(report.Subscriptions))
			break
		}

		if !o.acquire(sub.ID) {
			slog.Debug("Subscription already in progress, skipping", "subscription", sub.Name)
			report.Subscriptions = append(report.Subscriptions, SubscriptionReport{
				SubscriptionID: sub.ID,
				Name:           sub.Name,
				Outcome:        OutcomeSkipped,
				Error:          "already in progress",
			})
			continue
		}

		subReport := o.runUnit(ctx, sub, start)
		o.release(sub.ID)

		report.Subscriptions = append(report.Subscriptions, subReport)
	}

	report.LibraryRefreshed = o.refreshLibrary(ctx, report.Subscriptions)
	report.Duration = time.Since(start)

	slog.Info("Cycle completed",
		"cycle_id", report.ID,
		"subscriptions", len(report.Subscriptions),
		"synced", report.Count(OutcomeSynced),
		"skipped", report.Count(OutcomeSkipped),
		"failed", report.Count(OutcomeFailed),
		"downloaded", report.Downloaded(),
		"duration", report.Duration)

	return report
}

func (o *Orchestrator) acquire(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inProgress[id]; busy {
		return false
	}
	o.inProgress[id] = struct{}{}
	return true
}

func (o *Orchestrator) release(id int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inProgress, id)
}

func (o *Orchestrator) runUnit(ctx context.Context, sub database.Subscription, start time.Time) SubscriptionReport {
	task := NewSyncSubscriptionTask(sub, &o.deps, o.opts, start)
	task.Start()

	err := execute(ctx, task)
	report := task.Report()
	report.Duration = task.GetDuration()

	switch {
	case err == nil:
		slog.Info("Task completed",
			"type", string(task.GetType()),
			"subscription", sub.Name,
			"new", report.New,
			"excluded", report.Excluded,
			"filtered", report.Filtered,
			"downloaded", report.Downloaded,
			"deleted", report.Deleted,
			"failed", report.Failed,
			"duration", report.Duration)
		o.removeFiles(sub.Name, report.removedFiles)
	case errors.Is(err, errNotDue):
		report = SubscriptionReport{SubscriptionID: sub.ID, Name: sub.Name, Outcome: OutcomeSkipped, Error: err.Error(), Duration: report.Duration}
		slog.Debug("Subscription synced by another cycle, skipping", "subscription", sub.Name)
	case errors.Is(err, errInterrupted):
		report = SubscriptionReport{SubscriptionID: sub.ID, Name: sub.Name, Outcome: OutcomeSkipped, Error: err.Error(), Duration: report.Duration}
		slog.Info("Subscription sync interrupted, discarding unit", "subscription", sub.Name)
	case errors.Is(err, errFeedUnavailable):
		report = SubscriptionReport{SubscriptionID: sub.ID, Name: sub.Name, Outcome: OutcomeSkipped, Error: err.Error(), Duration: report.Duration}
		slog.Warn("Feed fetch failed, skipping subscription", "subscription", sub.Name, "error", err)
	default:
		report = SubscriptionReport{SubscriptionID: sub.ID, Name: sub.Name, Outcome: OutcomeFailed, Error: err.Error(), Duration: report.Duration}
		slog.Error("Task failed", "type", string(task.GetType()), "id", task.GetID(), "subscription", sub.Name, "error", err)
	}

	return report
}

// execute runs the task, turning a panic into an error so one unit cannot
// take down the cycle.
func execute(ctx context.Context, task TaskInterface) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Recovered task panic", "id", task.GetID(), "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Execute(ctx)
}

func (o *Orchestrator) removeFiles(subscription string, paths []string) {
	for _, path := range paths {
		if err := o.deps.RemoveFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove retired file", "subscription", subscription, "path", path, "error", err)
			continue
		}
		slog.Debug("Removed retired file", "subscription", subscription, "path", path)
	}
}

func (o *Orchestrator) refreshLibrary(ctx context.Context, reports []SubscriptionReport) bool {
	var targets []library.Target
	seen := make(map[library.Target]struct{})
	for _, r := range reports {
		if r.Outcome != OutcomeSynced || r.Downloaded == 0 {
			continue
		}
		if _, dup := seen[r.target]; dup {
			continue
		}
		seen[r.target] = struct{}{}
		targets = append(targets, r.target)
	}
	if len(targets) == 0 {
		return false
	}

	refreshCtx := context.WithoutCancel(ctx)
	if o.opts.RefreshTimeout > 0 {
		var cancel context.CancelFunc
		refreshCtx, cancel = context.WithTimeout(refreshCtx, o.opts.RefreshTimeout)
		defer cancel()
	}

	if err := o.deps.Library.Refresh(refreshCtx, targets); err != nil {
		slog.Warn("Library refresh failed", "targets", len(targets), "error", err)
		return false
	}
	slog.Debug("Library refresh requested", "targets", len(targets))
	return true
}
