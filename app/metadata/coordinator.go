package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const DefaultWorkers = 3

// Coordinator fans a batch of links out to a bounded pool of extractor
// calls and collects exactly one Result per distinct link
type Coordinator struct {
	extractor Extractor
	workers   int
	timeout   time.Duration
}

func NewCoordinator(extractor Extractor, workers int, timeout time.Duration) *Coordinator {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Coordinator{
		extractor: extractor,
		workers:   workers,
		timeout:   timeout,
	}
}

// FetchBatch blocks until every link has a result. It never fails as a
// whole: extractor errors, timeouts and panics become per-link errors.
func (c *Coordinator) FetchBatch(ctx context.Context, links []string) map[string]Result {
	results := make(map[string]Result, len(links))

	queue := make(chan string, len(links))
	for _, link := range links {
		if _, seen := results[link]; seen {
			continue
		}
		results[link] = Result{Link: link}
		queue <- link
	}
	close(queue)

	if len(results) == 0 {
		return results
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	workers := min(c.workers, len(results))
	start := time.Now()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for link := range queue {
				result := c.fetch(ctx, link)
				if result.Err != nil {
					slog.Debug("Metadata fetch failed", "worker_id", workerID, "link", link, "kind", string(result.Err.Kind), "error", result.Err.Message)
				}
				mu.Lock()
				results[link] = result
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	slog.Debug("Metadata batch completed", "links", len(results), "workers", workers, "duration", time.Since(start))
	return results
}

func (c *Coordinator) fetch(ctx context.Context, link string) (result Result) {
	result.Link = link

	if err := ctx.Err(); err != nil {
		result.Err = &Error{Kind: Unknown, Message: fmt.Sprintf("batch cancelled: %v", err)}
		return result
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result.Metadata = nil
			result.Err = &Error{Kind: Unknown, Message: fmt.Sprintf("extractor panic: %v", r)}
		}
	}()

	md, err := c.extractor.Extract(callCtx, link)
	if err != nil {
		result.Err = classifyError(callCtx, err)
		return result
	}
	if md == nil {
		result.Err = &Error{Kind: Unknown, Message: "extractor returned no metadata"}
		return result
	}
	result.Metadata = md
	return result
}

func classifyError(ctx context.Context, err error) *Error {
	var mdErr *Error
	if errors.As(err, &mdErr) {
		return mdErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: Unknown, Message: "metadata extraction timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: Unknown, Message: "metadata extraction cancelled"}
	}
	return NewError(err.Error())
}
