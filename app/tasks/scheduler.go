package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultTickInterval = 10 * time.Second

var _ SchedulerInterface = (*Scheduler)(nil)

// Scheduler fires a cycle on every tick. Each cycle runs in its own
// goroutine so a long cycle never delays the ticker.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	trigger  chan struct{}

	mu         sync.RWMutex
	lastReport *CycleReport
}

func NewScheduler(runner CycleRunner, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	return &Scheduler{
		runner:   runner,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		trigger:  make(chan struct{}, 1),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.launchCycle("startup")

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.launchCycle("tick")
			case <-s.trigger:
				s.launchCycle("manual")
			}
		}
	}()
}

// Stop cancels running cycles and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// TriggerNow requests an immediate cycle. It reports false when a
// request is already queued or the scheduler is stopped.
func (s *Scheduler) TriggerNow() bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) LastReport() *CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

func (s *Scheduler) launchCycle(reason string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		slog.Debug("Cycle started", "reason", reason)
		report := s.runner.RunCycle(s.ctx)

		s.mu.Lock()
		if s.lastReport == nil || !report.StartedAt.Before(s.lastReport.StartedAt) {
			s.lastReport = &report
		}
		s.mu.Unlock()
	}()
}
