package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultInterval is the time between tick starts.
const DefaultInterval = 5 * time.Minute

// Ticker runs one tick. *Orchestrator implements it.
type Ticker interface {
	Tick(ctx context.Context, tc TickContext) (TickContext, TickReport)
}

// Scheduler drives ticks at a fixed interval and threads TickContext from one
// tick into the next. Ticks never overlap: a tick that would start while
// another is running is skipped.
type Scheduler struct {
	ticker   Ticker
	interval time.Duration
	logger   *log.Logger
	cron     *cron.Cron

	tickMu sync.Mutex // held for the duration of a tick

	stateMu sync.RWMutex
	tc      TickContext
	last    *TickReport
	skipped int
}

// NewScheduler creates a Scheduler.
func NewScheduler(t Ticker, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval < time.Second {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[scheduler] ", log.LstdFlags)
	}
	return &Scheduler{
		ticker:   t,
		interval: interval,
		logger:   logger,
		cron: cron.New(
			cron.WithLogger(cron.PrintfLogger(logger)),
			cron.WithChain(cron.Recover(cron.PrintfLogger(logger)), cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
		),
	}
}

// Start runs one tick immediately, then one every interval until ctx is
// cancelled. It returns after the running tick, if any, has finished.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		s.RunOnce(ctx)
	}))

	s.logger.Printf("scheduler started (interval=%s)", s.interval)
	s.RunOnce(ctx)
	s.cron.Start()

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop stops scheduling new ticks and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	// wait out a manually triggered tick
	s.tickMu.Lock()
	s.tickMu.Unlock()
	s.logger.Printf("scheduler stopped")
}

// RunOnce runs a single tick unless one is already running. It reports
// whether a tick ran.
func (s *Scheduler) RunOnce(ctx context.Context) (TickReport, bool) {
	if !s.tickMu.TryLock() {
		s.stateMu.Lock()
		s.skipped++
		s.stateMu.Unlock()
		s.logger.Printf("WARN: previous tick still running, skipping")
		return TickReport{}, false
	}
	defer s.tickMu.Unlock()
	if ctx.Err() != nil {
		return TickReport{}, false
	}

	s.stateMu.RLock()
	tc := s.tc
	s.stateMu.RUnlock()

	next, report := s.ticker.Tick(ctx, tc)

	s.stateMu.Lock()
	s.tc = next
	s.last = &report
	s.stateMu.Unlock()
	return report, true
}

// LastReport returns the report of the most recent tick.
func (s *Scheduler) LastReport() (TickReport, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.last == nil {
		return TickReport{}, false
	}
	return *s.last, true
}

// Context returns the context that the next tick will receive.
func (s *Scheduler) Context() TickContext {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.tc
}

// Skipped returns how many ticks were skipped because one was still running.
func (s *Scheduler) Skipped() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.skipped
}
