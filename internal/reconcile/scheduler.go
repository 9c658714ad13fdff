package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"stroybot/core/logger"
)

// Scheduler drives the reconciler on a cron schedule. Overlapping runs are
// skipped: there is never more than one cycle in flight.
type Scheduler struct {
	rec  *Reconciler
	cron *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewScheduler registers the cycle under the given cron spec (UTC).
func NewScheduler(rec *Reconciler, spec string) (*Scheduler, error) {
	s := &Scheduler{
		rec:  rec,
		cron: cron.New(cron.WithLocation(time.UTC)),
	}
	if _, err := s.cron.AddFunc(spec, func() { s.runOnce(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the schedule. When runNow is set one cycle fires
// immediately, mirroring the legacy worker's boot behaviour.
func (s *Scheduler) Start(ctx context.Context, runNow bool) {
	if runNow {
		go s.runOnce(ctx)
	}
	s.cron.Start()
	logger.Info(ctx, "reconcile", "scheduler.start")
}

// Stop halts scheduling and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	// A cycle started outside cron (runNow) may still be in flight.
	for {
		s.mu.Lock()
		idle := !s.running
		s.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warn(ctx, "reconcile", "cycle.skipped_overlap")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.rec.RunCycle(ctx); err != nil {
		logger.Error(ctx, "reconcile", "cycle.error",
			slog.String("err", err.Error()),
		)
	}
}
