package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// RunFunc is one scheduled unit of work.
type RunFunc func(ctx context.Context) (*RunReport, error)

// Scheduler fires run once a day at a fixed wall-clock time.
type Scheduler struct {
	run    RunFunc
	hour   int
	minute int
	loc    *time.Location
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler parses at ("HH:MM") in loc. A nil loc means local time.
func NewScheduler(run RunFunc, at string, loc *time.Location) (*Scheduler, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule time %q: %w", at, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		run:    run,
		hour:   t.Hour(),
		minute: t.Minute(),
		loc:    loc,
		now:    time.Now,
	}, nil
}

// NextRun returns the first scheduled instant strictly after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

// Start runs the loop in the background until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.NextRun(s.now())
		logger.Info("next reward run scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("scheduler stopped")
			return
		case <-timer.C:
		}

		if _, err := s.run(ctx); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				logger.Warn("scheduled run skipped, another run is active")
			} else {
				logger.Error("scheduled run failed", "error", err)
			}
		}
	}
}
