package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/loyalty-rewards/internal/ledger"
	"github.com/ignite/loyalty-rewards/internal/loyalty"
	"github.com/ignite/loyalty-rewards/internal/pkg/distlock"
	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// ErrRunInProgress is returned when another run holds the process flag or
// the shared lock.
var ErrRunInProgress = errors.New("worker: reward run already in progress")

// RunReport summarizes one pipeline execution.
type RunReport struct {
	RunID      uuid.UUID  `json:"run_id"`
	Day        string     `json:"day"`
	Orders     int        `json:"orders"`
	Customers  int        `json:"customers"`
	Pacer      PacerStats `json:"pacer"`
	Purged     int        `json:"purged"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Error      string     `json:"error,omitempty"`
}

// extender is implemented by locks with a renewable lease.
type extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// Runner executes the reward pipeline: yesterday's orders, unique customers,
// paced offers, then ledger purge.
type Runner struct {
	orders      loyalty.OrderSource
	pacer       *Pacer
	ledger      *ledger.Ledger
	lock        distlock.DistLock
	lockTTL     time.Duration
	maxAge      time.Duration
	countryCode string
	now         func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	last    *RunReport
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Lock        distlock.DistLock // nil uses an in-process lock
	LockTTL     time.Duration
	MaxAge      time.Duration // ledger purge age, default 30 days
	CountryCode string        // phone prefix, default 55
}

// NewRunner wires a runner.
func NewRunner(orders loyalty.OrderSource, pacer *Pacer, l *ledger.Ledger, opts RunnerOptions) *Runner {
	if opts.Lock == nil {
		opts.Lock = distlock.NewLocalLock("rewards:run")
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = ledger.DefaultMaxAge
	}
	if opts.CountryCode == "" {
		opts.CountryCode = "55"
	}
	return &Runner{
		orders:      orders,
		pacer:       pacer,
		ledger:      l,
		lock:        opts.Lock,
		lockTTL:     opts.LockTTL,
		maxAge:      opts.MaxAge,
		countryCode: opts.CountryCode,
		now:         time.Now,
	}
}

// SetClock overrides the time source (useful for testing)
func (r *Runner) SetClock(now func() time.Time) { r.now = now }

// Running reports whether a run is executing in this process.
func (r *Runner) Running() bool { return r.running.Load() }

// LastReport returns the most recent finished run, or nil.
func (r *Runner) LastReport() *RunReport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// RunOnce executes the pipeline for the previous UTC day. A failed order
// fetch aborts the run; per-customer failures never do.
func (r *Runner) RunOnce(ctx context.Context) (*RunReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	return r.run(ctx, uuid.New())
}

// Trigger starts a run in the background and returns its id. It fails with
// ErrRunInProgress if this process is already running one.
func (r *Runner) Trigger(ctx context.Context) (uuid.UUID, error) {
	if !r.running.CompareAndSwap(false, true) {
		return uuid.Nil, ErrRunInProgress
	}
	id := uuid.New()
	go func() {
		if _, err := r.run(ctx, id); err != nil {
			logger.Error("triggered run failed", "run_id", id.String(), "error", err)
		}
	}()
	return id, nil
}

// run expects the running flag to be set and clears it on return.
func (r *Runner) run(ctx context.Context, id uuid.UUID) (*RunReport, error) {
	defer r.running.Store(false)

	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !acquired {
		logger.Warn("run lock held elsewhere, skipping run")
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Error("releasing run lock", "error", err)
		}
	}()

	stopRenew := r.renewLease(ctx)
	defer stopRenew()

	report := &RunReport{RunID: id, StartedAt: r.now().UTC()}
	err = r.execute(ctx, report)
	report.FinishedAt = r.now().UTC()
	if err != nil {
		report.Error = err.Error()
	}

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	logger.Info("reward run finished",
		"run_id", report.RunID.String(),
		"day", report.Day,
		"orders", report.Orders,
		"customers", report.Customers,
		"sent", report.Pacer.Sent,
		"purged", report.Purged,
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)
	return report, err
}

func (r *Runner) execute(ctx context.Context, report *RunReport) error {
	day := report.StartedAt.AddDate(0, 0, -1)
	report.Day = day.Format("2006-01-02")
	logger.Info("reward run started", "run_id", report.RunID.String(), "day", report.Day)

	// Under the run lock, so sends are checked against what every instance
	// has written.
	records, err := r.ledger.Reload(ctx)
	if err != nil {
		return err
	}
	logger.Info("ledger reloaded", "records", records)

	orders, err := r.orders.OrdersForDate(ctx, day)
	if err != nil {
		return fmt.Errorf("fetching orders for %s: %w", report.Day, err)
	}
	report.Orders = len(orders)

	customers := loyalty.ExtractCustomers(ctx, orders, loyalty.NewSpendAggregator(r.orders), r.countryCode)
	report.Customers = len(customers)

	report.Pacer = r.pacer.Run(ctx, customers)

	purged, err := r.ledger.PurgeExpired(context.WithoutCancel(ctx), r.now(), r.maxAge)
	report.Purged = purged
	if err != nil {
		logger.Error("ledger purge not persisted", "error", err)
	}
	return nil
}

// renewLease keeps a renewable lock alive for runs that outlast its TTL.
func (r *Runner) renewLease(ctx context.Context) func() {
	ext, ok := r.lock.(extender)
	if !ok || r.lockTTL <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := ext.Extend(context.WithoutCancel(ctx), r.lockTTL); err != nil {
					logger.Error("run lock lease not extended", "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
