package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/skills-gamification/internal/config"
)

// Reconciler re-sums cached balances from the ledger
type Reconciler interface {
	Reconcile(ctx context.Context) (int64, error)
}

// ReconcileWorker runs balance reconciliation on a fixed interval
type ReconcileWorker struct {
	target    Reconciler
	config    *config.ReconcileConfig
	clock     clockwork.Clock
	logger    *slog.Logger
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	running   bool
}

// NewReconcileWorker creates a new reconciliation worker
func NewReconcileWorker(target Reconciler, cfg *config.ReconcileConfig, clock clockwork.Clock, logger *slog.Logger) *ReconcileWorker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileWorker{
		target: target,
		config: cfg,
		clock:  clock,
		logger: logger,
	}
}

// Start schedules the job. Overlapping runs are skipped.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	scheduler, err := gocron.NewScheduler(gocron.WithClock(w.clock))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	_, err = scheduler.NewJob(
		gocron.DurationJob(w.config.Interval),
		gocron.NewTask(func() { w.RunOnce(w.ctx) }),
		gocron.WithName("balance-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		w.cancel()
		return fmt.Errorf("scheduling reconcile job: %w", err)
	}

	scheduler.Start()
	w.scheduler = scheduler
	w.running = true
	w.logger.Info("reconcile worker started", "interval", w.config.Interval)
	return nil
}

// Stop waits for a running reconciliation and stops the scheduler
func (w *ReconcileWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}

	w.cancel()
	err := w.scheduler.Shutdown()
	w.running = false
	w.logger.Info("reconcile worker stopped")
	return err
}

// IsRunning returns whether the worker is currently scheduled
func (w *ReconcileWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single reconciliation (useful for manual triggers and startup)
func (w *ReconcileWorker) RunOnce(ctx context.Context) {
	w.logger.Info("starting reconcile cycle")
	start := w.clock.Now()

	changed, err := w.target.Reconcile(ctx)
	if err != nil {
		w.logger.Error("reconcile cycle failed", "error", err, "duration", w.clock.Since(start))
		return
	}

	w.logger.Info("reconcile cycle completed",
		"duration", w.clock.Since(start),
		"corrected", changed,
	)
}
