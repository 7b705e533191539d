package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/trading/application/services"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// actor tags events and logs written by the recovery worker.
const actor = "recovery-worker"

// RecoveryConfig tunes the recovery worker.
type RecoveryConfig struct {
	// Interval is the time between cycles.
	Interval time.Duration
	// StuckThreshold is how long a transaction may go without progress.
	StuckThreshold time.Duration
	// BatchSize caps how many transactions each sweep loads.
	BatchSize int
	// Concurrency caps parallel compensations within a cycle.
	Concurrency int
}

// DefaultRecoveryConfig returns the production defaults.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Interval:       5 * time.Minute,
		StuckThreshold: 10 * time.Minute,
		BatchSize:      100,
		Concurrency:    4,
	}
}

// CycleReport summarizes one recovery cycle.
type CycleReport struct {
	Stuck       int
	Compensated int
	Retried     int
	Escalated   int
	Skipped     int
	Errors      int
}

// RecoveryWorker periodically fails stuck transactions and compensates
// failed ones through the shared reconciler.
type RecoveryWorker struct {
	transactions domain.Repository
	reconciler   *services.Reconciler
	config       RecoveryConfig
	logger       *slog.Logger
	metrics      observability.Metrics
	now          func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRecoveryWorker creates a recovery worker.
func NewRecoveryWorker(transactions domain.Repository, reconciler *services.Reconciler, config RecoveryConfig, logger *slog.Logger, metrics observability.Metrics) *RecoveryWorker {
	defaults := DefaultRecoveryConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.StuckThreshold <= 0 {
		config.StuckThreshold = defaults.StuckThreshold
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &RecoveryWorker{
		transactions: transactions,
		reconciler:   reconciler,
		config:       config,
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
		stopChan:     make(chan struct{}),
	}
}

// Start runs a first cycle immediately and then one per interval until
// Stop is called or ctx ends.
func (w *RecoveryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("recovery worker started",
		"interval", w.config.Interval,
		"stuck_threshold", w.config.StuckThreshold,
		"batch_size", w.config.BatchSize,
	)
	return nil
}

// Stop waits for the current cycle to finish and stops the loop.
func (w *RecoveryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopChan)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("recovery worker stopped")
}

// IsRunning reports whether the loop is active.
func (w *RecoveryWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *RecoveryWorker) run(ctx context.Context) {
	defer w.wg.Done()

	w.cycle(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *RecoveryWorker) cycle(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("recovery cycle failed", "error", err)
	}
}

// RunOnce performs one cycle: the stuck sweep, then the compensation sweep,
// so a transaction found stuck is compensated in the same cycle.
func (w *RecoveryWorker) RunOnce(ctx context.Context) (CycleReport, error) {
	timer := observability.StartTimer(w.metrics, observability.MetricRecoveryDuration)
	ctx = observability.NewRequestContext(ctx, "")
	var report CycleReport

	stuckErr := w.sweepStuck(ctx, &report)
	compErr := w.sweepCompensation(ctx, &report)

	w.metrics.Counter(observability.MetricRecoveryCycles, 1)
	elapsed := timer.Stop()
	if report.Stuck > 0 || report.Compensated > 0 || report.Retried > 0 || report.Escalated > 0 || report.Errors > 0 {
		w.logger.InfoContext(ctx, "recovery cycle finished",
			"stuck", report.Stuck,
			"compensated", report.Compensated,
			"retried", report.Retried,
			"escalated", report.Escalated,
			"errors", report.Errors,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	return report, errors.Join(stuckErr, compErr)
}

func (w *RecoveryWorker) sweepStuck(ctx context.Context, report *CycleReport) error {
	cutoff := w.now().Add(-w.config.StuckThreshold)
	stuck, err := w.transactions.FindStuck(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		return err
	}
	for _, txn := range stuck {
		if err := w.reconciler.ReleaseStuck(ctx, txn, actor); err != nil {
			report.Errors++
			if !errors.Is(err, domain.ErrConcurrentModification) {
				w.logger.ErrorContext(ctx, "release stuck transaction failed", "serial_number", txn.SerialNumber(), "error", err)
			}
			continue
		}
		report.Stuck++
		w.metrics.Counter(observability.MetricRecoveryStuck, 1)
		w.logger.WarnContext(ctx, "stuck transaction failed",
			"serial_number", txn.SerialNumber(),
			"saga_state", txn.SagaState().String(),
		)
	}
	return nil
}

func (w *RecoveryWorker) sweepCompensation(ctx context.Context, report *CycleReport) error {
	pending, err := w.transactions.FindNeedingCompensation(ctx, w.config.BatchSize)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)
	for _, txn := range pending {
		serial := txn.SerialNumber()
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res := w.reconciler.Reconcile(gctx, serial, actor)

			mu.Lock()
			defer mu.Unlock()
			if res.Err != nil {
				report.Errors++
				w.logger.ErrorContext(gctx, "reconcile failed", "serial_number", serial, "error", res.Err)
			}
			switch res.Outcome {
			case services.OutcomeCompensated:
				report.Compensated++
			case services.OutcomeRetry:
				report.Retried++
			case services.OutcomeEscalated:
				report.Escalated++
			default:
				if res.Err == nil {
					report.Skipped++
				}
			}
			return nil
		})
	}
	return g.Wait()
}
