// Package scheduler runs the periodic due-review scan and the point
// reconciliation check.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/studyplan/internal/logger"
)

const (
	scanTag      = "due-review-scan"
	reconcileTag = "point-reconciliation"
)

// Reconciler reports users whose point totals drifted from their reward history
type Reconciler interface {
	Reconcile(ctx context.Context) ([]error, error)
}

// Config holds the job periods
type Config struct {
	ScanInterval      time.Duration
	InitialDelay      time.Duration
	ReconcileInterval time.Duration
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler  *gocron.Scheduler
	scanner    *Scanner
	reconciler Reconciler
	log        *logger.Logger
	cfg        Config
}

// New creates a new scheduler instance. reconciler may be nil.
func New(scanner *Scanner, reconciler Reconciler, log *logger.Logger, cfg Config) *Scheduler {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = time.Hour
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		scanner:    scanner,
		reconciler: reconciler,
		log:        log,
		cfg:        cfg,
	}
}

// Start registers the jobs and runs them in the background until Stop.
// ctx is handed to every run.
func (s *Scheduler) Start(ctx context.Context) error {
	firstRun := time.Now().Add(s.cfg.InitialDelay)

	_, err := s.scheduler.Every(s.cfg.ScanInterval).
		SingletonMode().
		StartAt(firstRun).
		Tag(scanTag).
		Do(func() { s.runScan(ctx) })
	if err != nil {
		return err
	}

	if s.reconciler != nil {
		_, err = s.scheduler.Every(s.cfg.ReconcileInterval).
			SingletonMode().
			StartAt(firstRun).
			Tag(reconcileTag).
			Do(func() { s.runReconcile(ctx) })
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	s.log.Info("scheduler started",
		"scan_interval", s.cfg.ScanInterval.String(),
		"initial_delay", s.cfg.InitialDelay.String(),
		"reconcile_interval", s.cfg.ReconcileInterval.String(),
	)
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.log.Info("scheduler stopped")
}

// RunManualCheck runs one scan immediately, outside the timer.
func (s *Scheduler) RunManualCheck(ctx context.Context) (*ScanResult, error) {
	s.log.Info("manual due review scan requested")
	return s.scanner.RunDueReviewScan(ctx)
}

func (s *Scheduler) runScan(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.scanner.RunDueReviewScan(ctx); err != nil {
		// due topics stay due, the next tick retries them
		s.log.Error("due review scan ended early", "error", err)
	}
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	problems, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.log.Error("point reconciliation failed", "error", err)
		return
	}
	for _, p := range problems {
		s.log.Error("point reconciliation", "kind", "partial_update_inconsistency", "error", p)
	}
	if len(problems) == 0 {
		s.log.Debug("point totals consistent")
	}
}
