// Package schedule runs the daily contact and cut jobs on cron specs.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/foxzi/recupero/internal/cut"
	"github.com/foxzi/recupero/internal/dispatch"
)

// ContactRunner runs reminders and scheduled dispatch over active campaigns
type ContactRunner interface {
	RunReminders(ctx context.Context) (*dispatch.ReminderReport, error)
	RunScheduled(ctx context.Context) []*dispatch.Report
}

// CutRunner runs the daily cut over active campaigns
type CutRunner interface {
	RunAll(ctx context.Context) []*cut.Result
}

// Config holds scheduler settings
type Config struct {
	ContactSpec string
	CutSpec     string
	Location    *time.Location
	// JobTimeout bounds one tick; zero means no bound
	JobTimeout time.Duration
}

// Scheduler owns the cron instance and the jobs it triggers
type Scheduler struct {
	cfg     Config
	cron    *cron.Cron
	contact ContactRunner
	cuts    CutRunner
	logger  *slog.Logger

	contactRunning atomic.Bool
	cutRunning     atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler and registers its jobs
func New(cfg Config, contact ContactRunner, cuts CutRunner, logger *slog.Logger) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	s := &Scheduler{
		cfg:     cfg,
		contact: contact,
		cuts:    cuts,
		logger:  logger.With("component", "scheduler"),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	cronLogger := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	if _, err := s.cron.AddFunc(cfg.ContactSpec, func() { s.RunContact(s.ctx) }); err != nil {
		return nil, fmt.Errorf("invalid contact spec %q: %w", cfg.ContactSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.CutSpec, func() { s.RunCut(s.ctx) }); err != nil {
		return nil, fmt.Errorf("invalid cut spec %q: %w", cfg.CutSpec, err)
	}

	return s, nil
}

// Start starts the cron loop
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		"contact_spec", s.cfg.ContactSpec,
		"cut_spec", s.cfg.CutSpec,
		"timezone", s.cfg.Location.String())
}

// Stop stops scheduling, cancels running jobs and waits for them
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunContact runs the reminder job, then scheduled dispatch. A tick that
// arrives while the previous one is still running is skipped.
func (s *Scheduler) RunContact(ctx context.Context) bool {
	if !s.contactRunning.CompareAndSwap(false, true) {
		s.logger.Warn("contact job still running, tick skipped")
		return false
	}
	defer s.contactRunning.Store(false)

	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := s.jobContext(ctx)
	defer cancel()

	start := time.Now()
	s.logger.Info("contact job started")

	reminders, err := s.contact.RunReminders(ctx)
	if err != nil {
		s.logger.Error("reminder job failed", "error", err)
	} else {
		s.logger.Info("reminder job finished",
			"campaigns", reminders.Campaigns,
			"total", reminders.Summary.Total,
			"succeeded", reminders.Summary.Succeeded,
			"failed", reminders.Summary.Failed)
	}

	reports := s.contact.RunScheduled(ctx)
	var total, succeeded, failed int
	for _, r := range reports {
		total += r.Summary.Total
		succeeded += r.Summary.Succeeded
		failed += r.Summary.Failed
	}

	s.logger.Info("contact job finished",
		"campaigns", len(reports),
		"total", total,
		"succeeded", succeeded,
		"failed", failed,
		"duration", time.Since(start))
	return true
}

// RunCut runs the daily cut for every active campaign. Overlapping ticks are
// skipped.
func (s *Scheduler) RunCut(ctx context.Context) bool {
	if !s.cutRunning.CompareAndSwap(false, true) {
		s.logger.Warn("cut job still running, tick skipped")
		return false
	}
	defer s.cutRunning.Store(false)

	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := s.jobContext(ctx)
	defer cancel()

	start := time.Now()
	results := s.cuts.RunAll(ctx)

	rows := 0
	for _, r := range results {
		rows += r.Rows
	}
	s.logger.Info("cut job finished", "campaigns", len(results), "rows", rows, "duration", time.Since(start))
	return true
}

func (s *Scheduler) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.JobTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.JobTimeout)
	}
	return context.WithCancel(ctx)
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
