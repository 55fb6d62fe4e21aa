/*
scheduler.go - Periodic ledger audit

PURPOSE:
  Runs the ledger Auditor on a cron schedule so an invariant violation
  (balance drift, missing sitting record) is logged even if nobody calls
  GET /api/audit.

DESIGN:
  - robfig/cron drives the schedule ("@every 1h", "0 3 * * *", ...)
  - Overlapping runs are skipped, not queued
  - The last report is kept for inspection

USAGE:
  scheduler := NewAuditScheduler(service.Auditor, "@every 1h", logger)
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()

SEE ALSO:
  - ledger/audit.go: The checks
  - handlers.go: RunAudit endpoint (manual run)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/package-ledger/ledger"
)

// AuditScheduler runs the ledger audit periodically.
type AuditScheduler struct {
	Auditor  *ledger.Auditor
	Schedule string
	Timeout  time.Duration
	Logger   *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	last    ledger.AuditReport
	hasLast bool
}

func NewAuditScheduler(auditor *ledger.Auditor, schedule string, logger *zap.Logger) *AuditScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditScheduler{
		Auditor:  auditor,
		Schedule: schedule,
		Timeout:  5 * time.Minute,
		Logger:   logger,
	}
}

// Start registers the audit with cron and starts it. An invalid schedule
// is returned as an error.
func (s *AuditScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	id, err := c.AddFunc(s.Schedule, func() { s.RunNow(context.Background()) })
	if err != nil {
		return err
	}
	c.Start()

	s.cron = c
	s.entry = id
	s.Logger.Info("audit scheduler started",
		zap.String("schedule", s.Schedule),
		zap.Time("next_run", c.Entry(id).Next))
	return nil
}

// Stop stops the scheduler and waits for a running audit to finish.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.Logger.Info("audit scheduler stopped")
}

// RunNow runs one audit immediately and records it as the last report.
func (s *AuditScheduler) RunNow(ctx context.Context) (ledger.AuditReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	report, err := s.Auditor.Run(ctx)
	if err != nil {
		s.Logger.Error("ledger audit failed", zap.Error(err))
		return report, err
	}

	s.mu.Lock()
	s.last = report
	s.hasLast = true
	s.mu.Unlock()
	return report, nil
}

// LastReport returns the most recent successful audit, if any.
func (s *AuditScheduler) LastReport() (ledger.AuditReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// NextRun returns when the next scheduled audit will occur, or the zero
// time when the scheduler is not running.
func (s *AuditScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}
