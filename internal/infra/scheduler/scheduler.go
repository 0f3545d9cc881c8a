package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pairing_bot/internal/domain/tenant"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	JobCycle    = "cycle"
	JobReminder = "reminder"
	JobOptOut   = "opt_out"
	JobSweep    = "feedback_sweep"
)

// TenantJob runs one scheduled action for a tenant.
type TenantJob func(ctx context.Context, tenantID int64) error

// Jobs are the callbacks fired by the scheduler. Nil callbacks are not scheduled.
type Jobs struct {
	Cycle    TenantJob
	Reminder TenantJob
	OptOut   TenantJob
	Sweep    func(ctx context.Context) error
}

// PairingScheduler keeps one set of cron entries per tenant so a tenant can be
// rescheduled or dropped without touching the others.
type PairingScheduler struct {
	cronEngine *cron.Cron
	jobs       Jobs
	logger     *logrus.Entry
	sweepSpec  string
	jobTimeout time.Duration

	mu      sync.Mutex
	entries map[int64][]cron.EntryID
}

func NewPairingScheduler(jobs Jobs, sweepSpec string, jobTimeout time.Duration, logger *logrus.Entry) *PairingScheduler {
	return &PairingScheduler{
		cronEngine: cron.New(cron.WithLocation(time.UTC)),
		jobs:       jobs,
		logger:     logger,
		sweepSpec:  sweepSpec,
		jobTimeout: jobTimeout,
		entries:    make(map[int64][]cron.EntryID),
	}
}

type plannedJob struct {
	name     string
	schedule cron.Schedule
	run      TenantJob
}

// Register (re)schedules the tenant's cycle, reminder and opt-out jobs.
// All specs are parsed before anything changes, so a bad spec leaves the
// previous schedule in place.
func (s *PairingScheduler) Register(t *tenant.Tenant) error {
	if t.CycleSpec == "" {
		return fmt.Errorf("tenant %d: cycle spec is empty", t.ID)
	}
	candidates := []struct {
		name string
		spec string
		run  TenantJob
	}{
		{JobCycle, t.CycleSpec, s.jobs.Cycle},
		{JobReminder, t.ReminderSpec, s.jobs.Reminder},
		{JobOptOut, t.OptOutSpec, s.jobs.OptOut},
	}

	planned := make([]plannedJob, 0, len(candidates))
	for _, c := range candidates {
		if c.spec == "" || c.run == nil {
			continue
		}
		sched, err := cron.ParseStandard(c.spec)
		if err != nil {
			return fmt.Errorf("tenant %d: invalid %s spec %q: %w", t.ID, c.name, c.spec, err)
		}
		planned = append(planned, plannedJob{name: c.name, schedule: sched, run: c.run})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(t.ID)
	ids := make([]cron.EntryID, 0, len(planned))
	for _, p := range planned {
		ids = append(ids, s.cronEngine.Schedule(p.schedule, s.tenantJob(t.ID, p.name, p.run)))
	}
	s.entries[t.ID] = ids

	s.logger.WithFields(logrus.Fields{
		"tenant_id": t.ID,
		"cycle":     t.CycleSpec,
		"reminder":  t.ReminderSpec,
		"opt_out":   t.OptOutSpec,
	}).Info("Tenant jobs scheduled")
	return nil
}

// Deregister cancels every timer of the tenant.
func (s *PairingScheduler) Deregister(tenantID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(tenantID)
	s.logger.WithField("tenant_id", tenantID).Info("Tenant jobs removed")
}

func (s *PairingScheduler) removeLocked(tenantID int64) {
	for _, id := range s.entries[tenantID] {
		s.cronEngine.Remove(id)
	}
	delete(s.entries, tenantID)
}

// Scheduled returns the number of cron entries held for the tenant.
func (s *PairingScheduler) Scheduled(tenantID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[tenantID])
}

func (s *PairingScheduler) tenantJob(tenantID int64, name string, run TenantJob) cron.FuncJob {
	return func() {
		logCtx := s.logger.WithFields(logrus.Fields{"job": name, "tenant_id": tenantID})
		logCtx.Info("Cron job triggered")
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		if err := run(ctx, tenantID); err != nil {
			logCtx.WithError(err).Error("Cron job failed")
		}
	}
}

// Start adds the global feedback sweep and starts the engine.
func (s *PairingScheduler) Start() error {
	s.logger.Info("Starting pairing scheduler...")
	if s.jobs.Sweep != nil {
		_, err := s.cronEngine.AddFunc(s.sweepSpec, func() {
			logCtx := s.logger.WithField("job", JobSweep)
			ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
			defer cancel()
			if err := s.jobs.Sweep(ctx); err != nil {
				logCtx.WithError(err).Error("Cron job failed")
			}
		})
		if err != nil {
			return fmt.Errorf("could not add feedback sweep cron job: %w", err)
		}
	}
	s.cronEngine.Start()
	s.logger.Info("Pairing scheduler started")
	return nil
}

func (s *PairingScheduler) Stop() {
	s.logger.Info("Stopping pairing scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()
	s.logger.Info("Pairing scheduler gracefully stopped")
}
