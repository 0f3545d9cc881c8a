package app

import (
	"context"
	"errors"
	"fmt"

	"pairing_bot/internal/domain/tenant"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler owns the per-tenant timers.
type Scheduler interface {
	Register(t *tenant.Tenant) error
	Deregister(tenantID int64)
}

// TenantDefaults are the cron specs applied to newly registered tenants.
type TenantDefaults struct {
	CycleSpec    string
	ReminderSpec string
	OptOutSpec   string
}

// TenantService registers tenants and keeps their timers in step.
type TenantService struct {
	tenantRepo tenant.Repository
	scheduler  Scheduler
	defaults   TenantDefaults
	log        *logrus.Entry
}

// NewTenantService creates the service. sched may be nil when no timers run
// in this process, as in the operator CLI.
func NewTenantService(tr tenant.Repository, sched Scheduler, defaults TenantDefaults, log *logrus.Entry) *TenantService {
	return &TenantService{
		tenantRepo: tr,
		scheduler:  sched,
		defaults:   defaults,
		log:        log.WithField("component", "tenant"),
	}
}

// Register creates a tenant at cycle 0, or reactivates an existing one,
// and starts its timers. Registering an active tenant only refreshes its title.
func (s *TenantService) Register(ctx context.Context, tenantID int64, title string) (*tenant.Tenant, error) {
	if tenantID == 0 {
		return nil, ErrInvalidIdentifier
	}
	logCtx := s.log.WithField("tenant_id", tenantID)

	t, err := s.tenantRepo.Get(ctx, tenantID)
	switch {
	case err == nil:
		if title != "" {
			t.Title = title
		}
		t.Active = true
		if err := s.tenantRepo.Update(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to reactivate tenant: %w", err)
		}
		logCtx.Info("Tenant re-registered")
	case errors.Is(err, tenant.ErrNotFound):
		t = &tenant.Tenant{
			ID:           tenantID,
			Title:        title,
			CycleSpec:    s.defaults.CycleSpec,
			ReminderSpec: s.defaults.ReminderSpec,
			OptOutSpec:   s.defaults.OptOutSpec,
			Active:       true,
		}
		if err := s.tenantRepo.Create(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to create tenant: %w", err)
		}
		logCtx.Info("Tenant registered")
	default:
		return nil, fmt.Errorf("failed to look up tenant: %w", err)
	}

	if s.scheduler != nil {
		if err := s.scheduler.Register(t); err != nil {
			return t, fmt.Errorf("failed to schedule tenant: %w", err)
		}
	}
	return t, nil
}

// UpdateSchedule replaces a tenant's cron specs; empty values keep the current one.
// Every new spec is parsed before the tenant is stored.
func (s *TenantService) UpdateSchedule(ctx context.Context, tenantID int64, title, cycleSpec, reminderSpec, optOutSpec string) (*tenant.Tenant, error) {
	for _, spec := range []string{cycleSpec, reminderSpec, optOutSpec} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, spec, err)
		}
	}

	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}
	if title != "" {
		t.Title = title
	}
	if cycleSpec != "" {
		t.CycleSpec = cycleSpec
	}
	if reminderSpec != "" {
		t.ReminderSpec = reminderSpec
	}
	if optOutSpec != "" {
		t.OptOutSpec = optOutSpec
	}
	if err := s.tenantRepo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}
	if s.scheduler != nil && t.Active {
		if err := s.scheduler.Register(t); err != nil {
			return t, fmt.Errorf("failed to reschedule tenant: %w", err)
		}
	}
	s.log.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"cycle_spec":    t.CycleSpec,
		"reminder_spec": t.ReminderSpec,
		"opt_out_spec":  t.OptOutSpec,
	}).Info("Tenant schedule updated")
	return t, nil
}

// Deregister deactivates a tenant and cancels its timers. Data is kept.
func (s *TenantService) Deregister(ctx context.Context, tenantID int64) error {
	t, err := s.tenantRepo.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant %d: %w", tenantID, err)
	}
	t.Active = false
	if err := s.tenantRepo.Update(ctx, t); err != nil {
		return fmt.Errorf("failed to deactivate tenant: %w", err)
	}
	if s.scheduler != nil {
		s.scheduler.Deregister(tenantID)
	}
	s.log.WithField("tenant_id", tenantID).Info("Tenant deregistered")
	return nil
}

// StartAll schedules every active tenant. Used at process start.
func (s *TenantService) StartAll(ctx context.Context) (int, error) {
	tenants, err := s.tenantRepo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list active tenants: %w", err)
	}
	if s.scheduler == nil {
		return 0, nil
	}
	started := 0
	for _, t := range tenants {
		if err := s.scheduler.Register(t); err != nil {
			s.log.WithError(err).WithField("tenant_id", t.ID).Error("Failed to schedule tenant")
			continue
		}
		started++
	}
	return started, nil
}

// List returns every tenant, active or not.
func (s *TenantService) List(ctx context.Context) ([]*tenant.Tenant, error) {
	return s.tenantRepo.ListAll(ctx)
}
