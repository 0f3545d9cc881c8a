package app

import (
	"context"
	"io"
	"testing"
	"time"

	"pairing_bot/internal/domain/tenant"
	"pairing_bot/internal/infra/memory"
	"pairing_bot/internal/infra/scheduler"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	registered map[int64]*tenant.Tenant
	removed    []int64
}

func (f *fakeScheduler) Register(t *tenant.Tenant) error {
	cp := *t
	f.registered[t.ID] = &cp
	return nil
}

func (f *fakeScheduler) Deregister(tenantID int64) {
	delete(f.registered, tenantID)
	f.removed = append(f.removed, tenantID)
}

func newTenantServiceForTest() (*TenantService, *fakeScheduler, *memory.Store) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := memory.NewStore()
	sched := &fakeScheduler{registered: map[int64]*tenant.Tenant{}}
	svc := NewTenantService(store.Tenants(), sched, TenantDefaults{
		CycleSpec:    "0 0 * * 1",
		ReminderSpec: "0 0 * * 6",
		OptOutSpec:   "0 12 * * 6",
	}, logrus.NewEntry(log))
	return svc, sched, store
}

func TestTenantService_RegisterAppliesDefaultsAndSchedules(t *testing.T) {
	svc, sched, _ := newTenantServiceForTest()
	ctx := context.Background()

	tn, err := svc.Register(ctx, -100, "Book club")
	require.NoError(t, err)
	require.Zero(t, tn.Cycle)
	require.True(t, tn.Active)
	require.Equal(t, "0 0 * * 1", tn.CycleSpec)
	require.Equal(t, "0 12 * * 6", tn.OptOutSpec)
	require.Contains(t, sched.registered, int64(-100))

	_, err = svc.Register(ctx, 0, "nope")
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestTenantService_DeregisterAndReactivate(t *testing.T) {
	svc, sched, store := newTenantServiceForTest()
	ctx := context.Background()

	_, err := svc.Register(ctx, -100, "Book club")
	require.NoError(t, err)
	require.NoError(t, svc.Deregister(ctx, -100))
	require.NotContains(t, sched.registered, int64(-100))

	stored, err := store.Tenants().Get(ctx, -100)
	require.NoError(t, err)
	require.False(t, stored.Active)

	tn, err := svc.Register(ctx, -100, "")
	require.NoError(t, err)
	require.True(t, tn.Active)
	require.Equal(t, "Book club", tn.Title)

	require.ErrorIs(t, svc.Deregister(ctx, -5), tenant.ErrNotFound)
}

func TestTenantService_UpdateScheduleKeepsEmptyFields(t *testing.T) {
	svc, sched, _ := newTenantServiceForTest()
	ctx := context.Background()
	_, err := svc.Register(ctx, -100, "Book club")
	require.NoError(t, err)

	tn, err := svc.UpdateSchedule(ctx, -100, "", "0 9 * * 2", "", "")
	require.NoError(t, err)
	require.Equal(t, "0 9 * * 2", tn.CycleSpec)
	require.Equal(t, "0 0 * * 6", tn.ReminderSpec)
	require.Equal(t, "0 9 * * 2", sched.registered[-100].CycleSpec)
}

func TestTenantService_UpdateScheduleRejectsBadSpecUnchanged(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := memory.NewStore()
	noop := func(context.Context, int64) error { return nil }
	sched := scheduler.NewPairingScheduler(scheduler.Jobs{Cycle: noop, Reminder: noop, OptOut: noop}, "", time.Minute, logrus.NewEntry(log))
	svc := NewTenantService(store.Tenants(), sched, TenantDefaults{CycleSpec: "0 0 * * 1"}, logrus.NewEntry(log))
	ctx := context.Background()

	_, err := svc.Register(ctx, -5, "Runners")
	require.NoError(t, err)
	require.Equal(t, 1, sched.Scheduled(-5))

	_, err = svc.UpdateSchedule(ctx, -5, "Walkers", "not a cron", "", "")
	require.ErrorIs(t, err, ErrInvalidSchedule)

	stored, err := store.Tenants().Get(ctx, -5)
	require.NoError(t, err)
	require.Equal(t, "0 0 * * 1", stored.CycleSpec)
	require.Equal(t, "Runners", stored.Title)
	require.Equal(t, 1, sched.Scheduled(-5))
}

func TestTenantService_StartAllSchedulesActiveOnly(t *testing.T) {
	svc, sched, _ := newTenantServiceForTest()
	ctx := context.Background()
	for _, id := range []int64{-1, -2, -3} {
		_, err := svc.Register(ctx, id, "")
		require.NoError(t, err)
	}
	require.NoError(t, svc.Deregister(ctx, -2))
	sched.registered = map[int64]*tenant.Tenant{}

	n, err := svc.StartAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NotContains(t, sched.registered, int64(-2))

	all, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestTenantLocks(t *testing.T) {
	locks := NewTenantLocks()

	unlock, ok := locks.TryLock(1)
	require.True(t, ok)

	_, ok = locks.TryLock(1)
	require.False(t, ok, "same tenant is busy")

	other, ok := locks.TryLock(2)
	require.True(t, ok, "other tenants are independent")
	other()

	unlock()
	again, ok := locks.TryLock(1)
	require.True(t, ok)
	again()
}
