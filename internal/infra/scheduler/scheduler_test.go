package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"pairing_bot/internal/domain/tenant"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type calls struct {
	mu   sync.Mutex
	seen []string
}

func (c *calls) job(name string) TenantJob {
	return func(_ context.Context, tenantID int64) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.seen = append(c.seen, name)
		if tenantID < 0 {
			return errors.New("boom")
		}
		return nil
	}
}

func newTestScheduler(c *calls) *PairingScheduler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewPairingScheduler(Jobs{
		Cycle:    c.job(JobCycle),
		Reminder: c.job(JobReminder),
		OptOut:   c.job(JobOptOut),
	}, "*/15 * * * *", time.Second, logrus.NewEntry(log))
}

func testTenant(id int64) *tenant.Tenant {
	return &tenant.Tenant{ID: id, CycleSpec: "0 0 * * 1", ReminderSpec: "0 0 * * 6", OptOutSpec: "0 0 * * 6", Active: true}
}

func TestRegister_SchedulesAndRuns(t *testing.T) {
	c := &calls{}
	s := newTestScheduler(c)

	require.NoError(t, s.Register(testTenant(7)))
	require.Equal(t, 3, s.Scheduled(7))

	for _, id := range s.entries[7] {
		s.cronEngine.Entry(id).Job.Run()
	}
	assert.ElementsMatch(t, []string{JobCycle, JobReminder, JobOptOut}, c.seen)
}

func TestRegister_ReplacesPreviousEntries(t *testing.T) {
	s := newTestScheduler(&calls{})

	require.NoError(t, s.Register(testTenant(7)))
	require.NoError(t, s.Register(testTenant(7)))
	assert.Equal(t, 3, s.Scheduled(7))
	assert.Len(t, s.cronEngine.Entries(), 3)

	noReminder := testTenant(8)
	noReminder.ReminderSpec = ""
	require.NoError(t, s.Register(noReminder))
	assert.Equal(t, 2, s.Scheduled(8))
}

func TestRegister_InvalidSpecKeepsOldSchedule(t *testing.T) {
	s := newTestScheduler(&calls{})
	require.NoError(t, s.Register(testTenant(7)))

	bad := testTenant(7)
	bad.OptOutSpec = "every tuesday"
	require.Error(t, s.Register(bad))
	assert.Equal(t, 3, s.Scheduled(7))

	empty := testTenant(9)
	empty.CycleSpec = ""
	require.Error(t, s.Register(empty))
	assert.Zero(t, s.Scheduled(9))
}

func TestDeregister(t *testing.T) {
	s := newTestScheduler(&calls{})
	require.NoError(t, s.Register(testTenant(7)))
	require.NoError(t, s.Register(testTenant(8)))

	s.Deregister(7)
	assert.Zero(t, s.Scheduled(7))
	assert.Equal(t, 3, s.Scheduled(8))
	assert.Len(t, s.cronEngine.Entries(), 3)
}

func TestJobFailureIsLoggedNotPropagated(t *testing.T) {
	c := &calls{}
	s := newTestScheduler(c)
	require.NoError(t, s.Register(testTenant(-3)))

	assert.NotPanics(t, func() {
		s.cronEngine.Entry(s.entries[-3][0]).Job.Run()
	})
	assert.Len(t, c.seen, 1)
}

func TestStartAndStop(t *testing.T) {
	c := &calls{}
	s := newTestScheduler(c)
	swept := make(chan struct{}, 1)
	s.jobs.Sweep = func(context.Context) error {
		swept <- struct{}{}
		return nil
	}

	require.NoError(t, s.Start())
	entries := s.cronEngine.Entries()
	require.Len(t, entries, 1)
	entries[0].Job.Run()
	<-swept
	s.Stop()

	bad := newTestScheduler(c)
	bad.sweepSpec = "not a spec"
	bad.jobs.Sweep = func(context.Context) error { return nil }
	require.Error(t, bad.Start())
}
