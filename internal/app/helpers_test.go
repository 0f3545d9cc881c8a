package app

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"pairing_bot/internal/domain/member"
	"pairing_bot/internal/domain/notify"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/infra/memory"
	"pairing_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	testTenant int64 = -1001
	alice      int64 = 11
	bob        int64 = 12
	carol      int64 = 13
	dave       int64 = 14
	erin       int64 = 15
)

var errDelivery = errors.New("delivery failed")

type sentText struct {
	ID   int64
	Text string
}

type sentPrompt struct {
	UserID int64
	Prompt notify.FeedbackPrompt
}

// fakeNotifier records every delivery and can be told to fail.
type fakeNotifier struct {
	mu            sync.Mutex
	announcements []sentText
	dms           []sentText
	prompts       []sentPrompt
	optOuts       []sentText

	failAnnounce bool
	failDM       bool
	failPrompt   bool
}

var _ notify.Notifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) AnnounceToTenant(_ context.Context, tenantID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAnnounce {
		return errDelivery
	}
	f.announcements = append(f.announcements, sentText{tenantID, text})
	return nil
}

func (f *fakeNotifier) DirectMessage(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDM {
		return errDelivery
	}
	f.dms = append(f.dms, sentText{userID, text})
	return nil
}

func (f *fakeNotifier) PromptFeedback(_ context.Context, userID int64, prompt notify.FeedbackPrompt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPrompt {
		return errDelivery
	}
	f.prompts = append(f.prompts, sentPrompt{userID, prompt})
	return nil
}

func (f *fakeNotifier) PromptOptOut(_ context.Context, tenantID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optOuts = append(f.optOuts, sentText{tenantID, text})
	return nil
}

func (f *fakeNotifier) lastAnnouncement(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.announcements, "no announcement sent")
	return f.announcements[len(f.announcements)-1].Text
}

// reportID finds the report id prompted to reporter for cycle.
func (f *fakeNotifier) reportID(t *testing.T, reporter, cycle int64) int64 {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.prompts {
		if p.UserID == reporter && p.Prompt.Cycle == cycle {
			return p.Prompt.ReportID
		}
	}
	require.FailNow(t, "no feedback prompt", "reporter %d cycle %d", reporter, cycle)
	return 0
}

type testEnv struct {
	store      *memory.Store
	notifier   *fakeNotifier
	locks      *TenantLocks
	membership *MembershipService
	feedback   *FeedbackService
	cycles     *CycleService
	tenants    *TenantService

	mu    sync.Mutex
	clock time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)
	entry := logrus.NewEntry(log)

	env := &testEnv{
		store:    memory.NewStore(),
		notifier: &fakeNotifier{},
		locks:    NewTenantLocks(),
		clock:    time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
	}
	rec := metrics.NewNop()
	members, tenants, pairs := env.store.Members(), env.store.Tenants(), env.store.Pairing()

	env.membership = NewMembershipService(members, tenants, pairs, env.notifier, env.locks, rec, entry)
	env.feedback = NewFeedbackService(members, pairs, env.notifier, env.membership, rec, FeedbackConfig{
		Timeout:            7 * 24 * time.Hour,
		AttritionThreshold: 3,
		PromptConcurrency:  4,
	}, entry)
	matcher := pairing.NewMatcher(rand.New(rand.NewPCG(1, 2)))
	env.cycles = NewCycleService(tenants, members, pairs, env.notifier, env.feedback, matcher, env.locks, rec, entry)
	env.cycles.retryDelay = time.Millisecond
	env.tenants = NewTenantService(tenants, nil, TenantDefaults{CycleSpec: "0 0 * * 1"}, entry)

	env.membership.now = env.now
	env.feedback.now = env.now
	env.cycles.now = env.now

	_, err := env.tenants.Register(context.Background(), testTenant, "test group")
	require.NoError(t, err)
	return env
}

func (e *testEnv) now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = e.clock.Add(d)
}

// seedMembers stores active, opted-in members without triggering rematches.
func (e *testEnv) seedMembers(t *testing.T, ids ...int64) {
	t.Helper()
	names := map[int64]string{alice: "Alice", bob: "Bob", carol: "Carol", dave: "Dave", erin: "Erin"}
	for _, id := range ids {
		require.NoError(t, e.store.Members().Upsert(context.Background(), &member.Member{
			TenantID:    testTenant,
			UserID:      id,
			DisplayName: names[id],
			Cadence:     member.DefaultCadence,
			Status:      member.StatusActive,
			OptedIn:     true,
		}))
	}
}

func (e *testEnv) member(t *testing.T, id int64) *member.Member {
	t.Helper()
	m, err := e.store.Members().Get(context.Background(), testTenant, id)
	require.NoError(t, err)
	return m
}

func (e *testEnv) currentPairs(t *testing.T) []pairing.Pair {
	t.Helper()
	cps, err := e.store.Pairing().ListCurrentPairs(context.Background(), testTenant)
	require.NoError(t, err)
	out := make([]pairing.Pair, 0, len(cps))
	for _, cp := range cps {
		out = append(out, cp.Pair())
	}
	return out
}

func (e *testEnv) unpaired(t *testing.T) []int64 {
	t.Helper()
	ids, err := e.store.Pairing().ListUnpaired(context.Background(), testTenant)
	require.NoError(t, err)
	return ids
}

func containsPair(pairs []pairing.Pair, a, b int64) bool {
	for _, p := range pairs {
		if p.Has(a) && p.Partner(a) == b {
			return true
		}
	}
	return false
}
