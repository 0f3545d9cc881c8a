package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pairing_bot/internal/domain/member"
	"pairing_bot/internal/domain/pairing"

	"github.com/stretchr/testify/require"
)

// runCycles runs n scheduled cycles for the test tenant.
func (e *testEnv) runCycles(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := e.cycles.RunCycle(context.Background(), testTenant, TriggerScheduled)
		require.NoError(t, err)
	}
}

func TestRecordResponse_UpdatesRecordOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)
	env.runCycles(t, 2)

	rep, err := env.feedback.RecordResponse(ctx, env.notifier.reportID(t, alice, 1), alice, "happened")
	require.NoError(t, err)
	require.Equal(t, pairing.ReportAnswered, rep.Status)
	require.True(t, rep.RespondedAt.Valid)

	records, err := env.store.Pairing().ListRecordsForCycle(ctx, testTenant, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, pairing.OutcomeHappened, records[0].Outcome)
}

func TestRecordResponse_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)
	env.runCycles(t, 2)
	id := env.notifier.reportID(t, alice, 1)

	_, err := env.feedback.RecordResponse(ctx, id, alice, "maybe")
	require.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = env.feedback.RecordResponse(ctx, id, alice, string(pairing.OutcomeUnset))
	require.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = env.feedback.RecordResponse(ctx, id, bob, "happened")
	require.ErrorIs(t, err, ErrNotReporter)

	_, err = env.feedback.RecordResponse(ctx, 9999, alice, "happened")
	require.ErrorIs(t, err, pairing.ErrReportNotFound)
}

func TestRecordResponse_CanChangeWhileOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)
	env.runCycles(t, 2)
	id := env.notifier.reportID(t, alice, 1)

	_, err := env.feedback.RecordResponse(ctx, id, alice, "scheduled")
	require.NoError(t, err)
	env.advance(24 * time.Hour)
	rep, err := env.feedback.RecordResponse(ctx, id, alice, "happened")
	require.NoError(t, err)
	require.Equal(t, pairing.OutcomeHappened, rep.Outcome)
}

func TestRecordResponse_ClosedAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)
	env.runCycles(t, 2)
	id := env.notifier.reportID(t, alice, 1)

	env.advance(7*24*time.Hour + time.Minute)

	_, err := env.feedback.RecordResponse(ctx, id, alice, "happened")
	require.ErrorIs(t, err, ErrFeedbackClosed)
}

func TestExpireFeedback_ResolvesToUnset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)
	env.runCycles(t, 2)

	n, err := env.feedback.ExpireFeedback(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "nothing is due yet")

	env.advance(8 * 24 * time.Hour)
	n, err = env.feedback.ExpireFeedback(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rep, err := env.store.Pairing().GetFeedbackReport(ctx, env.notifier.reportID(t, bob, 1))
	require.NoError(t, err)
	require.Equal(t, pairing.ReportExpired, rep.Status)
	require.Equal(t, pairing.OutcomeUnset, rep.Outcome)

	_, err = env.feedback.RecordResponse(ctx, rep.ID, bob, "missed")
	require.ErrorIs(t, err, ErrFeedbackClosed)
}

func TestRecordResponse_MismatchKeepsBothReports(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)
	env.runCycles(t, 2)

	_, err := env.feedback.RecordResponse(ctx, env.notifier.reportID(t, alice, 1), alice, "happened")
	require.NoError(t, err)
	_, err = env.feedback.RecordResponse(ctx, env.notifier.reportID(t, bob, 1), bob, "missed")
	require.NoError(t, err)

	byAlice, err := env.store.Pairing().GetFeedbackReport(ctx, env.notifier.reportID(t, alice, 1))
	require.NoError(t, err)
	byBob, err := env.store.Pairing().GetFeedbackReport(ctx, env.notifier.reportID(t, bob, 1))
	require.NoError(t, err)
	require.Equal(t, pairing.OutcomeHappened, byAlice.Outcome)
	require.Equal(t, pairing.OutcomeMissed, byBob.Outcome)

	// One missed report is far from the threshold.
	require.True(t, env.member(t, alice).IsActive())
}

func TestAttrition_ThreeConsecutiveMissesRemoveSubject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)

	for cycle := int64(1); cycle <= 3; cycle++ {
		env.runCycles(t, 1)
		if cycle > 1 {
			_, err := env.feedback.RecordResponse(ctx, env.notifier.reportID(t, bob, cycle-1), bob, "missed")
			require.NoError(t, err)
			require.True(t, env.member(t, alice).IsActive(), "removed too early at cycle %d", cycle)
		}
	}

	env.runCycles(t, 1)
	_, err := env.feedback.RecordResponse(ctx, env.notifier.reportID(t, bob, 3), bob, "missed")
	require.NoError(t, err)

	require.Equal(t, member.StatusLeft, env.member(t, alice).Status)
	require.True(t, env.member(t, bob).IsActive(), "the reporter is never penalized")
	require.Empty(t, env.currentPairs(t))
	require.Equal(t, []int64{bob}, env.unpaired(t))

	var notified bool
	for _, dm := range env.notifier.dms {
		if dm.ID == alice && dm.Text == fmt.Sprintf(attritionText, 3) {
			notified = true
		}
	}
	require.True(t, notified, "the removed member gets a direct notice")
}

func TestAttrition_InterveningHappenedResetsStreak(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)
	env.runCycles(t, 1)

	answers := []string{"missed", "happened", "missed"}
	for i, answer := range answers {
		env.runCycles(t, 1)
		_, err := env.feedback.RecordResponse(ctx, env.notifier.reportID(t, bob, int64(i+1)), bob, answer)
		require.NoError(t, err)
	}

	require.True(t, env.member(t, alice).IsActive())
}

func TestAttrition_ToleratesSubjectWhoAlreadyLeft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)
	env.runCycles(t, 3)
	for cycle := int64(1); cycle <= 2; cycle++ {
		_, err := env.feedback.RecordResponse(ctx, env.notifier.reportID(t, bob, cycle), bob, "missed")
		require.NoError(t, err)
	}

	require.NoError(t, env.membership.Leave(ctx, testTenant, alice))
	env.runCycles(t, 1)

	_, err := env.feedback.RecordResponse(ctx, env.notifier.reportID(t, bob, 3), bob, "missed")
	require.NoError(t, err)
	for _, dm := range env.notifier.dms {
		require.NotEqual(t, alice, dm.ID, "no attrition notice for a member who already left")
	}
}

func TestConsecutiveMisses(t *testing.T) {
	rep := func(o pairing.Outcome) *pairing.FeedbackReport { return &pairing.FeedbackReport{Outcome: o} }

	tests := []struct {
		name    string
		reports []*pairing.FeedbackReport
		want    int
	}{
		{"empty", nil, 0},
		{"all missed", []*pairing.FeedbackReport{rep(pairing.OutcomeMissed), rep(pairing.OutcomeMissed), rep(pairing.OutcomeMissed)}, 3},
		{"newest happened", []*pairing.FeedbackReport{rep(pairing.OutcomeHappened), rep(pairing.OutcomeMissed), rep(pairing.OutcomeMissed)}, 0},
		{"streak broken by no response", []*pairing.FeedbackReport{rep(pairing.OutcomeMissed), rep(pairing.OutcomeUnset), rep(pairing.OutcomeMissed)}, 1},
		{"scheduled breaks streak", []*pairing.FeedbackReport{rep(pairing.OutcomeMissed), rep(pairing.OutcomeMissed), rep(pairing.OutcomeScheduled)}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ConsecutiveMisses(tt.reports))
		})
	}
}

func TestAttrition_OpenReportBreaksStreak(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)
	env.runCycles(t, 5)

	for _, cycle := range []int64{1, 3, 4} {
		_, err := env.feedback.RecordResponse(ctx, env.notifier.reportID(t, bob, cycle), bob, "missed")
		require.NoError(t, err)
	}
	require.True(t, env.member(t, alice).IsActive(), "cycle 2 is still unanswered")

	_, err := env.feedback.RecordResponse(ctx, env.notifier.reportID(t, bob, 2), bob, "missed")
	require.NoError(t, err)
	require.Equal(t, member.StatusLeft, env.member(t, alice).Status)
}

func TestRequestFeedback_UndeliveredPromptsStayPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedMembers(t, alice, bob)
	env.runCycles(t, 1)
	env.notifier.failPrompt = true

	n, err := env.feedback.RequestFeedback(ctx, testTenant, 1)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	records, err := env.store.Pairing().ListRecordsForCycle(ctx, testTenant, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	for _, reporter := range []int64{alice, bob} {
		rep, err := env.store.Pairing().FindFeedbackReport(ctx, records[0].ID, reporter)
		require.NoError(t, err)
		require.Equal(t, pairing.ReportPending, rep.Status)
	}
}
