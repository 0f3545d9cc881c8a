package database

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"pairing_bot/internal/domain/member"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/domain/tenant"

	"github.com/stretchr/testify/require"
)

// openTestDB connects to TEST_DATABASE_URL and registers a throwaway tenant.
// The tests are skipped when the variable is unset.
func openTestDB(t *testing.T) (*sql.DB, int64) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := NewPostgresConnection(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, db))

	tenantID := -time.Now().UnixNano()
	require.NoError(t, NewPostgresTenantRepository(db).Create(ctx, &tenant.Tenant{
		ID: tenantID, Title: "it", CycleSpec: "0 0 * * 1", ReminderSpec: "0 0 * * 6", OptOutSpec: "0 0 * * 6", Active: true,
	}))
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM tenants WHERE id = $1`, tenantID)
		db.Close()
	})
	return db, tenantID
}

func seedMembers(t *testing.T, repo *PostgresMemberRepository, tenantID int64, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, repo.Upsert(context.Background(), &member.Member{
			TenantID: tenantID, UserID: id, Cadence: 1, Status: member.StatusActive, OptedIn: true,
		}))
	}
}

func TestPostgres_MemberEligibility(t *testing.T) {
	db, tid := openTestDB(t)
	ctx := context.Background()
	members := NewPostgresMemberRepository(db)
	seedMembers(t, members, tid, 3, 1, 2)

	require.NoError(t, members.Upsert(ctx, &member.Member{TenantID: tid, UserID: 2, Cadence: 2, Status: member.StatusActive, OptedIn: true}))
	require.NoError(t, members.SetOptIn(ctx, tid, 3, false))

	odd, err := members.ListEligible(ctx, tid, 1)
	require.NoError(t, err)
	require.Len(t, odd, 1)
	require.Equal(t, int64(1), odd[0].UserID)

	even, err := members.ListEligible(ctx, tid, 2)
	require.NoError(t, err)
	require.Len(t, even, 2)

	_, err = members.Get(ctx, tid, 99)
	require.ErrorIs(t, err, member.ErrNotFound)
	require.ErrorIs(t, members.SetOptIn(ctx, tid, 99, true), member.ErrNotFound)
}

func TestPostgres_CycleCommitAndFeedback(t *testing.T) {
	db, tid := openTestDB(t)
	ctx := context.Background()
	members := NewPostgresMemberRepository(db)
	repo := NewPostgresPairingRepository(db)
	seedMembers(t, members, tid, 1, 2, 3)

	pref := &pairing.Preference{TenantID: tid, UserA: 1, UserB: 2}
	require.NoError(t, repo.AddPreference(ctx, pref))
	require.ErrorIs(t, repo.AddPreference(ctx, &pairing.Preference{TenantID: tid, UserA: 2, UserB: 1}), pairing.ErrPreferenceExists)

	records, err := repo.CommitCycle(ctx, pairing.CycleCommit{
		TenantID: tid, PreviousCycle: 0, Cycle: 1,
		Pairs: []pairing.Pair{{A: 1, B: 2}}, Unpaired: []int64{3}, ConsumedPreferences: []int64{pref.ID},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = repo.CommitCycle(ctx, pairing.CycleCommit{TenantID: tid, PreviousCycle: 0, Cycle: 1})
	require.ErrorIs(t, err, pairing.ErrCycleConflict)

	cp, err := repo.GetCurrentPair(ctx, tid, 2)
	require.NoError(t, err)
	require.Equal(t, records[0].ID, cp.RecordID)
	pool, err := repo.ListUnpaired(ctx, tid)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, pool)
	prefs, err := repo.ListPreferences(ctx, tid)
	require.NoError(t, err)
	require.Empty(t, prefs)

	now := time.Now().UTC().Truncate(time.Second)
	created, err := repo.CreateFeedbackReports(ctx, []*pairing.FeedbackReport{
		{RecordID: records[0].ID, TenantID: tid, Cycle: 1, ReporterID: 1, SubjectID: 2, Outcome: pairing.OutcomeUnset, Status: pairing.ReportPending, PromptedAt: now, ExpiresAt: now.Add(time.Hour)},
		{RecordID: records[0].ID, TenantID: tid, Cycle: 1, ReporterID: 2, SubjectID: 1, Outcome: pairing.OutcomeUnset, Status: pairing.ReportPending, PromptedAt: now, ExpiresAt: now.Add(time.Hour)},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	answered := *created[0]
	answered.Outcome = pairing.OutcomeHappened
	answered.Status = pairing.ReportAnswered
	answered.RespondedAt = sql.NullTime{Time: now, Valid: true}
	require.NoError(t, repo.ResolveFeedbackReport(ctx, &answered))

	rec, err := repo.GetRecord(ctx, records[0].ID)
	require.NoError(t, err)
	require.Equal(t, pairing.OutcomeHappened, rec.Outcome)

	expired, err := repo.ExpireFeedbackReports(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, int64(2), expired[0].ReporterID)

	resolved, err := repo.ListReportsAbout(ctx, tid, 1, 3)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.Equal(t, pairing.ReportExpired, resolved[0].Status)
}

func TestPostgres_RemoveMemberAndReset(t *testing.T) {
	db, tid := openTestDB(t)
	ctx := context.Background()
	members := NewPostgresMemberRepository(db)
	repo := NewPostgresPairingRepository(db)
	seedMembers(t, members, tid, 1, 2, 3)

	_, err := repo.CommitCycle(ctx, pairing.CycleCommit{TenantID: tid, Cycle: 1, Pairs: []pairing.Pair{{A: 1, B: 2}}, Unpaired: []int64{3}})
	require.NoError(t, err)

	dep, err := repo.RemoveMember(ctx, tid, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), dep.PartnerID)

	cp, err := repo.CommitRematch(ctx, pairing.RematchCommit{TenantID: tid, Cycle: 1, UserID: 1, PartnerID: 3})
	require.NoError(t, err)
	require.Zero(t, cp.RecordID)
	pool, err := repo.ListUnpaired(ctx, tid)
	require.NoError(t, err)
	require.Empty(t, pool)

	require.NoError(t, repo.ResetTenant(ctx, tid, false))
	history, err := repo.ListHistory(ctx, tid)
	require.NoError(t, err)
	require.Empty(t, history)
	tn, err := NewPostgresTenantRepository(db).Get(ctx, tid)
	require.NoError(t, err)
	require.Zero(t, tn.Cycle)

	_, err = repo.RemoveMember(ctx, tid, 42)
	require.ErrorIs(t, err, member.ErrNotFound)
}
