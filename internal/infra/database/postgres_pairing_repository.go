// internal/infra/database/postgres_pairing_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pairing_bot/internal/domain/member"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/domain/tenant"

	"github.com/lib/pq" // For pq.Array and error codes
)

const uniqueViolation = "23505"

type PostgresPairingRepository struct {
	db *sql.DB
}

var _ pairing.Repository = (*PostgresPairingRepository)(nil)

func NewPostgresPairingRepository(db *sql.DB) *PostgresPairingRepository {
	return &PostgresPairingRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// --- Preference Methods ---

func (r *PostgresPairingRepository) AddPreference(ctx context.Context, p *pairing.Preference) error {
	query := `INSERT INTO preferences (tenant_id, user_a, user_b)
               VALUES ($1, $2, $3)
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, p.TenantID, p.UserA, p.UserB).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return pairing.ErrPreferenceExists
		}
		return fmt.Errorf("error creating preference: %w", err)
	}
	return nil
}

func (r *PostgresPairingRepository) FindPreference(ctx context.Context, tenantID, a, b int64) (*pairing.Preference, error) {
	query := `SELECT id, tenant_id, user_a, user_b, created_at FROM preferences
               WHERE tenant_id = $1 AND ((user_a = $2 AND user_b = $3) OR (user_a = $3 AND user_b = $2))`
	p := &pairing.Preference{}
	err := r.db.QueryRowContext(ctx, query, tenantID, a, b).Scan(&p.ID, &p.TenantID, &p.UserA, &p.UserB, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pairing.ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("error finding preference: %w", err)
	}
	return p, nil
}

func (r *PostgresPairingRepository) ListPreferences(ctx context.Context, tenantID int64) ([]*pairing.Preference, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_a, user_b, created_at FROM preferences WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("error listing preferences: %w", err)
	}
	defer rows.Close()

	prefs := make([]*pairing.Preference, 0)
	for rows.Next() {
		p := &pairing.Preference{}
		if err := rows.Scan(&p.ID, &p.TenantID, &p.UserA, &p.UserB, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning preference row: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preference rows: %w", err)
	}
	return prefs, nil
}

// --- History Methods ---

const recordColumns = `id, tenant_id, user_a, user_b, cycle, outcome, created_at`

func scanRecords(rows *sql.Rows) ([]*pairing.Record, error) {
	records := make([]*pairing.Record, 0)
	for rows.Next() {
		rec := &pairing.Record{}
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.UserA, &rec.UserB, &rec.Cycle, &rec.Outcome, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning pairing record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pairing record rows: %w", err)
	}
	return records, nil
}

func (r *PostgresPairingRepository) queryRecords(ctx context.Context, query string, args ...any) ([]*pairing.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying pairing records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *PostgresPairingRepository) ListHistory(ctx context.Context, tenantID int64) ([]*pairing.Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM pairing_records WHERE tenant_id = $1 ORDER BY cycle, id`, tenantID)
}

func (r *PostgresPairingRepository) ListHistoryForMember(ctx context.Context, tenantID, userID int64) ([]*pairing.Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM pairing_records
         WHERE tenant_id = $1 AND (user_a = $2 OR user_b = $2)
         ORDER BY cycle DESC, id DESC`, tenantID, userID)
}

func (r *PostgresPairingRepository) GetRecord(ctx context.Context, id int64) (*pairing.Record, error) {
	rec := &pairing.Record{}
	err := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM pairing_records WHERE id = $1`, id).
		Scan(&rec.ID, &rec.TenantID, &rec.UserA, &rec.UserB, &rec.Cycle, &rec.Outcome, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pairing.ErrRecordNotFound
		}
		return nil, fmt.Errorf("error getting pairing record: %w", err)
	}
	return rec, nil
}

func (r *PostgresPairingRepository) ListRecordsForCycle(ctx context.Context, tenantID, cycle int64) ([]*pairing.Record, error) {
	return r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM pairing_records WHERE tenant_id = $1 AND cycle = $2 ORDER BY id`, tenantID, cycle)
}

// --- Current Pair Set and Pool ---

func scanCurrentPair(row interface{ Scan(...any) error }) (*pairing.CurrentPair, error) {
	cp := &pairing.CurrentPair{}
	var recordID sql.NullInt64
	if err := row.Scan(&cp.TenantID, &cp.UserA, &cp.UserB, &cp.Cycle, &recordID, &cp.CreatedAt); err != nil {
		return nil, err
	}
	cp.RecordID = recordID.Int64
	return cp, nil
}

func (r *PostgresPairingRepository) ListCurrentPairs(ctx context.Context, tenantID int64) ([]*pairing.CurrentPair, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tenant_id, user_a, user_b, cycle, record_id, created_at FROM current_pairs
         WHERE tenant_id = $1 ORDER BY created_at, user_a`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("error listing current pairs: %w", err)
	}
	defer rows.Close()

	pairs := make([]*pairing.CurrentPair, 0)
	for rows.Next() {
		cp, err := scanCurrentPair(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning current pair row: %w", err)
		}
		pairs = append(pairs, cp)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating current pair rows: %w", err)
	}
	return pairs, nil
}

func (r *PostgresPairingRepository) GetCurrentPair(ctx context.Context, tenantID, userID int64) (*pairing.CurrentPair, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, user_a, user_b, cycle, record_id, created_at FROM current_pairs
         WHERE tenant_id = $1 AND (user_a = $2 OR user_b = $2)`, tenantID, userID)
	cp, err := scanCurrentPair(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pairing.ErrPairNotFound
		}
		return nil, fmt.Errorf("error getting current pair: %w", err)
	}
	return cp, nil
}

func (r *PostgresPairingRepository) ListUnpaired(ctx context.Context, tenantID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM unpaired_members WHERE tenant_id = $1 ORDER BY seq`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("error listing unpaired members: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning unpaired member: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unpaired members: %w", err)
	}
	return ids, nil
}

// --- Composite Writes ---

// CommitCycle applies one matching pass in a single transaction. The counter
// update is a compare-and-set on PreviousCycle.
func (r *PostgresPairingRepository) CommitCycle(ctx context.Context, c pairing.CycleCommit) ([]*pairing.Record, error) {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for cycle commit: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	res, err := txn.ExecContext(ctx,
		`UPDATE tenants SET cycle = $1, updated_at = NOW() WHERE id = $2 AND cycle = $3`,
		c.Cycle, c.TenantID, c.PreviousCycle)
	if err != nil {
		return nil, fmt.Errorf("error advancing cycle counter: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("error reading affected rows: %w", err)
	} else if n == 0 {
		var exists bool
		if err := txn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tenants WHERE id = $1)`, c.TenantID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("error checking tenant: %w", err)
		}
		if !exists {
			return nil, tenant.ErrNotFound
		}
		return nil, pairing.ErrCycleConflict
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	recordStmt, err := txn.PrepareContext(ctx, `INSERT INTO pairing_records (tenant_id, user_a, user_b, cycle, outcome, created_at)
                                                VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer recordStmt.Close()

	if _, err := txn.ExecContext(ctx, `DELETE FROM current_pairs WHERE tenant_id = $1`, c.TenantID); err != nil {
		return nil, fmt.Errorf("error clearing current pairs: %w", err)
	}
	pairStmt, err := txn.PrepareContext(ctx, `INSERT INTO current_pairs (tenant_id, user_a, user_b, cycle, record_id, created_at)
                                              VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare current pair insert: %w", err)
	}
	defer pairStmt.Close()

	records := make([]*pairing.Record, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		rec := &pairing.Record{
			TenantID:  c.TenantID,
			UserA:     p.A,
			UserB:     p.B,
			Cycle:     c.Cycle,
			Outcome:   pairing.OutcomeUnset,
			CreatedAt: createdAt,
		}
		if err := recordStmt.QueryRowContext(ctx, rec.TenantID, rec.UserA, rec.UserB, rec.Cycle, rec.Outcome, createdAt).Scan(&rec.ID); err != nil {
			return nil, fmt.Errorf("error inserting pairing record (%d, %d): %w", p.A, p.B, err)
		}
		if _, err := pairStmt.ExecContext(ctx, c.TenantID, p.A, p.B, c.Cycle, rec.ID, createdAt); err != nil {
			return nil, fmt.Errorf("error inserting current pair (%d, %d): %w", p.A, p.B, err)
		}
		records = append(records, rec)
	}

	if err := replacePool(ctx, txn, c.TenantID, c.Unpaired); err != nil {
		return nil, err
	}

	if len(c.ConsumedPreferences) > 0 {
		if _, err := txn.ExecContext(ctx,
			`DELETE FROM preferences WHERE tenant_id = $1 AND id = ANY($2::bigint[])`,
			c.TenantID, pq.Array(c.ConsumedPreferences)); err != nil {
			return nil, fmt.Errorf("error deleting consumed preferences: %w", err)
		}
	}

	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cycle %d: %w", c.Cycle, err)
	}
	return records, nil
}

func replacePool(ctx context.Context, txn *sql.Tx, tenantID int64, ids []int64) error {
	if _, err := txn.ExecContext(ctx, `DELETE FROM unpaired_members WHERE tenant_id = $1`, tenantID); err != nil {
		return fmt.Errorf("error clearing unpaired pool: %w", err)
	}
	// unnest WITH ORDINALITY keeps the slice order in seq.
	if len(ids) == 0 {
		return nil
	}
	_, err := txn.ExecContext(ctx,
		`INSERT INTO unpaired_members (tenant_id, user_id)
         SELECT $1, u.id FROM unnest($2::bigint[]) WITH ORDINALITY AS u(id, ord) ORDER BY u.ord`,
		tenantID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("error filling unpaired pool: %w", err)
	}
	return nil
}

func (r *PostgresPairingRepository) CommitRematch(ctx context.Context, c pairing.RematchCommit) (*pairing.CurrentPair, error) {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for rematch: %w", err)
	}
	defer txn.Rollback()

	if c.PartnerID == 0 {
		if _, err := txn.ExecContext(ctx,
			`INSERT INTO unpaired_members (tenant_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			c.TenantID, c.UserID); err != nil {
			return nil, fmt.Errorf("error adding member to unpaired pool: %w", err)
		}
		return nil, txn.Commit()
	}

	if _, err := txn.ExecContext(ctx,
		`DELETE FROM unpaired_members WHERE tenant_id = $1 AND user_id = ANY($2::bigint[])`,
		c.TenantID, pq.Array([]int64{c.UserID, c.PartnerID})); err != nil {
		return nil, fmt.Errorf("error removing rematched members from pool: %w", err)
	}
	if c.PreferenceID != 0 {
		if _, err := txn.ExecContext(ctx, `DELETE FROM preferences WHERE id = $1`, c.PreferenceID); err != nil {
			return nil, fmt.Errorf("error consuming preference: %w", err)
		}
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	cp := &pairing.CurrentPair{TenantID: c.TenantID, UserA: c.UserID, UserB: c.PartnerID, Cycle: c.Cycle, CreatedAt: createdAt}
	if _, err := txn.ExecContext(ctx,
		`INSERT INTO current_pairs (tenant_id, user_a, user_b, cycle, record_id, created_at) VALUES ($1, $2, $3, $4, NULL, $5)`,
		cp.TenantID, cp.UserA, cp.UserB, cp.Cycle, cp.CreatedAt); err != nil {
		return nil, fmt.Errorf("error inserting rematched pair: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rematch: %w", err)
	}
	return cp, nil
}

func (r *PostgresPairingRepository) RemoveMember(ctx context.Context, tenantID, userID int64) (*pairing.Departure, error) {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for member removal: %w", err)
	}
	defer txn.Rollback()

	var one int
	err = txn.QueryRowContext(ctx,
		`SELECT 1 FROM members WHERE tenant_id = $1 AND user_id = $2 FOR UPDATE`, tenantID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, member.ErrNotFound
		}
		return nil, fmt.Errorf("error locking member row: %w", err)
	}

	dep := &pairing.Departure{}

	res, err := txn.ExecContext(ctx,
		`DELETE FROM preferences WHERE tenant_id = $1 AND (user_a = $2 OR user_b = $2)`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("error deleting preferences: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("error reading affected rows: %w", err)
	}
	dep.RemovedPreferences = int(n)

	res, err = txn.ExecContext(ctx, `DELETE FROM unpaired_members WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("error removing from unpaired pool: %w", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("error reading affected rows: %w", err)
	}
	dep.WasUnpaired = n > 0

	var a, b int64
	err = txn.QueryRowContext(ctx,
		`DELETE FROM current_pairs WHERE tenant_id = $1 AND (user_a = $2 OR user_b = $2) RETURNING user_a, user_b`,
		tenantID, userID).Scan(&a, &b)
	switch {
	case err == nil:
		dep.PartnerID = pairing.Pair{A: a, B: b}.Partner(userID)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("error dissolving current pair: %w", err)
	}

	if _, err := txn.ExecContext(ctx,
		`UPDATE members SET status = $1, updated_at = NOW() WHERE tenant_id = $2 AND user_id = $3`,
		member.StatusLeft, tenantID, userID); err != nil {
		return nil, fmt.Errorf("error marking member as left: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit member removal: %w", err)
	}
	return dep, nil
}

// --- Feedback Methods ---

const reportColumns = `id, record_id, tenant_id, cycle, reporter_id, subject_id, outcome, status, prompted_at, expires_at, responded_at`

func scanReport(row interface{ Scan(...any) error }) (*pairing.FeedbackReport, error) {
	rep := &pairing.FeedbackReport{}
	err := row.Scan(&rep.ID, &rep.RecordID, &rep.TenantID, &rep.Cycle, &rep.ReporterID, &rep.SubjectID,
		&rep.Outcome, &rep.Status, &rep.PromptedAt, &rep.ExpiresAt, &rep.RespondedAt)
	return rep, err
}

func scanReports(rows *sql.Rows) ([]*pairing.FeedbackReport, error) {
	reports := make([]*pairing.FeedbackReport, 0)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning feedback report row: %w", err)
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback report rows: %w", err)
	}
	return reports, nil
}

func (r *PostgresPairingRepository) CreateFeedbackReports(ctx context.Context, reports []*pairing.FeedbackReport) ([]*pairing.FeedbackReport, error) {
	if len(reports) == 0 {
		return nil, nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction for feedback reports: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO feedback_reports
                                          (record_id, tenant_id, cycle, reporter_id, subject_id, outcome, status, prompted_at, expires_at)
                                          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
                                          ON CONFLICT ON CONSTRAINT feedback_record_reporter_unique DO NOTHING
                                          RETURNING id`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare feedback report insert: %w", err)
	}
	defer stmt.Close()

	created := make([]*pairing.FeedbackReport, 0, len(reports))
	for _, rep := range reports {
		err := stmt.QueryRowContext(ctx, rep.RecordID, rep.TenantID, rep.Cycle, rep.ReporterID, rep.SubjectID,
			rep.Outcome, rep.Status, rep.PromptedAt, rep.ExpiresAt).Scan(&rep.ID)
		if errors.Is(err, sql.ErrNoRows) {
			continue // already prompted
		}
		if err != nil {
			return nil, fmt.Errorf("error inserting feedback report (record %d, reporter %d): %w", rep.RecordID, rep.ReporterID, err)
		}
		created = append(created, rep)
	}

	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit feedback reports: %w", err)
	}
	return created, nil
}

func (r *PostgresPairingRepository) GetFeedbackReport(ctx context.Context, id int64) (*pairing.FeedbackReport, error) {
	rep, err := scanReport(r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM feedback_reports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pairing.ErrReportNotFound
		}
		return nil, fmt.Errorf("error getting feedback report: %w", err)
	}
	return rep, nil
}

func (r *PostgresPairingRepository) FindFeedbackReport(ctx context.Context, recordID, reporterID int64) (*pairing.FeedbackReport, error) {
	rep, err := scanReport(r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM feedback_reports WHERE record_id = $1 AND reporter_id = $2`, recordID, reporterID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pairing.ErrReportNotFound
		}
		return nil, fmt.Errorf("error finding feedback report: %w", err)
	}
	return rep, nil
}

func (r *PostgresPairingRepository) ResolveFeedbackReport(ctx context.Context, rep *pairing.FeedbackReport) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for feedback resolution: %w", err)
	}
	defer txn.Rollback()

	var recordID int64
	err = txn.QueryRowContext(ctx,
		`UPDATE feedback_reports SET outcome = $1, status = $2, responded_at = $3 WHERE id = $4 RETURNING record_id`,
		rep.Outcome, rep.Status, rep.RespondedAt, rep.ID).Scan(&recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pairing.ErrReportNotFound
		}
		return fmt.Errorf("error updating feedback report: %w", err)
	}

	res, err := txn.ExecContext(ctx, `UPDATE pairing_records SET outcome = $1 WHERE id = $2`, rep.Outcome, recordID)
	if err != nil {
		return fmt.Errorf("error updating record outcome: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	} else if n == 0 {
		return pairing.ErrRecordNotFound
	}

	return txn.Commit()
}

func (r *PostgresPairingRepository) ListReportsAbout(ctx context.Context, tenantID, userID int64, limit int) ([]*pairing.FeedbackReport, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM feedback_reports
         WHERE tenant_id = $1 AND subject_id = $2
         ORDER BY cycle DESC, id DESC
         LIMIT NULLIF($3::int, 0)`,
		tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing feedback reports: %w", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

func (r *PostgresPairingRepository) ExpireFeedbackReports(ctx context.Context, now time.Time) ([]*pairing.FeedbackReport, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE feedback_reports SET status = $1, outcome = $2
         WHERE status = $3 AND expires_at <= $4
         RETURNING `+reportColumns,
		pairing.ReportExpired, pairing.OutcomeUnset, pairing.ReportPending, now)
	if err != nil {
		return nil, fmt.Errorf("error expiring feedback reports: %w", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

// ResetTenant wipes the tenant's programme state in one transaction.
func (r *PostgresPairingRepository) ResetTenant(ctx context.Context, tenantID int64, includeMembers bool) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for reset: %w", err)
	}
	defer txn.Rollback()

	res, err := txn.ExecContext(ctx, `UPDATE tenants SET cycle = 0, updated_at = NOW() WHERE id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("error resetting cycle counter: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	} else if n == 0 {
		return tenant.ErrNotFound
	}

	statements := []string{
		`DELETE FROM feedback_reports WHERE tenant_id = $1`,
		`DELETE FROM current_pairs WHERE tenant_id = $1`,
		`DELETE FROM unpaired_members WHERE tenant_id = $1`,
		`DELETE FROM preferences WHERE tenant_id = $1`,
		`DELETE FROM pairing_records WHERE tenant_id = $1`,
	}
	if includeMembers {
		statements = append(statements, `DELETE FROM members WHERE tenant_id = $1`)
	} else {
		statements = append(statements, `UPDATE members SET opted_in = TRUE, updated_at = NOW() WHERE tenant_id = $1`)
	}
	for _, stmt := range statements {
		if _, err := txn.ExecContext(ctx, stmt, tenantID); err != nil {
			return fmt.Errorf("error resetting tenant %d: %w", tenantID, err)
		}
	}

	return txn.Commit()
}
