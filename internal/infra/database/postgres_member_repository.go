package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pairing_bot/internal/domain/member"
)

type PostgresMemberRepository struct {
	db *sql.DB
}

var _ member.Repository = (*PostgresMemberRepository)(nil)

func NewPostgresMemberRepository(db *sql.DB) *PostgresMemberRepository {
	return &PostgresMemberRepository{db: db}
}

const memberColumns = `tenant_id, user_id, display_name, cadence, status, opted_in, joined_at, updated_at`

func scanMembers(rows *sql.Rows) ([]*member.Member, error) {
	members := make([]*member.Member, 0)
	for rows.Next() {
		m := &member.Member{}
		if err := rows.Scan(&m.TenantID, &m.UserID, &m.DisplayName, &m.Cadence, &m.Status, &m.OptedIn, &m.JoinedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return members, nil
}

func (r *PostgresMemberRepository) Get(ctx context.Context, tenantID, userID int64) (*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE tenant_id = $1 AND user_id = $2`
	m := &member.Member{}
	err := r.db.QueryRowContext(ctx, query, tenantID, userID).
		Scan(&m.TenantID, &m.UserID, &m.DisplayName, &m.Cadence, &m.Status, &m.OptedIn, &m.JoinedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, member.ErrNotFound
		}
		return nil, fmt.Errorf("error getting member: %w", err)
	}
	return m, nil
}

// Upsert keeps the original joined_at of a returning member.
func (r *PostgresMemberRepository) Upsert(ctx context.Context, m *member.Member) error {
	query := `INSERT INTO members (tenant_id, user_id, display_name, cadence, status, opted_in)
               VALUES ($1, $2, $3, $4, $5, $6)
               ON CONFLICT (tenant_id, user_id) DO UPDATE
               SET display_name = EXCLUDED.display_name, cadence = EXCLUDED.cadence,
                   status = EXCLUDED.status, opted_in = EXCLUDED.opted_in, updated_at = NOW()
               RETURNING joined_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, m.TenantID, m.UserID, m.DisplayName, m.Cadence, m.Status, m.OptedIn).
		Scan(&m.JoinedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error upserting member: %w", err)
	}
	return nil
}

func (r *PostgresMemberRepository) ListByTenant(ctx context.Context, tenantID int64) ([]*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE tenant_id = $1 ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("error listing members: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

// ListEligible narrows in SQL and applies member.EligibleFor so both stores share one predicate.
func (r *PostgresMemberRepository) ListEligible(ctx context.Context, tenantID int64, next int64) ([]*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members
               WHERE tenant_id = $1 AND status = $2 AND opted_in = TRUE
               ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query, tenantID, member.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("error listing eligible members: %w", err)
	}
	defer rows.Close()

	candidates, err := scanMembers(rows)
	if err != nil {
		return nil, err
	}
	eligible := candidates[:0]
	for _, m := range candidates {
		if m.EligibleFor(next) {
			eligible = append(eligible, m)
		}
	}
	return eligible, nil
}

func (r *PostgresMemberRepository) SetOptIn(ctx context.Context, tenantID, userID int64, optedIn bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE members SET opted_in = $1, updated_at = NOW() WHERE tenant_id = $2 AND user_id = $3`,
		optedIn, tenantID, userID)
	if err != nil {
		return fmt.Errorf("error setting opt-in: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return member.ErrNotFound
	}
	return nil
}

func (r *PostgresMemberRepository) OptInAll(ctx context.Context, tenantID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET opted_in = TRUE, updated_at = NOW() WHERE tenant_id = $1 AND opted_in = FALSE`,
		tenantID)
	if err != nil {
		return fmt.Errorf("error opting in all members: %w", err)
	}
	return nil
}
