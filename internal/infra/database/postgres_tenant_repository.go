package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pairing_bot/internal/domain/tenant"
)

type PostgresTenantRepository struct {
	db *sql.DB
}

var _ tenant.Repository = (*PostgresTenantRepository)(nil)

func NewPostgresTenantRepository(db *sql.DB) *PostgresTenantRepository {
	return &PostgresTenantRepository{db: db}
}

const tenantColumns = `id, title, cycle, cycle_spec, reminder_spec, opt_out_spec, active, created_at, updated_at`

func scanTenant(row interface{ Scan(...any) error }) (*tenant.Tenant, error) {
	t := &tenant.Tenant{}
	err := row.Scan(&t.ID, &t.Title, &t.Cycle, &t.CycleSpec, &t.ReminderSpec, &t.OptOutSpec, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *PostgresTenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	query := `INSERT INTO tenants (id, title, cycle, cycle_spec, reminder_spec, opt_out_spec, active)
               VALUES ($1, $2, $3, $4, $5, $6, $7)
               RETURNING created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, t.ID, t.Title, t.Cycle, t.CycleSpec, t.ReminderSpec, t.OptOutSpec, t.Active).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating tenant %d: %w", t.ID, err)
	}
	return nil
}

func (r *PostgresTenantRepository) Get(ctx context.Context, id int64) (*tenant.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	t, err := scanTenant(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenant.ErrNotFound
		}
		return nil, fmt.Errorf("error getting tenant by ID: %w", err)
	}
	return t, nil
}

// Update writes title, specs and the active flag. The cycle counter is read back, never written.
func (r *PostgresTenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	query := `UPDATE tenants
               SET title = $1, cycle_spec = $2, reminder_spec = $3, opt_out_spec = $4, active = $5, updated_at = NOW()
               WHERE id = $6
               RETURNING cycle, updated_at`
	err := r.db.QueryRowContext(ctx, query, t.Title, t.CycleSpec, t.ReminderSpec, t.OptOutSpec, t.Active, t.ID).
		Scan(&t.Cycle, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenant.ErrNotFound
		}
		return fmt.Errorf("error updating tenant: %w", err)
	}
	return nil
}

func (r *PostgresTenantRepository) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	return r.list(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE active = TRUE ORDER BY id`)
}

func (r *PostgresTenantRepository) ListAll(ctx context.Context) ([]*tenant.Tenant, error) {
	return r.list(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
}

func (r *PostgresTenantRepository) list(ctx context.Context, query string) ([]*tenant.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*tenant.Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}
	return tenants, nil
}
