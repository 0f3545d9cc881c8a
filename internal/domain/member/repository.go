package member

import (
	"context"
)

// Repository defines the operations for persisting and retrieving Member entities.
type Repository interface {
	Get(ctx context.Context, tenantID, userID int64) (*Member, error)
	Upsert(ctx context.Context, m *Member) error // insert or overwrite cadence, status, opt-in and name
	ListByTenant(ctx context.Context, tenantID int64) ([]*Member, error)
	// ListEligible returns active, opted-in members whose cadence divides next, ordered by user id.
	ListEligible(ctx context.Context, tenantID int64, next int64) ([]*Member, error)
	SetOptIn(ctx context.Context, tenantID, userID int64, optedIn bool) error
	OptInAll(ctx context.Context, tenantID int64) error
}
