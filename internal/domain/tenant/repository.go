package tenant

import (
	"context"
)

// Repository defines persistence for tenants. The cycle counter is not written
// here; it only moves inside pairing.Repository.CommitCycle.
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id int64) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error // title, specs and active flag
	ListActive(ctx context.Context) ([]*Tenant, error)
	ListAll(ctx context.Context) ([]*Tenant, error)
}
