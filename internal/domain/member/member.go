package member

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no member row exists for (tenant, user).
var ErrNotFound = errors.New("member not found")

// Status is the membership state of a user within a tenant.
type Status string

const (
	StatusActive Status = "active"
	StatusLeft   Status = "left"
)

// DefaultCadence is applied on join and rejoin: meet every cycle.
const DefaultCadence = 1

// Member is one row per (user, tenant). Rows are never deleted on leave;
// Status flips to StatusLeft so pairing history keeps its references.
type Member struct {
	TenantID    int64
	UserID      int64
	DisplayName string
	Cadence     int    // meet every N cycles, always >= 1
	Status      Status // active or left
	OptedIn     bool   // participation flag for the coming cycle
	JoinedAt    time.Time
	UpdatedAt   time.Time
}

// IsActive reports whether the member is currently in the programme.
func (m *Member) IsActive() bool {
	return m.Status == StatusActive
}

// EligibleFor reports whether the member should be matched in cycle next.
// A cadence of N selects the member on every cycle number divisible by N.
func (m *Member) EligibleFor(next int64) bool {
	if !m.IsActive() || !m.OptedIn || m.Cadence <= 0 {
		return false
	}
	return next%int64(m.Cadence) == 0
}
