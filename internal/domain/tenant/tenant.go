// internal/domain/tenant/tenant.go
package tenant

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a tenant id is not registered.
var ErrNotFound = errors.New("tenant not found")

// Tenant is one independent group (a chat) running its own pairing programme.
// ID is the chat identifier announcements are posted to.
type Tenant struct {
	ID           int64
	Title        string
	Cycle        int64  // monotonic, advanced only by a committed cycle
	CycleSpec    string // cron spec for the pairing run
	ReminderSpec string // cron spec for mid-cycle reminders
	OptOutSpec   string // cron spec for opening the opt-out window
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
