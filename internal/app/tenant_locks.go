package app

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// TenantLocks serializes cycle runs and rematches per tenant.
// Different tenants never contend.
type TenantLocks struct {
	locks *xsync.Map[int64, *sync.Mutex]
}

func NewTenantLocks() *TenantLocks {
	return &TenantLocks{locks: xsync.NewMap[int64, *sync.Mutex]()}
}

func (l *TenantLocks) get(tenantID int64) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(tenantID, &sync.Mutex{})
	return mu
}

// Lock blocks until the tenant is free and returns the matching unlock.
func (l *TenantLocks) Lock(tenantID int64) func() {
	mu := l.get(tenantID)
	mu.Lock()
	return mu.Unlock
}

// TryLock acquires the tenant without waiting.
func (l *TenantLocks) TryLock(tenantID int64) (func(), bool) {
	mu := l.get(tenantID)
	if !mu.TryLock() {
		return nil, false
	}
	return mu.Unlock, true
}
