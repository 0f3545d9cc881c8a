// Package storage opens the repositories selected by STORE_DRIVER.
package storage

import (
	"context"
	"fmt"

	"pairing_bot/internal/domain/member"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/domain/tenant"
	"pairing_bot/internal/infra/config"
	"pairing_bot/internal/infra/database"
	"pairing_bot/internal/infra/memory"

	"github.com/sirupsen/logrus"
)

// Stores bundles the repositories of one backend.
type Stores struct {
	Tenants tenant.Repository
	Members member.Repository
	Pairing pairing.Repository

	close func() error
}

// Close releases the backend connection, if any.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to the configured backend. Postgres is migrated before use.
func Open(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("Using in-memory store, state is lost on exit")
		return Memory(memory.NewStore()), nil
	case config.DriverPostgres:
		db, err := database.NewPostgresConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("Database connection established, schema applied")
		return &Stores{
			Tenants: database.NewPostgresTenantRepository(db),
			Members: database.NewPostgresMemberRepository(db),
			Pairing: database.NewPostgresPairingRepository(db),
			close:   db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Memory wraps an in-memory store.
func Memory(s *memory.Store) *Stores {
	return &Stores{
		Tenants: s.Tenants(),
		Members: s.Members(),
		Pairing: s.Pairing(),
	}
}
