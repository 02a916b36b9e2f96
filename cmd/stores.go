package cmd

import (
	"fmt"

	"github.com/groupcast/groupcast/internal/config"
	"github.com/groupcast/groupcast/internal/store"
	"github.com/groupcast/groupcast/internal/store/migrations"
	"github.com/groupcast/groupcast/internal/store/pg"
	"github.com/groupcast/groupcast/internal/store/sqlite"
)

func storeConfig(cfg *config.Config) store.StoreConfig {
	return store.StoreConfig{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  cfg.SQLitePath(),
		PostgresDSN: cfg.Storage.PostgresDSN,
	}
}

// openAuditStore opens the configured audit backend, applying pending
// migrations first. Driver "none" yields a no-op store.
func openAuditStore(cfg *config.Config) (store.AuditStore, error) {
	sc := storeConfig(cfg)
	if sc.Driver == store.DriverNone || sc.Driver == "" {
		return store.NopAuditStore{}, nil
	}

	dsn, err := sc.DSN()
	if err != nil {
		return nil, err
	}

	st, err := migrations.Check(sc.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("check %s schema: %w", sc.Driver, err)
	}
	if err := st.Err(); err != nil {
		return nil, fmt.Errorf("%w (%s)", err, st.Hint())
	}

	switch sc.Driver {
	case store.DriverSQLite:
		s, err := sqlite.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite audit store: %w", err)
		}
		return s, nil
	case store.DriverPostgres:
		s, err := pg.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres audit store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}
