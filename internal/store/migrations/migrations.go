// Package migrations embeds the audit schema and applies it with
// golang-migrate for both supported database drivers.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/groupcast/groupcast/internal/store"
)

// FS holds one directory of migrations per driver.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// OpenDB opens a database/sql handle for driver. SQLite parent
// directories are created on demand.
func OpenDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case store.DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return sql.Open("sqlite", dsn+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	case store.DriverPostgres:
		return sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// New builds a migrator over a dedicated connection. Closing the migrator
// closes that connection.
func New(driver, dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(FS, driver)
	if err != nil {
		return nil, fmt.Errorf("load %s migrations: %w", driver, err)
	}

	db, err := OpenDB(driver, dsn)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	var drv database.Driver
	switch driver {
	case store.DriverSQLite:
		drv, err = sqlite.WithInstance(db, &sqlite.Config{})
	case store.DriverPostgres:
		drv, err = postgres.WithInstance(db, &postgres.Config{})
	}
	if err != nil {
		_ = db.Close()
		_ = src.Close()
		return nil, fmt.Errorf("initialize %s driver: %w", driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, drv)
	if err != nil {
		_ = drv.Close()
		_ = src.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Up applies all pending migrations and returns the resulting version.
func Up(driver, dsn string) (uint, error) {
	m, err := New(driver, dsn)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate up: %w", err)
	}
	v, _, err := version(m)
	return v, err
}

// Down rolls back steps migrations (at least one).
func Down(driver, dsn string, steps int) (uint, error) {
	m, err := New(driver, dsn)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if steps <= 0 {
		steps = 1
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate down: %w", err)
	}
	v, _, err := version(m)
	return v, err
}

// Version reports the applied version. A fresh database is version 0.
func Version(driver, dsn string) (uint, bool, error) {
	m, err := New(driver, dsn)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	return version(m)
}

func version(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get version: %w", err)
	}
	return v, dirty, nil
}
