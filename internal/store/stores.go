package store

import "fmt"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// StoreConfig selects and configures the audit backend.
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// DSN returns the connection string for the configured driver.
func (c StoreConfig) DSN() (string, error) {
	switch c.Driver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return "", fmt.Errorf("storage.sqlite_path is empty")
		}
		return c.SQLitePath, nil
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return "", fmt.Errorf("GROUPCAST_POSTGRES_DSN environment variable is not set")
		}
		return c.PostgresDSN, nil
	case DriverNone, "":
		return "", fmt.Errorf("storage is disabled")
	default:
		return "", fmt.Errorf("unknown storage driver %q", c.Driver)
	}
}
