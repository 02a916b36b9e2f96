package migrations

import (
	"errors"
	"fmt"
)

// RequiredVersion is the schema version this binary writes against.
const RequiredVersion uint = 1

var (
	ErrSchemaDirty = errors.New("audit schema is dirty (failed migration)")
	ErrSchemaAhead = errors.New("audit schema is newer than this binary")
)

// SchemaStatus compares the applied schema with RequiredVersion.
type SchemaStatus struct {
	Driver          string
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
}

func (s *SchemaStatus) Compatible() bool {
	return !s.Dirty && s.CurrentVersion == s.RequiredVersion
}

func (s *SchemaStatus) NeedsMigration() bool {
	return !s.Dirty && s.CurrentVersion < s.RequiredVersion
}

func (s *SchemaStatus) Ahead() bool {
	return s.CurrentVersion > s.RequiredVersion
}

// Err reports the blocking condition, if any. An outdated schema is not an
// error since the stores migrate on open.
func (s *SchemaStatus) Err() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("%w: %s v%d", ErrSchemaDirty, s.Driver, s.CurrentVersion)
	case s.Ahead():
		return fmt.Errorf("%w: %s v%d, binary requires v%d", ErrSchemaAhead, s.Driver, s.CurrentVersion, s.RequiredVersion)
	default:
		return nil
	}
}

// Hint returns the operator action for the status.
func (s *SchemaStatus) Hint() string {
	switch {
	case s.Dirty:
		return fmt.Sprintf("run: groupcast migrate force %d", max(int(s.CurrentVersion)-1, 0))
	case s.Ahead():
		return "upgrade the groupcast binary"
	case s.NeedsMigration():
		return "run: groupcast migrate up"
	default:
		return "up to date"
	}
}

// Check reads the applied version without migrating.
func Check(driver, dsn string) (*SchemaStatus, error) {
	v, dirty, err := Version(driver, dsn)
	if err != nil {
		return nil, err
	}
	return &SchemaStatus{
		Driver:          driver,
		CurrentVersion:  v,
		RequiredVersion: RequiredVersion,
		Dirty:           dirty,
	}, nil
}
