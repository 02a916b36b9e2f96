package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/groupcast/groupcast/internal/config"
	"github.com/groupcast/groupcast/internal/store/migrations"
)

// resolveStorage returns the driver and DSN of the configured audit store.
// The postgres DSN comes from environment only (secret, never in config.json).
func resolveStorage() (driver, dsn string, err error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return "", "", fmt.Errorf("load config: %w", err)
	}
	sc := storeConfig(cfg)
	dsn, err = sc.DSN()
	if err != nil {
		return "", "", err
	}
	return sc.Driver, dsn, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Audit database migration management",
	}

	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	cmd.AddCommand(migrateForceCmd())

	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, dsn, err := resolveStorage()
			if err != nil {
				return err
			}
			v, err := migrations.Up(driver, dsn)
			if err != nil {
				return err
			}
			slog.Info("migration complete", "driver", driver, "version", v)
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, dsn, err := resolveStorage()
			if err != nil {
				return err
			}
			v, err := migrations.Down(driver, dsn, steps)
			if err != nil {
				return err
			}
			slog.Info("rollback complete", "driver", driver, "version", v)
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			driver, dsn, err := resolveStorage()
			if err != nil {
				return err
			}
			v, dirty, err := migrations.Version(driver, dsn)
			if err != nil {
				return err
			}
			fmt.Printf("driver: %s, version: %d, dirty: %v\n", driver, v, dirty)
			return nil
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force set migration version (no migration applied)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			driver, dsn, err := resolveStorage()
			if err != nil {
				return err
			}
			m, err := migrations.New(driver, dsn)
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Force(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("force version: %w", err)
			}
			slog.Info("forced version", "driver", driver, "version", version)
			return nil
		},
	}
}
