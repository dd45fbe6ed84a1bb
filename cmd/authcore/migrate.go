package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authcore/store/postgres"
)

// migrator is the subset of *postgres.Migrator used by the commands.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Close() error
}

// newMigrator is swapped in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	m, err := postgres.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL account schema",
		Long:  `Apply, roll back or inspect migrations for the postgres account store.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
			cmd.Println("Running migrations...")
			if err := m.Up(); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
			}
			cmd.Println("Migrations completed successfully")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
			cmd.Println("Rolling back migrations...")
			if err := m.Down(); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
			}
			cmd.Println("Rollback completed successfully")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "version").Wrap(err)
			}
			if dirty {
				cmd.Printf("version %d (dirty)\n", version)
				return nil
			}
			cmd.Printf("version %d\n", version)
			return nil
		}),
	})

	return cmd
}

func withMigrator(run func(*cobra.Command, migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		databaseURL := os.Getenv("AUTHCORE_DATABASE_URL")
		if databaseURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("AUTHCORE_DATABASE_URL environment variable is required")
		}

		m, err := newMigrator(databaseURL)
		if err != nil {
			return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
		}
		defer func() {
			if cerr := m.Close(); cerr != nil {
				cmd.PrintErrln("close migrator:", cerr)
			}
		}()

		return run(cmd, m)
	}
}
