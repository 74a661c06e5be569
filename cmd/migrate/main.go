package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/Rrens/med-analyzer/internal/config"
	"github.com/Rrens/med-analyzer/internal/repository/postgres"
	"github.com/Rrens/med-analyzer/internal/repository/sqlstore"
	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the medical analyzer database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migrate.Migrate, _ []string) error {
				return ignoreNoChange(m.Up())
			}),
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back the given number of migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrator(func(m *migrate.Migrate, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return fmt.Errorf("invalid step count: %s", args[0])
					}
					steps = n
				}
				return ignoreNoChange(m.Steps(-steps))
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *migrate.Migrate, _ []string) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("No migrations applied")
					return nil
				}
				if err != nil {
					return fmt.Errorf("failed to read version: %w", err)
				}
				fmt.Printf("Version: %d (dirty: %t)\n", version, dirty)
				return nil
			}),
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withMigrator loads configuration and opens a migrator for the configured driver
func withMigrator(run func(m *migrate.Migrate, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Printf("Using %s database\n", cfg.Database.Driver)

		var m *migrate.Migrate
		if cfg.Database.Driver == "" || cfg.Database.Driver == config.DriverPostgres {
			m, err = postgres.NewMigrator(cfg.Database.MigrateURL())
		} else {
			m, err = sqlstore.NewMigrator(cfg.Database)
		}
		if err != nil {
			return err
		}
		defer m.Close()

		if err := run(m, args); err != nil {
			return err
		}
		fmt.Printf("✅ %s completed\n", cmd.Name())
		return nil
	}
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No changes")
		return nil
	}
	return err
}
