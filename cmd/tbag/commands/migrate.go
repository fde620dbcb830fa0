package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbag/core/internal/infrastructure/database"
)

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand(configFile *string) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage the schema of the postgres visit counter (up, down, version)",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run all up migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, *configFile, func(m *database.Migrator) error {
				applied, err := m.Up()
				if err != nil {
					return err
				}
				reportMigration(cmd, "up", applied)
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Run all down migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, *configFile, func(m *database.Migrator) error {
				applied, err := m.Down()
				if err != nil {
					return err
				}
				reportMigration(cmd, "down", applied)
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, *configFile, func(m *database.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", version)
				fmt.Fprintf(cmd.OutOrStdout(), "Dirty: %t\n", dirty)
				return nil
			})
		},
	})

	return migrateCmd
}

func withMigrator(cmd *cobra.Command, configFile string, fn func(*database.Migrator) error) error {
	cfg, appLogger, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	defer appLogger.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	m, err := database.NewMigrator(db)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	// Closing the migrator closes db as well.
	defer m.Close()

	return fn(m)
}

func reportMigration(cmd *cobra.Command, direction string, applied bool) {
	if !applied {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations to run")
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migration %s completed successfully\n", direction)
}
