package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/fieldsync/backend/internal/config"
	"github.com/kimhsiao/fieldsync/backend/internal/db"
	"github.com/kimhsiao/fieldsync/backend/internal/errors"
)

// MigrationStatus is printed by migrate status, up and down.
type MigrationStatus struct {
	Version int            `json:"version"`
	Applied []db.Migration `json:"applied"`
}

// newMigrateCommand creates the migrate command group. Only the sqlite
// backend has a schema.
func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or change the sqlite queue schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the applied schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, opts, func(m *db.Migrator) error { return nil })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, opts, func(m *db.Migrator) error {
				if err := m.Up(); err != nil {
					return errors.Wrap(errors.ErrMigration, "apply migrations", err)
				}
				return nil
			})
		},
	})

	var yes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest schema migration",
		Long:  "Roll back the latest schema migration. Rolling back the first migration drops the queue table and every undelivered submission in it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New(errors.ErrInvalid, "migrate down may discard undelivered submissions; pass --yes to confirm")
			}
			return withMigrator(cmd, opts, func(m *db.Migrator) error {
				if err := m.Down(); err != nil {
					return errors.Wrap(errors.ErrMigration, "roll back migration", err)
				}
				return nil
			})
		},
	}
	down.Flags().BoolVar(&yes, "yes", false, "confirm the rollback")
	cmd.AddCommand(down)

	return cmd
}

// withMigrator opens the sqlite database without applying migrations, runs
// fn and prints the resulting status.
func withMigrator(cmd *cobra.Command, opts *rootOptions, fn func(m *db.Migrator) error) error {
	if opts.cfg.Backend != config.BackendSQLite {
		return errors.New(errors.ErrConfigInvalid, fmt.Sprintf("migrations only apply to the sqlite backend, not %q", opts.cfg.Backend))
	}

	database, err := db.Open(opts.cfg.DataDir)
	if err != nil {
		return errors.Storage("open database", err)
	}
	defer database.Close()

	m := db.NewMigrator(database.DB, db.EmbeddedMigrations())
	if err := m.Initialize(); err != nil {
		return errors.Wrap(errors.ErrMigration, "initialize migrations", err)
	}
	if err := fn(m); err != nil {
		return err
	}

	version, err := m.CurrentVersion()
	if err != nil {
		return errors.Wrap(errors.ErrMigration, "read schema version", err)
	}
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return errors.Wrap(errors.ErrMigration, "list migrations", err)
	}
	if applied == nil {
		applied = []db.Migration{}
	}
	return writeJSON(cmd.OutOrStdout(), MigrationStatus{Version: version, Applied: applied})
}

// newConfigCommand creates the config command group.
func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the fieldsync config file",
		// The file may not exist yet, so skip loading it.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "fieldsync.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New(errors.ErrInvalid, fmt.Sprintf("%s already exists; pass --force to overwrite", path))
			}
			if err := config.Default().Save(path); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}
