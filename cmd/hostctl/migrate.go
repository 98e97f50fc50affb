package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openpdv/pdvhost/migrations"
)

func newMigrateCmd(e env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Apply or revert the embedded schema migrations. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigration(cmd, e, func(m migrations.Migrator) error {
				return migrations.Up(m)
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, err := cmd.Flags().GetUint("num-steps")
			if err != nil {
				return err
			}
			yes, err := cmd.Flags().GetBool("yes")
			if err != nil {
				return err
			}
			if steps == 0 && !yes {
				return errors.New("reverting every migration drops all data; pass --yes to confirm")
			}
			return runMigration(cmd, e, func(m migrations.Migrator) error {
				return migrations.Down(m, int(steps))
			})
		},
	}
	down.Flags().UintP("num-steps", "n", 1, "Number of migrations to revert (0 = all)")
	down.Flags().BoolP("yes", "y", false, "Confirm reverting every migration")

	cmd.AddCommand(up, down)
	return cmd
}

func runMigration(cmd *cobra.Command, e env, apply func(migrations.Migrator) error) error {
	url, err := databaseURL(cmd)
	if err != nil {
		return err
	}
	m, err := e.openMigrator(url)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := apply(m); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case err == nil:
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), "schema is empty")
	}
	return nil
}
