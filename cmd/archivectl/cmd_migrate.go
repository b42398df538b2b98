package main

import (
	"fmt"

	"archive/internal/repository/postgres"

	"github.com/spf13/cobra"
)

func runMigrateUp(cmd *cobra.Command, args []string) error {
	a, err := openArchive(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := postgres.RunMigrations(a.pool, a.tables, a.logger); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (prefix %q)\n", a.tables.Prefix)
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	if rollbackSteps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}
	a, err := openArchive(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := postgres.RollbackMigrations(a.pool, a.tables, rollbackSteps); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", rollbackSteps)
	return nil
}
