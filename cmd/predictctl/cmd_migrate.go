package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patient-predict-server/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Apply, roll back or inspect the Postgres registry schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	runner, err := database.NewMigrationRunner(cfgMgr.GetDatabaseURL(), cfg.Artifacts.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	switch args[0] {
	case "up":
		err = runner.Up(cmd.Context())
	case "down":
		err = runner.Down(cmd.Context())
	}
	if err != nil {
		return err
	}

	status, err := runner.Status()
	if err != nil {
		return err
	}
	state := "ready"
	switch {
	case status.Dirty:
		state = "dirty"
	case status.Pending():
		state = "pending"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registry schema version %d of %d (%s)\n", status.Version, status.Latest, state)
	return nil
}
