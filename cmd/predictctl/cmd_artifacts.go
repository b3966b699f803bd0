package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/patient-predict-server/internal/artifacts"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Manage artifact bundles in the registry",
}

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Validate a bundle directory and store it in the configured registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List the bundles held by the configured source",
	Args:  cobra.NoArgs,
	RunE:  runVersions,
}

func init() {
	artifactsCmd.AddCommand(importCmd, versionsCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	store, err := artifacts.OpenStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	version, err := artifacts.Import(cmd.Context(), artifacts.NewDirSource(args[0]), store, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported bundle %s into %s registry\n", version, cfg.Artifacts.Source)
	return nil
}

func runVersions(cmd *cobra.Command, args []string) error {
	source, err := artifacts.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	versions, err := source.Versions(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tFILES\tCREATED")
	for _, v := range versions {
		fmt.Fprintf(w, "%s\t%d\t%s\n", v.Version, v.Files, v.CreatedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}
