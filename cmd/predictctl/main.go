// Command predictctl runs predictions and manages artifact bundles from the
// command line.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/patient-predict-server/internal/config"
	"github.com/patient-predict-server/internal/domain"
)

var (
	configFile string
	verbose    bool

	logger *logrus.Logger
	cfg    *domain.Config
	cfgMgr *config.Manager
)

var rootCmd = &cobra.Command{
	Use:   "predictctl",
	Short: "Patient treatment, recovery and outcome predictions",
	Long: `predictctl loads an artifact bundle and runs the treatment, recovery and
outcome models for a single patient, or manages the bundles stored in the
artifact registry.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logrus.New()
		logger.SetOutput(cmd.ErrOrStderr())
		logger.SetLevel(logrus.WarnLevel)
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		}

		var err error
		if configFile != "" {
			cfgMgr, err = config.NewManagerWithFile(configFile)
		} else {
			cfgMgr, err = config.NewManager()
		}
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfgMgr.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		cfg = cfgMgr.GetConfig()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(predictCmd, formCmd, vocabularyCmd, artifactsCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
