package cmd

import (
	"github.com/maxkimambo/taskflow/internal/config"
	flowerrors "github.com/maxkimambo/taskflow/internal/errors"
	"github.com/maxkimambo/taskflow/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	verbose    bool
	jsonLogs   bool
	quiet      bool
	version    = "v0.1.0"

	// cfg is resolved in PersistentPreRunE from --config and the flags.
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:           "taskflow",
		Short:         "Run task flows and map-reduce pipelines over work queues",
		Long:          `Runs flows of remote tasks against named work queues. The bundled commands start an in-process broker and worker so the engine can be exercised from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg = loaded
			logger.Setup(cfg.Log.Verbose, cfg.Log.JSON, cfg.Log.Quiet)
			logger.Op.Debugf("Configuration: %+v", cfg)
			return nil
		},
	}
)

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logger.User.Error(flowerrors.FormatForCLI(err))
	}
	return err
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")

	rootCmd.AddCommand(reduceCmd)
	rootCmd.AddCommand(tasksCmd)
}
