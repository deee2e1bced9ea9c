// Package root implements the command line interface for Meridian.
package root

import (
	"log"
	"os"

	"github.com/meridian-cd/meridian/app"
	"github.com/meridian-cd/meridian/cmd/deployment"
	"github.com/meridian-cd/meridian/cmd/output"
	"github.com/meridian-cd/meridian/cmd/server"
	"github.com/meridian-cd/meridian/cmd/version"
	meridianconfig "github.com/meridian-cd/meridian/config"
	"github.com/meridian-cd/meridian/logging"
	"github.com/spf13/cobra"
)

var config *meridianconfig.Config

func Execute() {
	if err := NewCmdRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCmdRoot() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "meridian",
		Short: "Policy-gated deployment orchestration",
		Long: `Meridian deploys generated infrastructure artifacts through a
policy-gated release pipeline with per-target locking, approval gates,
automatic rollback, and drift detection.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			config, err = meridianconfig.NewConfigFromFile(configPath)
			if err != nil {
				log.Fatalf("Failed to initialize configuration: %s", err)
			}

			// Initialize colors (CLI flag overrides config)
			colorDisabled := !config.ColorEnabled
			if output.NoColor.IsSet() {
				colorDisabled = true
			}
			output.InitColors(colorDisabled)

			// Initialize logging (CLI flag overrides config)
			logLevel := config.LogLevel
			if logging.LogLevel.IsSet() {
				logLevel = logging.LogLevel.String()
			}
			logging.InitLogging(logLevel)

			if err := app.InitializeWithConfig(config); err != nil {
				log.Fatalf("Failed to initialize application: %s", err)
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "Path to configuration file")
	cmd.PersistentFlags().VarP(logging.LogLevel, "log-level", "l", "Set log verbosity level")
	cmd.PersistentFlags().VarP(output.NoColor, "no-color", "c", "Disable colored terminal output")

	cmd.AddCommand(server.NewCmdServer())
	cmd.AddCommand(deployment.NewCmdDeployment())
	cmd.AddCommand(version.NewCmdVersion())
	return cmd
}
