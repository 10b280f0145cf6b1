// Package cli wires the TelScan commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/Kalinx99/TelScan/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	log *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telscan",
		Short: "TelScan: Telegram group keyword monitor",
		Long:  "TelScan watches Telegram groups for keyword matches, forwards hits to a webhook, and runs bulk-join and history-export jobs over one persistent session.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "telscan.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
