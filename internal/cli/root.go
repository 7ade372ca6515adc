package cli

import (
	"github.com/spf13/cobra"

	"github.com/jarvisvpn/jvpnd/internal/logging"
)

var (
	logLevel string
	cfgPath  string
)

var rootCmd = &cobra.Command{
	Use:   "jvpnd",
	Short: "Jarvis VPN — multi-server VLESS/Reality key orchestration",
	Long: `jvpnd provisions VLESS/Reality access keys across a fleet of Xray
servers over SSH, monitors server health, and serves stateless
subscription feeds compatible with v2rayNG, Streisand, and Hiddify.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to config file")
}

func Execute() error {
	return rootCmd.Execute()
}
