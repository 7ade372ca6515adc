package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jarvisvpn/jvpnd/internal/api"
	"github.com/jarvisvpn/jvpnd/internal/xraymgr"
)

var (
	statsUser   int64
	statsDevice int
	statsServer string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show traffic counters for a user device",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().Int64Var(&statsUser, "user", 0, "user ID (required)")
	statsCmd.Flags().IntVar(&statsDevice, "device", 0, "device ID")
	statsCmd.Flags().StringVar(&statsServer, "server", "", "server ID (required)")
	_ = statsCmd.MarkFlagRequired("user")
	_ = statsCmd.MarkFlagRequired("server")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := api.Dial(apiAddr())
	if err != nil {
		return fmt.Errorf("connecting to daemon: %w (is `jvpnd serve` running?)", err)
	}
	defer client.Close()

	resp, err := client.GetStats(context.Background(), statsUser, statsDevice, statsServer)
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}

	fmt.Printf("  Identifier: %s\n", resp.Identifier)
	fmt.Printf("  Upload:     %s\n", xraymgr.HumanBytes(resp.UploadBytes))
	fmt.Printf("  Download:   %s\n", xraymgr.HumanBytes(resp.DownloadBytes))
	fmt.Printf("  Total:      %s\n", xraymgr.HumanBytes(resp.TotalBytes))
	return nil
}
