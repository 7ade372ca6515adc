package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jarvisvpn/jvpnd/internal/api"
)

var (
	revokeKeyUser   int64
	revokeKeyDevice int
	revokeKeyServer string
)

var revokeKeyCmd = &cobra.Command{
	Use:   "revoke-key",
	Short: "Remove a user device from a server",
	RunE:  runRevokeKey,
}

func init() {
	revokeKeyCmd.Flags().Int64Var(&revokeKeyUser, "user", 0, "user ID (required)")
	revokeKeyCmd.Flags().IntVar(&revokeKeyDevice, "device", 0, "device ID")
	revokeKeyCmd.Flags().StringVar(&revokeKeyServer, "server", "", "server ID (required)")
	_ = revokeKeyCmd.MarkFlagRequired("user")
	_ = revokeKeyCmd.MarkFlagRequired("server")
	rootCmd.AddCommand(revokeKeyCmd)
}

func runRevokeKey(cmd *cobra.Command, args []string) error {
	client, err := api.Dial(apiAddr())
	if err != nil {
		return fmt.Errorf("connecting to daemon: %w (is `jvpnd serve` running?)", err)
	}
	defer client.Close()

	if err := client.RevokeKey(context.Background(), revokeKeyUser, revokeKeyDevice, revokeKeyServer); err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}
	fmt.Printf("  Revoked user %d device %d on %s\n", revokeKeyUser, revokeKeyDevice, revokeKeyServer)
	return nil
}
