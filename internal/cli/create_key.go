package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jarvisvpn/jvpnd/internal/api"
)

var (
	createKeyUser    int64
	createKeyDevice  int
	createKeyName    string
	createKeyServer  string
	createKeyExpires time.Duration
)

var createKeyCmd = &cobra.Command{
	Use:   "create-key",
	Short: "Provision a VLESS key for a user device",
	RunE:  runCreateKey,
}

func init() {
	createKeyCmd.Flags().Int64Var(&createKeyUser, "user", 0, "user ID (required)")
	createKeyCmd.Flags().IntVar(&createKeyDevice, "device", 0, "device ID")
	createKeyCmd.Flags().StringVar(&createKeyName, "name", "", "display name for the key")
	createKeyCmd.Flags().StringVar(&createKeyServer, "server", "", "preferred server ID")
	createKeyCmd.Flags().DurationVar(&createKeyExpires, "expires", 0, "key lifetime (0 = permanent)")
	_ = createKeyCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(createKeyCmd)
}

func runCreateKey(cmd *cobra.Command, args []string) error {
	client, err := api.Dial(apiAddr())
	if err != nil {
		return fmt.Errorf("connecting to daemon: %w (is `jvpnd serve` running?)", err)
	}
	defer client.Close()

	req := &api.CreateKeyRequest{
		UserID:            createKeyUser,
		DeviceID:          createKeyDevice,
		Name:              createKeyName,
		PreferredServerID: createKeyServer,
	}
	if createKeyExpires > 0 {
		req.ExpiresAt = time.Now().Add(createKeyExpires).Unix()
	}

	resp, err := client.CreateKey(context.Background(), req)
	if err != nil {
		return fmt.Errorf("creating key: %w", err)
	}

	fmt.Printf("  Server:       %s\n", resp.ServerID)
	fmt.Printf("  UUID:         %s\n", resp.UUID)
	fmt.Printf("  Key:          %s\n", resp.URL)
	if resp.SubscriptionURL != "" {
		fmt.Printf("  Subscription: %s\n", resp.SubscriptionURL)
	}
	return nil
}
