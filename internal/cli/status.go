package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jarvisvpn/jvpnd/internal/api"
	"github.com/jarvisvpn/jvpnd/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server fleet status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := api.Dial(apiAddr())
	if err != nil {
		return runStatusLocal()
	}
	defer client.Close()

	resp, err := client.GetStatus(context.Background())
	if err != nil {
		return fmt.Errorf("getting status: %w", err)
	}

	fmt.Printf("  Version: %s\n", resp.Version)
	fmt.Printf("  Servers: %d\n", len(resp.Servers))
	fmt.Println()
	for _, s := range resp.Servers {
		fmt.Printf("  %s (%s, %s)\n", s.Name, s.ID, s.Location)
		fmt.Printf("    Status:   %s\n", s.Status)
		if s.LatencyMS > 0 {
			fmt.Printf("    Latency:  %.0fms\n", s.LatencyMS)
		}
		fmt.Printf("    Users:    %d/%d\n", s.CurrentUsers, s.MaxUsers)
		fmt.Printf("    Eligible: %v\n", s.Available)
		fmt.Println()
	}
	return nil
}

func runStatusLocal() error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	fmt.Printf("  Servers: %d (configured)\n", len(cfg.Servers))
	for _, s := range cfg.Servers {
		fmt.Printf("    %s  %s:%d  priority=%d\n", s.ID, s.Host, s.SSHPort, s.Priority)
	}
	fmt.Println()
	fmt.Println("  (daemon not running — start with `jvpnd serve` for live status)")
	return nil
}

// apiAddr resolves the admin API address from config, turning a bare
// listen port into a dialable localhost address.
func apiAddr() string {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "127.0.0.1:50051"
	}
	addr := cfg.APIAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return addr
}
