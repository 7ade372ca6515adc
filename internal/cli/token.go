package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jarvisvpn/jvpnd/internal/keygen"
)

var tokenUser int64

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a subscription token for a user",
	Long: `Generates the stateless subscription token and URL for a user.
Runs entirely locally: the token is an HMAC over the user ID, so any
process holding the shared secret can mint or verify it.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenUser, "user", 0, "user ID (required)")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	secret := os.Getenv("VPN_SUBSCRIPTION_SECRET")
	if secret == "" {
		fmt.Fprint(os.Stderr, "Subscription secret: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
		secret = strings.TrimSpace(string(b))
	}
	if secret == "" {
		return fmt.Errorf("subscription secret is required")
	}

	signer := keygen.NewTokenSigner(secret)
	token := signer.Generate(tokenUser)
	fmt.Printf("  Token: %s\n", token)
	if domain := os.Getenv("VPN_SUBSCRIPTION_DOMAIN"); domain != "" {
		fmt.Printf("  URL:   %s\n", signer.SubscriptionURL(tokenUser, domain))
	}
	return nil
}
