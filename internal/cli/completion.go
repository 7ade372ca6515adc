package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion",
	Short: "Generate zsh completion script",
	Long: `Generate zsh completion script for jvpnd.

To load completions in your current shell session:

  source <(jvpnd completion)

To load completions for every new session, add to your ~/.zshrc:

  source <(jvpnd completion)

Or write to the zsh completions directory:

  jvpnd completion > "${fpath[1]}/_jvpnd"`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return rootCmd.GenZshCompletion(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
