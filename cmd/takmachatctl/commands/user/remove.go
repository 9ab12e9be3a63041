package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vtakmakov/takmachat/cmd/takmachatctl/cmdutil"
	"github.com/vtakmakov/takmachat/internal/cli/prompt"
)

var removeForce bool

var removeCmd = &cobra.Command{
	Use:     "remove <login>",
	Aliases: []string{"rm", "delete"},
	Short:   "Remove an account",
	Long: `Remove an account and everything attached to it: contacts, counters,
history and the stored public key. A live session is evicted and other
clients are told to refresh their rosters.

Examples:
  takmachatctl user remove alice
  takmachatctl user remove alice --force`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVarP(&removeForce, "force", "f", false, "Skip the confirmation prompt")
}

func runRemove(cmd *cobra.Command, args []string) error {
	login := args[0]

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Remove account %s and all its data?", login), removeForce)
	if err != nil {
		return cmdutil.HandleAbort(err)
	}
	if !ok {
		return nil
	}

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if err := client.RemoveUser(login); err != nil {
		return fmt.Errorf("failed to remove %s: %w", login, err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Account %s removed", login))
	return nil
}
