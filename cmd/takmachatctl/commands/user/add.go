package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vtakmakov/takmachat/cmd/takmachatctl/cmdutil"
	"github.com/vtakmakov/takmachat/internal/cli/prompt"
)

var addPassword string

var addCmd = &cobra.Command{
	Use:   "add <login>",
	Short: "Register an account",
	Long: `Register a new messenger account. The password is prompted unless
given with --password; the server hashes it with the client-compatible
scheme.

Examples:
  takmachatctl user add alice
  takmachatctl user add alice --password secret`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addPassword, "password", "p", "", "Account password (prompted when omitted)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	login := args[0]

	password := addPassword
	if password == "" {
		var err error
		password, err = prompt.PasswordWithConfirmation("Password", "Confirm password", 1)
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if err := client.RegisterUser(login, password); err != nil {
		return fmt.Errorf("failed to register %s: %w", login, err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Account %s registered", login))
	return nil
}
