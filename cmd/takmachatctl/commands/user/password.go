package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vtakmakov/takmachat/cmd/takmachatctl/cmdutil"
	"github.com/vtakmakov/takmachat/internal/cli/prompt"
)

var passwordValue string

var passwordCmd = &cobra.Command{
	Use:     "passwd <login>",
	Aliases: []string{"password"},
	Short:   "Reset an account password",
	Long: `Reset an account's password. A live session is evicted so the user
re-authenticates with the new password.

Examples:
  takmachatctl user passwd alice`,
	Args: cobra.ExactArgs(1),
	RunE: runPassword,
}

func init() {
	passwordCmd.Flags().StringVarP(&passwordValue, "password", "p", "", "New password (prompted when omitted)")
}

func runPassword(cmd *cobra.Command, args []string) error {
	login := args[0]

	password := passwordValue
	if password == "" {
		var err error
		password, err = prompt.PasswordWithConfirmation("New password", "Confirm password", 1)
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if err := client.ResetPassword(login, password); err != nil {
		return fmt.Errorf("failed to reset password for %s: %w", login, err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Password for %s updated", login))
	return nil
}
