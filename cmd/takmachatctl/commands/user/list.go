package user

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vtakmakov/takmachat/cmd/takmachatctl/cmdutil"
	"github.com/vtakmakov/takmachat/internal/cli/timeutil"
	"github.com/vtakmakov/takmachat/pkg/server/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Long: `List every registered account.

Examples:
  # List as table
  takmachatctl user list

  # List as JSON
  takmachatctl user list -o json`,
	RunE: runList,
}

// userList renders accounts as a table.
type userList []*store.User

func (ul userList) Headers() []string {
	return []string{"LOGIN", "CREATED", "LAST LOGIN", "HAS KEY"}
}

func (ul userList) Rows() [][]string {
	rows := make([][]string, 0, len(ul))
	for _, u := range ul {
		lastLogin := "-"
		if u.LastLogin != nil {
			lastLogin = timeutil.FormatTime(*u.LastLogin)
		}
		hasKey := "no"
		if u.PublicKey != "" {
			hasKey = "yes"
		}
		rows = append(rows, []string{
			u.Login,
			timeutil.FormatTime(u.CreatedAt),
			lastLogin,
			hasKey,
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	users, err := client.ListUsers()
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, users, len(users) == 0, "No accounts registered.", userList(users))
}
