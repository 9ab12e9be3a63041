// Package user implements the takmachatctl user management commands.
package user

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for user management.
var Cmd = &cobra.Command{
	Use:   "user",
	Short: "Manage messenger accounts",
	Long: `Manage takmachat accounts: register, remove, reset passwords.

Use "takmachatctl user [command] --help" for more information.`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(removeCmd)
	Cmd.AddCommand(passwordCmd)
}
