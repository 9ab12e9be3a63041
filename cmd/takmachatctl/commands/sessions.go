package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vtakmakov/takmachat/cmd/takmachatctl/cmdutil"
	"github.com/vtakmakov/takmachat/internal/cli/timeutil"
	"github.com/vtakmakov/takmachat/pkg/server/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active sessions",
	Long: `List the users currently connected to the broker.

Examples:
  takmachatctl sessions
  takmachatctl sessions -o json`,
	RunE: runSessions,
}

// sessionList renders active sessions as a table.
type sessionList []*store.ActiveSession

func (sl sessionList) Headers() []string {
	return []string{"LOGIN", "ADDRESS", "PORT", "ONLINE FOR"}
}

func (sl sessionList) Rows() [][]string {
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		rows = append(rows, []string{
			s.Login,
			s.Address,
			strconv.Itoa(s.Port),
			timeutil.FormatAge(s.LoginTime),
		})
	}
	return rows
}

func runSessions(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	sessions, err := client.Sessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, sessions, len(sessions) == 0, "No active sessions.", sessionList(sessions))
}
