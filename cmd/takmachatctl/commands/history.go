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

var historyLogin string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show login history",
	Long: `Show the server's authentication history, newest first.

Examples:
  # Full history
  takmachatctl history

  # One account only
  takmachatctl history --login alice`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyLogin, "login", "", "Filter to a single account")
}

// historyList renders login history as a table.
type historyList []*store.LoginHistory

func (hl historyList) Headers() []string {
	return []string{"LOGIN", "ADDRESS", "PORT", "WHEN"}
}

func (hl historyList) Rows() [][]string {
	rows := make([][]string, 0, len(hl))
	for _, e := range hl {
		rows = append(rows, []string{
			e.Login,
			e.Address,
			strconv.Itoa(e.Port),
			timeutil.FormatTime(e.When),
		})
	}
	return rows
}

func runHistory(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	entries, err := client.History(historyLogin)
	if err != nil {
		return fmt.Errorf("failed to fetch history: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, entries, len(entries) == 0, "No history entries.", historyList(entries))
}
