package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vtakmakov/takmachat/cmd/takmachatctl/cmdutil"
	"github.com/vtakmakov/takmachat/pkg/server/store"
)

var countersCmd = &cobra.Command{
	Use:   "counters",
	Short: "Show per-user message counters",
	Long: `Show how many messages each account has sent and received.

Examples:
  takmachatctl counters
  takmachatctl counters -o yaml`,
	RunE: runCounters,
}

// counterList renders message counters as a table.
type counterList []*store.Counter

func (cl counterList) Headers() []string {
	return []string{"LOGIN", "SENT", "RECEIVED"}
}

func (cl counterList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		rows = append(rows, []string{
			c.Login,
			strconv.FormatUint(c.Sent, 10),
			strconv.FormatUint(c.Received, 10),
		})
	}
	return rows
}

func runCounters(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	counters, err := client.Counters()
	if err != nil {
		return fmt.Errorf("failed to fetch counters: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, counters, len(counters) == 0, "No counters yet.", counterList(counters))
}
