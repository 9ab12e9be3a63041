package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vtakmakov/takmachat/cmd/takmachatctl/cmdutil"
	"github.com/vtakmakov/takmachat/internal/cli/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check server liveness",
	Long: `Probe the server's unauthenticated /health endpoint.

Examples:
  takmachatctl status
  takmachatctl status --server http://127.0.0.1:7780`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetClient()
	if err != nil {
		return err
	}

	health, err := client.Health()
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return output.NewPrinter(os.Stdout, format, false).Print(health)
	}

	return output.SimpleTable(os.Stdout, [][2]string{
		{"Status", "healthy"},
		{"Active connections", strconv.Itoa(health.ActiveConnections)},
	})
}
