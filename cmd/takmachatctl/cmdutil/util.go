// Package cmdutil provides shared utilities for takmachatctl commands.
package cmdutil

import (
	"fmt"
	"io"
	"os"

	"github.com/vtakmakov/takmachat/internal/cli/credentials"
	"github.com/vtakmakov/takmachat/internal/cli/output"
	"github.com/vtakmakov/takmachat/internal/cli/prompt"
	"github.com/vtakmakov/takmachat/pkg/adminclient"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ServerURL string
	Token     string
	Output    string
	NoColor   bool
}

// GetClient returns an unauthenticated API client for the configured
// server. Used by login and status.
func GetClient() (*adminclient.Client, error) {
	url := Flags.ServerURL
	if url == "" {
		store, err := credentials.NewStore()
		if err != nil {
			return nil, err
		}
		creds, err := store.Load()
		if err == nil && creds.ServerURL != "" {
			url = creds.ServerURL
		}
	}
	if url == "" {
		url = "http://127.0.0.1:7780"
	}
	return adminclient.New(url), nil
}

// GetAuthenticatedClient returns an API client carrying the operator's
// access token. It uses the --server and --token flags if provided,
// otherwise the stored credentials, refreshing an expired access token
// when possible.
func GetAuthenticatedClient() (*adminclient.Client, error) {
	if Flags.ServerURL != "" && Flags.Token != "" {
		client := adminclient.New(Flags.ServerURL)
		client.SetToken(Flags.Token)
		return client, nil
	}

	store, err := credentials.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	creds, err := store.Load()
	if err != nil {
		return nil, err
	}

	url := creds.ServerURL
	if Flags.ServerURL != "" {
		url = Flags.ServerURL
	}
	if url == "" {
		return nil, fmt.Errorf("no server URL stored, run 'takmachatctl login --server <url>' first")
	}

	client := adminclient.New(url)

	token := creds.AccessToken
	if Flags.Token != "" {
		token = Flags.Token
	} else if creds.IsExpired() && creds.HasRefreshToken() {
		pair, err := client.Refresh(creds.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("session expired, run 'takmachatctl login' to re-authenticate")
		}
		if err := store.UpdateTokens(pair.AccessToken, pair.RefreshToken, pair.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to save refreshed tokens: %w", err)
		}
		token = pair.AccessToken
	}

	if token == "" {
		return nil, fmt.Errorf("no access token, run 'takmachatctl login' first")
	}

	client.SetToken(token)
	return client, nil
}

// GetOutputFormatParsed returns the parsed --output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintOutput prints data in the selected format. Table format prints
// emptyMsg when the result set is empty.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintSuccess prints a success message when the format is table.
func PrintSuccess(msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	output.NewPrinter(os.Stdout, format, !Flags.NoColor).Success(msg)
}

// HandleAbort converts a prompt abort into a quiet error.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		return fmt.Errorf("aborted")
	}
	return err
}
