package commands

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/vtakmakov/takmachat/cmd/takmachatctl/cmdutil"
	"github.com/vtakmakov/takmachat/internal/cli/credentials"
	"github.com/vtakmakov/takmachat/internal/cli/prompt"
	"github.com/vtakmakov/takmachat/pkg/adminclient"
)

var (
	loginServer   string
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the admin API",
	Long: `Authenticate with a takmachat server and store the operator token.

On first login you must specify the server URL. Subsequent logins reuse
the stored URL unless overridden.

Examples:
  # First login
  takmachatctl login --server http://127.0.0.1:7780 --username admin

  # Re-login to the stored server
  takmachatctl login`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginServer, "server", "", "Admin API URL (required on first login)")
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "admin", "Operator username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Operator password (prompted when omitted)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	serverURL := loginServer
	if serverURL == "" {
		creds, err := store.Load()
		if err != nil || creds.ServerURL == "" {
			return fmt.Errorf("no server URL specified and none stored\n\n" +
				"Specify the admin API URL:\n" +
				"  takmachatctl login --server http://127.0.0.1:7780")
		}
		serverURL = creds.ServerURL
	}

	parsed, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "http"
		serverURL = parsed.String()
	}

	password := loginPassword
	if password == "" {
		password, err = prompt.Password("Operator password")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	client := adminclient.New(serverURL)
	pair, err := client.Login(loginUsername, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := store.Save(&credentials.Credentials{
		ServerURL:    serverURL,
		Username:     loginUsername,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	cmdutil.PrintSuccess(fmt.Sprintf("Logged in to %s as %s", serverURL, loginUsername))
	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		if err := store.Clear(); err != nil {
			return fmt.Errorf("failed to clear credentials: %w", err)
		}
		cmdutil.PrintSuccess("Logged out")
		return nil
	},
}
