package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/internal/manager"
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage OAuth authentication for MCP servers",
	Long: `Manage OAuth authentication for remote MCP servers.

The auth command group provides subcommands to login, logout, check status,
and refresh tokens for MCP servers configured with auth type oauth.

Examples:
  mooagent auth login --server github  # Authenticate to one server
  mooagent auth login --all            # Authenticate to every server that needs it
  mooagent auth status                 # Show authentication status
  mooagent auth logout --server github # Remove the token of one server
  mooagent auth logout --all           # Clear all stored tokens
  mooagent auth refresh --server github`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate to an MCP server",
	Long: `Authenticate to an OAuth-protected MCP server.

The authorization server is discovered from the MCP server's well-known
metadata unless authServerUrl is configured. A browser window is opened for
you to sign in; the token is stored once the browser redirects back.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored authentication tokens",
	Long: `Clear stored OAuth tokens.

Examples:
  mooagent auth logout --server github # Logout from one server
  mooagent auth logout --all           # Clear all stored tokens
  mooagent auth logout --all --yes     # Clear all without confirmation`,
	Args: cobra.NoArgs,
	RunE: runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Show the authentication status of every configured MCP server, or of
one server with --server.`,
	Args: cobra.NoArgs,
	RunE: runAuthStatus,
}

var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force token refresh",
	Long: `Exchange the stored refresh token of an MCP server for a new access
token. Fails with exit code 2 when no refresh token is stored.`,
	Args: cobra.NoArgs,
	RunE: runAuthRefresh,
}

var (
	authServer   string
	loginAll     bool
	logoutAll    bool
	logoutYes    bool
	statusOutput string
)

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)

	authCmd.PersistentFlags().StringVarP(&authServer, "server", "s", "", "MCP server name")

	authLoginCmd.Flags().BoolVar(&loginAll, "all", false, "Login to every OAuth server without a valid token")
	authLogoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Clear all stored tokens")
	authLogoutCmd.Flags().BoolVarP(&logoutYes, "yes", "y", false, "Skip confirmation prompt for --all")
	authStatusCmd.Flags().StringVarP(&statusOutput, "output", "o", OutputTable, "Output format (table, json, yaml)")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ui := newLoginUI(cmd.ErrOrStderr(), true)

	m, err := newManager(ui)
	if err != nil {
		return err
	}

	if loginAll {
		return loginToAll(cmd, m, ui)
	}
	if err := requireServerArg(cmd, authServer); err != nil {
		return err
	}

	printf(out, "Authenticating to %s...\n", authServer)
	tok, err := m.Login(cmd.Context(), authServer)
	ui.done()
	if err != nil {
		return fmt.Errorf("login to '%s' failed: %w", authServer, err)
	}

	printf(out, "%s Authenticated to %s", text.FgGreen.Sprint("✓"), authServer)
	if tok.ExpiresAt != nil {
		printf(out, " (token expires %s)", formatExpiry(tok.ExpiresAt, time.Now()))
	}
	printf(out, "\n")
	return nil
}

// loginToAll authenticates to every OAuth server that has no usable token,
// one at a time.
func loginToAll(cmd *cobra.Command, m *manager.Manager, ui *loginUI) error {
	out := cmd.OutOrStdout()

	var pending []string
	for _, st := range m.List() {
		if st.NeedsLogin() {
			pending = append(pending, st.Name)
		}
	}

	if len(pending) == 0 {
		printf(out, "No MCP servers require authentication.\n")
		return nil
	}

	printf(out, "Found %d MCP server(s) requiring authentication:\n", len(pending))
	for _, name := range pending {
		printf(out, "  - %s\n", name)
	}
	printf(out, "\n")

	var lastErr error
	succeeded := 0
	for i, name := range pending {
		printf(out, "[%d/%d] Authenticating to %s\n", i+1, len(pending), name)
		_, err := m.Login(cmd.Context(), name)
		ui.done()
		if err != nil {
			printf(out, "  %s %v\n", text.FgRed.Sprint("Failed:"), err)
			lastErr = err
			continue
		}
		succeeded++
	}

	printf(out, "\nAuthentication complete. %d/%d servers authenticated.\n", succeeded, len(pending))
	if lastErr != nil {
		return fmt.Errorf("%d login(s) failed, last error: %w", len(pending)-succeeded, lastErr)
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	m, err := newManager(nil)
	if err != nil {
		return err
	}

	if logoutAll {
		urls := m.Store().ServerURLs()
		if len(urls) == 0 {
			printf(out, "No stored tokens to clear.\n")
			return nil
		}

		if !logoutYes {
			fmt.Fprintf(out, "The following %d token(s) will be cleared:\n", len(urls))
			for _, u := range urls {
				fmt.Fprintf(out, "  - %s\n", u)
			}
			ok, err := confirm(cmd.InOrStdin(), out, "\nAre you sure you want to clear all tokens? [y/N]: ")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
		}

		n, err := m.LogoutAll()
		if err != nil {
			return fmt.Errorf("failed to clear all tokens: %w", err)
		}
		printf(out, "Cleared %d stored token(s).\n", n)
		return nil
	}

	if err := requireServerArg(cmd, authServer); err != nil {
		return err
	}

	removed, err := m.Logout(authServer)
	if err != nil {
		return err
	}
	if removed {
		printf(out, "Logged out from %s\n", authServer)
	} else {
		printf(out, "No token stored for %s\n", authServer)
	}
	return nil
}

// confirm asks a yes/no question on the terminal.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprint(out, question)

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false, fmt.Errorf("failed to read response: %w", err)
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	if err := validateOutputFormat(statusOutput); err != nil {
		return err
	}

	m, err := newManager(nil)
	if err != nil {
		return err
	}

	var statuses []manager.ServerStatus
	if authServer != "" {
		st, err := m.Status(authServer)
		if err != nil {
			return err
		}
		statuses = []manager.ServerStatus{st}
	} else {
		statuses = m.List()
	}

	out := cmd.OutOrStdout()
	if statusOutput != OutputTable {
		return writeStructured(out, statusOutput, statuses)
	}

	if len(statuses) == 0 {
		fmt.Fprintf(out, "%s\n", text.FgYellow.Sprint("No MCP servers configured."))
		return nil
	}

	if authServer != "" {
		printServerStatus(out, statuses[0])
		return nil
	}

	printStatusTable(out, statuses)
	return nil
}

func printStatusTable(out io.Writer, statuses []manager.ServerStatus) {
	now := time.Now()
	t := newTable(out, "NAME", "TRANSPORT", "AUTH", "STATUS", "EXPIRES")

	for _, st := range statuses {
		expires := "-"
		if st.Auth == config.AuthKindOAuth && st.Token != nil && st.TokenState != "none" {
			expires = formatExpiry(st.ExpiresAt, now)
		}
		t.AppendRow([]interface{}{
			text.Bold.Sprint(st.Name),
			string(st.Transport),
			string(st.Auth),
			colorTokenState(st),
			expires,
		})
	}

	t.Render()
}

func printServerStatus(out io.Writer, st manager.ServerStatus) {
	fmt.Fprintf(out, "MCP Server: %s\n", st.Name)
	fmt.Fprintf(out, "  Transport: %s\n", st.Transport)
	if st.URL != "" {
		fmt.Fprintf(out, "  URL:       %s\n", st.URL)
	}
	if st.Command != "" {
		fmt.Fprintf(out, "  Command:   %s\n", st.Command)
	}

	if st.Auth != config.AuthKindOAuth {
		fmt.Fprintf(out, "  %s\n", text.FgHiBlack.Sprint(st.Message))
		return
	}

	fmt.Fprintf(out, "  Client ID: %s\n", st.ClientID)
	if len(st.Scopes) > 0 {
		fmt.Fprintf(out, "  Scopes:    %s\n", strings.Join(st.Scopes, " "))
	}
	fmt.Fprintf(out, "  Status:    %s\n", colorTokenState(st))
	if st.TokenState != "none" {
		fmt.Fprintf(out, "  Expires:   %s\n", formatExpiry(st.ExpiresAt, time.Now()))
		if st.HasRefreshToken {
			fmt.Fprintf(out, "  Refresh:   %s\n", text.FgGreen.Sprint("Available"))
		} else {
			fmt.Fprintf(out, "  Refresh:   %s\n", text.FgYellow.Sprint("Not available (re-auth required on expiry)"))
		}
	}
	if st.NeedsLogin() {
		fmt.Fprintf(out, "             Run: mooagent auth login --server %s\n", st.Name)
	}
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	if err := requireServerArg(cmd, authServer); err != nil {
		return err
	}

	m, err := newManager(nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printf(out, "Refreshing token for %s...\n", authServer)

	stop := startSpinner("Contacting authorization server...")
	tok, err := m.Refresh(cmd.Context(), authServer)
	stop()
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	printf(out, "Token refreshed successfully.")
	if tok.ExpiresAt != nil {
		printf(out, " Expires %s.", formatExpiry(tok.ExpiresAt, time.Now()))
	}
	printf(out, "\n")
	return nil
}

// stdinIsTerminal reports whether interactive prompts can be shown.
func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
