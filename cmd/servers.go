package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/internal/probe"
	pkgstrings "github.com/BoringStuffInc/mooagent/pkg/strings"
)

var serversCmd = &cobra.Command{
	Use:     "servers",
	Aliases: []string{"server", "mcp"},
	Short:   "Manage configured MCP servers",
	Long: `List, add, remove and test the MCP servers stored in config.yaml.

Examples:
  mooagent servers list
  mooagent servers add docs --http-url https://example.com/mcp --auth oauth --client-id abc
  mooagent servers add local --command npx --arg -y --arg some-server
  mooagent servers test --all`,
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	Args:  cobra.NoArgs,
	RunE:  runServersList,
}

var serversAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add an MCP server",
	Long: `Add an MCP server to config.yaml.

Exactly one of --command (local stdio server), --url (remote SSE server) or
--http-url (remote streamable HTTP server) is required. Remote servers may use
--auth bearer with --token, or --auth oauth with --client-id.`,
	Args: cobra.ExactArgs(1),
	RunE: runServersAdd,
}

var serversRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Remove an MCP server and its stored token",
	Args:    cobra.ExactArgs(1),
	RunE:    runServersRemove,
}

var serversTestCmd = &cobra.Command{
	Use:   "test [NAME]",
	Short: "Test connectivity to MCP servers",
	Long: `Check that MCP servers are usable. Local servers must have their command
on PATH; remote servers are initialized over MCP with the stored credentials
and asked for their tools.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServersTest,
}

var (
	addCommand       string
	addArgs          []string
	addEnv           []string
	addURL           string
	addHTTPURL       string
	addAuth          string
	addToken         string
	addClientID      string
	addClientSecret  string
	addScopes        []string
	addAuthServerURL string
	addPromptSecret  bool

	testAll bool
)

func init() {
	rootCmd.AddCommand(serversCmd)
	serversCmd.AddCommand(serversListCmd)
	serversCmd.AddCommand(serversAddCmd)
	serversCmd.AddCommand(serversRemoveCmd)
	serversCmd.AddCommand(serversTestCmd)

	f := serversAddCmd.Flags()
	f.StringVar(&addCommand, "command", "", "Command of a local stdio server")
	f.StringArrayVar(&addArgs, "arg", nil, "Argument for the command (repeatable)")
	f.StringArrayVar(&addEnv, "env", nil, "Environment variable KEY=VALUE for the command (repeatable)")
	f.StringVar(&addURL, "url", "", "SSE endpoint of a remote server")
	f.StringVar(&addHTTPURL, "http-url", "", "Streamable HTTP endpoint of a remote server")
	f.StringVar(&addAuth, "auth", string(config.AuthKindNone), "Authentication type (none, bearer, oauth)")
	f.StringVar(&addToken, "token", "", "Static bearer token (--auth bearer)")
	f.StringVar(&addClientID, "client-id", "", "OAuth client ID (--auth oauth)")
	f.StringVar(&addClientSecret, "client-secret", "", "OAuth client secret (--auth oauth)")
	f.StringSliceVar(&addScopes, "scope", nil, "OAuth scope (repeatable or comma separated)")
	f.StringVar(&addAuthServerURL, "auth-server-url", "", "OAuth authorization server URL (skips discovery)")
	f.BoolVar(&addPromptSecret, "prompt-secret", false, "Prompt for the bearer token or client secret without echo")
	serversAddCmd.MarkFlagsMutuallyExclusive("command", "url", "http-url")
	serversAddCmd.MarkFlagsOneRequired("command", "url", "http-url")

	serversTestCmd.Flags().BoolVar(&testAll, "all", false, "Test every configured server")
}

func runServersList(cmd *cobra.Command, args []string) error {
	m, err := newManager(nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	statuses := m.List()
	if len(statuses) == 0 {
		fmt.Fprintf(out, "%s\n", text.FgYellow.Sprint("No MCP servers configured."))
		return nil
	}

	t := newTable(out, "NAME", "TRANSPORT", "TARGET", "AUTH", "STATUS")
	for _, st := range statuses {
		target := st.URL
		if st.Command != "" {
			target = st.Command
		}
		t.AppendRow([]interface{}{
			text.Bold.Sprint(st.Name),
			string(st.Transport),
			target,
			string(st.Auth),
			colorTokenState(st),
		})
	}
	t.Render()

	printf(out, "\n%s %s\n", text.FgHiBlue.Sprint("Total:"), text.FgHiWhite.Sprint(len(statuses)))
	return nil
}

func runServersAdd(cmd *cobra.Command, args []string) error {
	server, err := buildServer(args[0])
	if err != nil {
		return err
	}

	m, err := newManager(nil)
	if err != nil {
		return err
	}
	if err := m.Add(server); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printf(out, "%s Added MCP server '%s' (%s)\n", text.FgGreen.Sprint("✓"), server.Name, server.Transport())
	if server.RequiresOAuth() {
		printf(out, "Run 'mooagent auth login --server %s' to authenticate.\n", server.Name)
	}
	return nil
}

// buildServer assembles a server definition from the add flags.
func buildServer(name string) (*config.Server, error) {
	server := &config.Server{
		Name:    name,
		Command: addCommand,
		Args:    addArgs,
		URL:     addURL,
		HTTPURL: addHTTPURL,
	}

	env, err := parseEnv(addEnv)
	if err != nil {
		return nil, err
	}
	server.Env = env

	kind, err := config.ParseAuthKind(addAuth)
	if err != nil {
		return nil, err
	}

	switch kind {
	case config.AuthKindNone:
		server.Auth = config.NoAuth{}
	case config.AuthKindBearer:
		token := addToken
		if addPromptSecret && token == "" {
			if token, err = promptSecret("Bearer token: "); err != nil {
				return nil, err
			}
		}
		server.Auth = config.BearerAuth{Token: token}
	case config.AuthKindOAuth:
		secret := addClientSecret
		if addPromptSecret && secret == "" {
			if secret, err = promptSecret("Client secret (empty for a public client): "); err != nil {
				return nil, err
			}
		}
		server.Auth = config.OAuthAuth{
			ClientID:      addClientID,
			ClientSecret:  secret,
			Scopes:        addScopes,
			AuthServerURL: addAuthServerURL,
		}
	default:
		panic(fmt.Sprintf("unhandled auth kind %q", kind))
	}

	return server, nil
}

func promptSecret(prompt string) (string, error) {
	if !stdinIsTerminal() {
		return "", errors.New("--prompt-secret needs an interactive terminal")
	}
	return readSecret(prompt)
}

// parseEnv turns KEY=VALUE pairs into a map.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env value %q (expected KEY=VALUE)", pair)
		}
		env[key] = value
	}
	return env, nil
}

func runServersRemove(cmd *cobra.Command, args []string) error {
	m, err := newManager(nil)
	if err != nil {
		return err
	}
	if err := m.Remove(args[0]); err != nil {
		return err
	}

	printf(cmd.OutOrStdout(), "Removed MCP server '%s'\n", args[0])
	return nil
}

func runServersTest(cmd *cobra.Command, args []string) error {
	if testAll == (len(args) == 1) {
		return errors.New("specify a server NAME or --all")
	}

	m, err := newManager(nil)
	if err != nil {
		return err
	}

	var results []probe.Result
	stop := startSpinner("Testing MCP servers...")
	if testAll {
		results = m.TestAll(cmd.Context())
	} else {
		r, err := m.Test(cmd.Context(), args[0])
		if err != nil {
			stop()
			return err
		}
		results = []probe.Result{r}
	}
	stop()

	printTestResults(cmd.OutOrStdout(), results)

	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d server(s) failed", failed, len(results))
	}
	return nil
}

func printTestResults(out io.Writer, results []probe.Result) {
	t := newTable(out, "NAME", "TRANSPORT", "RESULT", "DETAILS", "TIME")

	for _, r := range results {
		result := text.FgGreen.Sprint("OK")
		var details string

		switch {
		case !r.OK && errors.Is(r.Err(), probe.ErrUnauthorized):
			result = text.FgYellow.Sprint("AUTH")
			details = fmt.Sprintf("authentication required, run: mooagent auth login --server %s", r.Name)
		case !r.OK:
			result = text.FgRed.Sprint("FAIL")
			details = pkgstrings.OneLine(r.Error, pkgstrings.DefaultDetailMaxLen)
		case r.Transport == config.TransportStdio:
			details = r.Path
		default:
			details = fmt.Sprintf("%s %s, %d tools", r.ServerName, r.ServerVersion, len(r.Tools))
		}

		t.AppendRow([]interface{}{
			text.Bold.Sprint(r.Name),
			string(r.Transport),
			result,
			details,
			r.Duration.Round(time.Millisecond).String(),
		})
	}

	t.Render()
}
