package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/internal/manager"
	"github.com/BoringStuffInc/mooagent/internal/oauth"
	"github.com/BoringStuffInc/mooagent/internal/probe"
)

// Output formats accepted by --output.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// userAgent identifies mooagent in discovery, token and MCP requests.
func userAgent() string {
	v := rootCmd.Version
	if v == "" {
		v = "dev"
	}
	return "mooagent/" + v
}

// newManager loads the configuration from --config-path and builds a
// Manager wired to the CLI's browser and progress output.
func newManager(ui *loginUI) (*manager.Manager, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	httpClient := oauth.NewHTTPClient(userAgent(), cfg.OAuth.HTTPTimeout, cfg.OAuth.ConnectTimeout)

	var flowOpts []oauth.FlowOption
	if noBrowser {
		flowOpts = append(flowOpts, oauth.WithBrowserOpener(nil))
	}
	if ui != nil {
		flowOpts = append(flowOpts, oauth.WithAuthURLHandler(ui.showAuthURL))
	}

	m, err := manager.New(manager.Options{
		ConfigDir:   configPath,
		Config:      cfg,
		HTTPClient:  httpClient,
		Prober:      probe.New(httpClient, GetVersion()),
		FlowOptions: flowOpts,
	})
	if err != nil {
		return nil, err
	}

	warnStoreLoad(os.Stderr, m.StoreLoadError())
	return m, nil
}

// warnStoreLoad tells the user that stored tokens could not be read and
// that the next login will replace the file.
func warnStoreLoad(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %v\n", text.FgYellow.Sprint("Warning: ignoring stored tokens:"), err)
	fmt.Fprintf(w, "The token file will be overwritten by the next login or refresh.\n")
}

// printf prints output only if the --quiet flag is not set.
// Use this for progress messages and non-essential output.
func printf(w io.Writer, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// startSpinner shows progress on stderr unless --quiet is set. The returned
// function stops it.
func startSpinner(suffix string) func() {
	if quiet {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

// loginUI prints the authorization URL and, when spin is set, shows a
// spinner until done is called.
type loginUI struct {
	out  io.Writer
	spin bool
	stop func()
}

func newLoginUI(out io.Writer, spin bool) *loginUI {
	return &loginUI{out: out, spin: spin}
}

func (u *loginUI) showAuthURL(authURL string) {
	if noBrowser {
		fmt.Fprintf(u.out, "Open this URL in your browser to authenticate:\n\n  %s\n\n", authURL)
	} else {
		printf(u.out, "Opening browser for authentication. If it does not open, visit:\n\n  %s\n\n", authURL)
	}
	if u.spin {
		u.stop = startSpinner("Waiting for authentication in the browser...")
	}
}

func (u *loginUI) done() {
	if u.stop != nil {
		u.stop()
		u.stop = nil
	}
}

// validateOutputFormat rejects unknown --output values.
func validateOutputFormat(format string) error {
	switch format {
	case OutputTable, OutputJSON, OutputYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (expected table, json or yaml)", format)
	}
}

// writeStructured renders v as JSON or YAML. YAML output follows the json
// struct tags.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case OutputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case OutputYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// newTable creates a table with standard styling.
func newTable(w io.Writer, headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)

	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = text.FgHiCyan.Sprint(h)
	}
	t.AppendHeader(row)
	return t
}

// colorTokenState colours a token status for tables.
func colorTokenState(st manager.ServerStatus) string {
	if st.Token == nil {
		return text.FgHiBlack.Sprint("-")
	}

	label := st.Token.Symbol() + " " + st.Token.Description()
	switch st.TokenState {
	case "valid":
		return text.FgGreen.Sprint(label)
	case "expires_soon":
		return text.FgYellow.Sprint(label)
	default:
		return text.FgRed.Sprint(label)
	}
}

// formatExpiry renders an expiry time relative to now.
func formatExpiry(expiresAt *time.Time, now time.Time) string {
	if expiresAt == nil {
		return "never"
	}

	d := expiresAt.Sub(now).Round(time.Minute)
	if d < 0 {
		return fmt.Sprintf("%s (expired %s ago)", expiresAt.Local().Format(time.RFC3339), -d)
	}
	return fmt.Sprintf("%s (in %s)", expiresAt.Local().Format(time.RFC3339), d)
}

// readSecret prompts for a value without echoing it.
var readSecret = func(prompt string) (string, error) {
	rl, err := readline.New("")
	if err != nil {
		return "", fmt.Errorf("failed to open terminal: %w", err)
	}
	defer rl.Close()

	secret, err := rl.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

// requireServerArg returns the server selected by --server, or an error
// naming the flag.
func requireServerArg(cmd *cobra.Command, server string) error {
	if server == "" {
		return fmt.Errorf("--server is required for '%s'", cmd.CommandPath())
	}
	return nil
}
