package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/BoringStuffInc/mooagent/internal/manager"
	"github.com/BoringStuffInc/mooagent/internal/oauth"
	pkgstrings "github.com/BoringStuffInc/mooagent/pkg/strings"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [NAME]",
	Short: "Show the OAuth authorization server of MCP servers",
	Long: `Run OAuth metadata discovery for an MCP server without logging in.

The authorization server is located through the server's protected resource
metadata (RFC 9728) unless authServerUrl is configured, and its metadata is
read from the OAuth or OpenID Connect well-known documents (RFC 8414). When
no document is found, the default endpoints that a login would use are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDiscover,
}

var (
	discoverAll    bool
	discoverOutput string
)

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().BoolVar(&discoverAll, "all", false, "Discover every OAuth server")
	discoverCmd.Flags().StringVarP(&discoverOutput, "output", "o", OutputTable, "Output format (table, json, yaml)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if discoverAll == (len(args) == 1) {
		return errors.New("specify a server NAME or --all")
	}
	if err := validateOutputFormat(discoverOutput); err != nil {
		return err
	}

	m, err := newManager(nil)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if !discoverAll {
		stop := startSpinner("Discovering authorization server...")
		md, err := m.Discover(cmd.Context(), args[0])
		stop()
		if err != nil {
			return err
		}
		if discoverOutput != OutputTable {
			return writeStructured(out, discoverOutput, md)
		}
		printMetadata(out, args[0], md)
		return nil
	}

	stop := startSpinner("Discovering authorization servers...")
	results := m.DiscoverAll(cmd.Context())
	stop()

	if discoverOutput != OutputTable {
		return writeStructured(out, discoverOutput, results)
	}
	if len(results) == 0 {
		fmt.Fprintf(out, "%s\n", text.FgYellow.Sprint("No OAuth MCP servers configured."))
		return nil
	}
	printDiscoveryTable(out, results)
	return nil
}

func printMetadata(out io.Writer, name string, md *oauth.AuthServerMetadata) {
	fmt.Fprintf(out, "MCP Server: %s\n", name)
	fmt.Fprintf(out, "  Issuer:                 %s\n", md.Issuer)
	fmt.Fprintf(out, "  Authorization endpoint: %s\n", md.AuthorizationEndpoint)
	fmt.Fprintf(out, "  Token endpoint:         %s\n", md.TokenEndpoint)
	if md.RegistrationEndpoint != "" {
		fmt.Fprintf(out, "  Registration endpoint:  %s\n", md.RegistrationEndpoint)
	}
	if len(md.ScopesSupported) > 0 {
		fmt.Fprintf(out, "  Scopes:                 %s\n", strings.Join(md.ScopesSupported, " "))
	}
	if len(md.CodeChallengeMethodsSupported) > 0 {
		fmt.Fprintf(out, "  PKCE methods:           %s\n", strings.Join(md.CodeChallengeMethodsSupported, ", "))
	}
	if md.Synthesized {
		fmt.Fprintf(out, "  %s\n", text.FgYellow.Sprint("No metadata document found; showing default endpoints."))
	} else {
		fmt.Fprintf(out, "  Source:                 %s\n", md.Source)
	}
}

func printDiscoveryTable(out io.Writer, results []manager.DiscoveryResult) {
	t := newTable(out, "NAME", "ISSUER", "TOKEN ENDPOINT", "SOURCE")

	for _, r := range results {
		if r.Metadata == nil {
			t.AppendRow([]interface{}{
				text.Bold.Sprint(r.Name),
				text.FgRed.Sprint("discovery failed"),
				pkgstrings.OneLine(r.Error, pkgstrings.DefaultDetailMaxLen),
				"-",
			})
			continue
		}

		source := r.Metadata.Source
		if r.Metadata.Synthesized {
			source = text.FgYellow.Sprint("defaults")
		}
		t.AppendRow([]interface{}{
			text.Bold.Sprint(r.Name),
			r.Metadata.Issuer,
			r.Metadata.TokenEndpoint,
			source,
		})
	}

	t.Render()
}
