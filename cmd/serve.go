package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BoringStuffInc/mooagent/internal/agentserver"
)

// serveCmd runs mooagent as an MCP server for AI assistants.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve mooagent's tools over MCP (stdio)",
	Long: `Starts an MCP server on stdin/stdout so AI assistants can manage MCP
servers and OAuth logins through tools:

  mcp_list, mcp_add, mcp_remove, test_mcp_server,
  oauth_status, oauth_login, oauth_logout

Logs are written to stderr; stdout carries MCP messages only. Changes to
config.yaml and tokens.json made by other mooagent processes are picked up
automatically.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// Logins started by a tool call have nothing to stop a spinner, so only
	// the URL is printed.
	m, err := newManager(newLoginUI(os.Stderr, false))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return agentserver.New(m, GetVersion()).Serve(ctx, os.Stdin, os.Stdout)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
