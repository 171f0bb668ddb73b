package agentserver

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/BoringStuffInc/mooagent/internal/manager"
	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "mooagent"

// Server exposes a Manager as MCP tools over stdio.
type Server struct {
	manager   *manager.Manager
	mcpServer *server.MCPServer
}

// New creates a Server and registers its tools.
func New(m *manager.Manager, version string) *Server {
	s := &Server{
		manager: m,
		mcpServer: server.NewMCPServer(
			ServerName,
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Serve answers MCP requests on stdin/stdout until ctx is cancelled or the
// input is closed. config.yaml and tokens.json are reloaded when they change.
func (s *Server) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	watcher := NewWatcher(WatcherConfig{
		Dir:      s.manager.ConfigDir(),
		OnChange: s.reload,
	})
	if err := watcher.Start(); err != nil {
		logging.Warn("AgentServer", "Live reload disabled: %v", err)
	}
	defer watcher.Stop()

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "", log.LstdFlags))

	logging.Info("AgentServer", "Serving MCP tools over stdio")
	return stdio.Listen(ctx, stdin, stdout)
}

func (s *Server) reload() {
	if err := s.manager.Reload(); err != nil {
		logging.Error("AgentServer", err, "Failed to reload after file change")
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("mcp_list",
		mcp.WithDescription("List all configured MCP servers with their transport and authentication status."),
	), s.handleList)

	s.mcpServer.AddTool(mcp.NewTool("mcp_add",
		mcp.WithDescription("Add a new MCP server."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Unique identifier for the MCP server"),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Command to run (for local servers) or URL (for remote SSE servers)"),
		),
		mcp.WithArray("args",
			mcp.WithStringItems(),
			mcp.Description("Arguments for the command (only for local servers)"),
		),
		mcp.WithObject("env",
			mcp.Description("Environment variables (only for local servers)"),
		),
		mcp.WithObject("auth",
			mcp.Description("Authentication configuration for remote servers"),
			mcp.Properties(map[string]any{
				"type": map[string]any{
					"type":        "string",
					"enum":        []string{"bearer", "oauth"},
					"description": "Authentication type",
				},
				"token": map[string]any{
					"type":        "string",
					"description": "Bearer token (for type=bearer)",
				},
				"client_id": map[string]any{
					"type":        "string",
					"description": "OAuth client ID (for type=oauth)",
				},
				"client_secret": map[string]any{
					"type":        "string",
					"description": "OAuth client secret (optional, for type=oauth)",
				},
				"scopes": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "OAuth scopes (optional, for type=oauth)",
				},
				"auth_server_url": map[string]any{
					"type":        "string",
					"description": "OAuth authorization server URL (optional, auto-discovered if not provided)",
				},
			}),
		),
	), s.handleAdd)

	s.mcpServer.AddTool(mcp.NewTool("mcp_remove",
		mcp.WithDescription("Remove an MCP server by name."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the MCP server to remove"),
		),
	), s.handleRemove)

	s.mcpServer.AddTool(mcp.NewTool("test_mcp_server",
		mcp.WithDescription("Test connectivity to an MCP server. Local servers are checked on PATH, remote servers are initialized and asked for their tools."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the MCP server to test"),
		),
	), s.handleTest)

	s.mcpServer.AddTool(mcp.NewTool("oauth_status",
		mcp.WithDescription("Show the OAuth token status of an MCP server."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the MCP server"),
		),
	), s.handleOAuthStatus)

	s.mcpServer.AddTool(mcp.NewTool("oauth_login",
		mcp.WithDescription("Authenticate with an OAuth-protected MCP server. Opens a browser window for the user to sign in."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the MCP server"),
		),
	), s.handleOAuthLogin)

	s.mcpServer.AddTool(mcp.NewTool("oauth_logout",
		mcp.WithDescription("Remove the stored OAuth token of an MCP server."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the MCP server"),
		),
	), s.handleOAuthLogout)
}
