package agentserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/internal/manager"
	"github.com/BoringStuffInc/mooagent/internal/probe"
)

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := s.manager.Config()
	names := cfg.ServerNames()
	if len(names) == 0 {
		return mcp.NewToolResultText("No MCP servers configured."), nil
	}

	var b strings.Builder
	b.WriteString("Configured MCP servers:\n\n")

	for _, name := range names {
		server := cfg.Servers[name]
		fmt.Fprintf(&b, "- **%s**\n", name)

		switch server.Transport() {
		case config.TransportStdio:
			b.WriteString("  Type: local (stdio)\n")
			fmt.Fprintf(&b, "  Command: %s\n", server.Command)
			if len(server.Args) > 0 {
				fmt.Fprintf(&b, "  Args: %s\n", strings.Join(server.Args, " "))
			}
			if len(server.Env) > 0 {
				b.WriteString("  Env:\n")
				keys := make([]string, 0, len(server.Env))
				for k := range server.Env {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(&b, "    %s=%s\n", k, server.Env[k])
				}
			}
		case config.TransportSSE:
			b.WriteString("  Type: remote (SSE)\n")
			fmt.Fprintf(&b, "  URL: %s\n", server.URL)
		case config.TransportHTTP:
			b.WriteString("  Type: remote (HTTP)\n")
			fmt.Fprintf(&b, "  URL: %s\n", server.HTTPURL)
		}

		if status, err := s.manager.Status(name); err == nil {
			switch status.Auth {
			case config.AuthKindBearer:
				b.WriteString("  Auth: Bearer token (static)\n")
			case config.AuthKindOAuth:
				fmt.Fprintf(&b, "  Auth: OAuth %s (%s)\n", status.Symbol(), status.Message)
				fmt.Fprintf(&b, "  Client ID: %s\n", status.ClientID)
				if len(status.Scopes) > 0 {
					fmt.Fprintf(&b, "  Scopes: %s\n", strings.Join(status.Scopes, " "))
				}
			}
		}
		b.WriteString("\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}
	command, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError("command argument is required"), nil
	}

	args := request.GetArguments()
	server := &config.Server{Name: name}

	if strings.HasPrefix(command, "http://") || strings.HasPrefix(command, "https://") {
		server.URL = command
		server.Auth = parseAuth(args["auth"])
	} else {
		server.Command = command
		server.Args = request.GetStringSlice("args", nil)
		server.Env = stringMap(args["env"])
		server.Auth = config.NoAuth{}
	}

	if err := s.manager.Add(server); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to add MCP server '%s': %v", name, err)), nil
	}

	if server.RequiresOAuth() {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Added MCP server '%s' with OAuth. Run 'oauth_login' to authenticate.", name)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Added MCP server '%s'.", name)), nil
}

func (s *Server) handleRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}

	if err := s.manager.Remove(name); err != nil {
		return toolError(name, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed MCP server '%s'.", name)), nil
}

func (s *Server) handleTest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}

	result, err := s.manager.Test(ctx, name)
	if err != nil {
		return toolError(name, err), nil
	}
	return mcp.NewToolResultText(formatTestResult(s.manager.Config().Servers[name], result)), nil
}

func formatTestResult(server *config.Server, r probe.Result) string {
	if r.Transport == config.TransportStdio {
		if r.OK {
			return fmt.Sprintf("OK Local server '%s': command '%s' found in PATH (%s)", r.Name, server.Command, r.Path)
		}
		return fmt.Sprintf("FAIL Local server '%s': command '%s' NOT found in PATH", r.Name, server.Command)
	}

	url := server.RemoteURL()
	if !r.OK {
		if errors.Is(r.Err(), probe.ErrUnauthorized) {
			return fmt.Sprintf("FAIL Remote server '%s' (%s) requires authentication. Run 'oauth_login' first.", r.Name, url)
		}
		return fmt.Sprintf("FAIL Remote server '%s' (%s): %s", r.Name, url, r.Error)
	}

	msg := fmt.Sprintf("OK Remote server '%s' (%s) is reachable", r.Name, url)
	if r.ServerName != "" {
		msg += fmt.Sprintf(": %s %s", r.ServerName, r.ServerVersion)
	}
	return msg + fmt.Sprintf(", %d tools, %s", len(r.Tools), r.Duration.Round(time.Millisecond))
}

func (s *Server) handleOAuthStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}

	status, err := s.manager.Status(name)
	if err != nil {
		return toolError(name, err), nil
	}

	if status.Auth != config.AuthKindOAuth {
		return mcp.NewToolResultText(status.Message), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MCP server '%s' OAuth status:\n\n", name)
	fmt.Fprintf(&b, "  Client ID: %s\n", status.ClientID)
	if len(status.Scopes) > 0 {
		fmt.Fprintf(&b, "  Scopes: %s\n", strings.Join(status.Scopes, " "))
	}
	fmt.Fprintf(&b, "  Status: %s %s\n", status.Symbol(), status.Message)
	if status.ExpiresAt != nil {
		fmt.Fprintf(&b, "  Expires: %s\n", status.ExpiresAt.Format(time.RFC3339))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleOAuthLogin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}

	if _, err := s.manager.Login(ctx, name); err != nil {
		return toolError(name, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Successfully authenticated for '%s'.", name)), nil
}

func (s *Server) handleOAuthLogout(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}

	removed, err := s.manager.Logout(name)
	if err != nil {
		return toolError(name, err), nil
	}
	if !removed {
		return mcp.NewToolResultText(fmt.Sprintf("No OAuth token stored for '%s'.", name)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed OAuth token for '%s'.", name)), nil
}

// toolError renders a manager error for the assistant.
func toolError(name string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, manager.ErrServerNotFound):
		return mcp.NewToolResultError(fmt.Sprintf(
			"MCP server '%s' not found.\n\nTo add: use the 'mcp_add' tool or run 'mooagent servers add'.", name))
	case errors.Is(err, manager.ErrOAuthNotApplicable):
		return mcp.NewToolResultError(fmt.Sprintf(
			"MCP server '%s' is a local (stdio) server - OAuth not applicable.", name))
	case errors.Is(err, manager.ErrNoAuthConfigured):
		return mcp.NewToolResultError(fmt.Sprintf(
			"MCP server '%s' has no authentication configured. Add OAuth config first.", name))
	case errors.Is(err, manager.ErrStaticBearer):
		return mcp.NewToolResultError(fmt.Sprintf(
			"MCP server '%s' uses a static bearer token - no login needed.", name))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Error: %v", err))
	}
}

// parseAuth reads the optional auth object of mcp_add. Incomplete objects
// fall back to no authentication.
func parseAuth(raw any) config.Auth {
	obj, ok := raw.(map[string]any)
	if !ok {
		return config.NoAuth{}
	}

	switch obj["type"] {
	case "bearer":
		if token, ok := obj["token"].(string); ok && token != "" {
			return config.BearerAuth{Token: token}
		}
	case "oauth":
		if clientID, ok := obj["client_id"].(string); ok && clientID != "" {
			auth := config.OAuthAuth{ClientID: clientID}
			auth.ClientSecret, _ = obj["client_secret"].(string)
			auth.AuthServerURL, _ = obj["auth_server_url"].(string)
			if scopes, ok := obj["scopes"].([]any); ok {
				for _, sc := range scopes {
					if str, ok := sc.(string); ok {
						auth.Scopes = append(auth.Scopes, str)
					}
				}
			}
			return auth
		}
	}
	return config.NoAuth{}
}

func stringMap(raw any) map[string]string {
	obj, ok := raw.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	return out
}
