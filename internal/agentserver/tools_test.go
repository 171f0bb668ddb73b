package agentserver

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/internal/credentials"
	"github.com/BoringStuffInc/mooagent/internal/manager"
)

func newTestServer(t *testing.T) (*Server, *manager.Manager) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.GetDefaultConfig()
	cfg.SetServer(&config.Server{
		Name: "remote",
		URL:  "https://mcp.example.com/sse",
		Auth: config.OAuthAuth{ClientID: "client-123", Scopes: []string{"read", "write"}},
	})
	cfg.SetServer(&config.Server{Name: "static", HTTPURL: "https://static.example.com/mcp", Auth: config.BearerAuth{Token: "tkn"}})
	cfg.SetServer(&config.Server{
		Name:    "local",
		Command: os.Args[0],
		Args:    []string{"-y", "pkg"},
		Env:     map[string]string{"B": "2", "A": "1"},
	})
	require.NoError(t, config.SaveConfig(dir, &cfg))

	m, err := manager.New(manager.Options{ConfigDir: dir})
	require.NoError(t, err)
	return New(m, "test"), m
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestHandleList(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleList(context.Background(), callTool("mcp_list", nil))
	require.NoError(t, err)
	text := resultText(t, result)

	assert.Contains(t, text, "- **local**\n  Type: local (stdio)")
	assert.Contains(t, text, "  Args: -y pkg\n")
	assert.Contains(t, text, "    A=1\n    B=2\n")
	assert.Contains(t, text, "  Type: remote (SSE)\n  URL: https://mcp.example.com/sse\n")
	assert.Contains(t, text, "  Auth: OAuth ? (Not authenticated)\n  Client ID: client-123\n  Scopes: read write\n")
	assert.Contains(t, text, "  Type: remote (HTTP)\n  URL: https://static.example.com/mcp\n  Auth: Bearer token (static)\n")
}

func TestHandleList_Empty(t *testing.T) {
	m, err := manager.New(manager.Options{ConfigDir: t.TempDir()})
	require.NoError(t, err)

	result, err := New(m, "test").handleList(context.Background(), callTool("mcp_list", nil))
	require.NoError(t, err)
	assert.Equal(t, "No MCP servers configured.", resultText(t, result))
}

func TestHandleAdd(t *testing.T) {
	s, m := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleAdd(ctx, callTool("mcp_add", map[string]any{
		"name":    "docs",
		"command": "https://docs.example.com/sse",
		"auth": map[string]any{
			"type":            "oauth",
			"client_id":       "abc",
			"scopes":          []any{"read"},
			"auth_server_url": "https://auth.example.com",
		},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Added MCP server 'docs' with OAuth. Run 'oauth_login' to authenticate.", resultText(t, result))

	docs, ok := m.Config().Server("docs")
	require.True(t, ok)
	assert.Equal(t, config.OAuthAuth{ClientID: "abc", Scopes: []string{"read"}, AuthServerURL: "https://auth.example.com"}, docs.Auth)

	result, err = s.handleAdd(ctx, callTool("mcp_add", map[string]any{
		"name":    "tools",
		"command": "npx",
		"args":    []any{"-y", "tools-server"},
		"env":     map[string]any{"TOKEN": "x"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Added MCP server 'tools'.", resultText(t, result))

	tools, ok := m.Config().Server("tools")
	require.True(t, ok)
	assert.Equal(t, []string{"-y", "tools-server"}, tools.Args)
	assert.Equal(t, map[string]string{"TOKEN": "x"}, tools.Env)

	result, err = s.handleAdd(ctx, callTool("mcp_add", map[string]any{"name": "tools", "command": "npx"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "already exists")

	result, err = s.handleAdd(ctx, callTool("mcp_add", map[string]any{"name": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestParseAuth(t *testing.T) {
	assert.Equal(t, config.NoAuth{}, parseAuth(nil))
	assert.Equal(t, config.NoAuth{}, parseAuth(map[string]any{"type": "bearer"}))
	assert.Equal(t, config.BearerAuth{Token: "t"}, parseAuth(map[string]any{"type": "bearer", "token": "t"}))
	assert.Equal(t, config.NoAuth{}, parseAuth(map[string]any{"type": "oauth"}))
	assert.Equal(t, config.NoAuth{}, parseAuth(map[string]any{"type": "kerberos"}))
	assert.Equal(t,
		config.OAuthAuth{ClientID: "c", ClientSecret: "s"},
		parseAuth(map[string]any{"type": "oauth", "client_id": "c", "client_secret": "s"}))
}

func TestHandleRemove(t *testing.T) {
	s, m := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleRemove(ctx, callTool("mcp_remove", map[string]any{"name": "static"}))
	require.NoError(t, err)
	assert.Equal(t, "Removed MCP server 'static'.", resultText(t, result))
	_, ok := m.Config().Server("static")
	assert.False(t, ok)

	result, err = s.handleRemove(ctx, callTool("mcp_remove", map[string]any{"name": "static"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "MCP server 'static' not found.")
}

func TestHandleOAuthStatus(t *testing.T) {
	s, m := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleOAuthStatus(ctx, callTool("oauth_status", map[string]any{"name": "local"}))
	require.NoError(t, err)
	assert.Equal(t, "MCP server 'local' is a local (stdio) server - OAuth not applicable.", resultText(t, result))

	result, err = s.handleOAuthStatus(ctx, callTool("oauth_status", map[string]any{"name": "static"}))
	require.NoError(t, err)
	assert.Equal(t, "MCP server 'static' uses a static bearer token.", resultText(t, result))

	expires := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, m.Store().Insert("https://mcp.example.com/sse", credentials.StoredToken{
		AccessToken: "a", TokenType: "Bearer", ExpiresAt: &expires,
	}))

	result, err = s.handleOAuthStatus(ctx, callTool("oauth_status", map[string]any{"name": "remote"}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "MCP server 'remote' OAuth status:")
	assert.Contains(t, text, "  Client ID: client-123\n")
	assert.Contains(t, text, "  Scopes: read write\n")
	assert.Contains(t, text, "  Status: V Authenticated\n")
	assert.Contains(t, text, "  Expires: "+expires.Format(time.RFC3339))

	result, err = s.handleOAuthStatus(ctx, callTool("oauth_status", map[string]any{"name": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleOAuthLogin_NotApplicable(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleOAuthLogin(ctx, callTool("oauth_login", map[string]any{"name": "local"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "MCP server 'local' is a local (stdio) server - OAuth not applicable.", resultText(t, result))

	result, err = s.handleOAuthLogin(ctx, callTool("oauth_login", map[string]any{"name": "static"}))
	require.NoError(t, err)
	assert.Equal(t, "MCP server 'static' uses a static bearer token - no login needed.", resultText(t, result))

	result, err = s.handleOAuthLogin(ctx, callTool("oauth_login", map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, "name argument is required", resultText(t, result))
}

func TestHandleOAuthLogout(t *testing.T) {
	s, m := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, m.Store().Insert("https://mcp.example.com/sse", credentials.StoredToken{AccessToken: "a", TokenType: "Bearer"}))

	result, err := s.handleOAuthLogout(ctx, callTool("oauth_logout", map[string]any{"name": "remote"}))
	require.NoError(t, err)
	assert.Equal(t, "Removed OAuth token for 'remote'.", resultText(t, result))

	result, err = s.handleOAuthLogout(ctx, callTool("oauth_logout", map[string]any{"name": "remote"}))
	require.NoError(t, err)
	assert.Equal(t, "No OAuth token stored for 'remote'.", resultText(t, result))
}

func TestHandleTest_Local(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleTest(context.Background(), callTool("test_mcp_server", map[string]any{"name": "local"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "OK Local server 'local'")
}

func TestServer_ToolsOverMCP(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	c, err := client.NewInProcessClient(s.MCPServer())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Start(ctx))

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "0.0.0"}
	info, err := c.Initialize(ctx, initReq)
	require.NoError(t, err)
	assert.Equal(t, ServerName, info.ServerInfo.Name)

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)

	var names []string
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"mcp_list", "mcp_add", "mcp_remove", "test_mcp_server",
		"oauth_status", "oauth_login", "oauth_logout",
	}, names)

	result, err := c.CallTool(ctx, callTool("oauth_status", map[string]any{"name": "static"}))
	require.NoError(t, err)
	assert.Equal(t, "MCP server 'static' uses a static bearer token.", resultText(t, result))
}
