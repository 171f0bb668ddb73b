package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoringStuffInc/mooagent/internal/config"
)

// newMCPTestServer serves a streamable HTTP MCP server with two tools that
// only accepts requests carrying wantAuth.
func newMCPTestServer(t *testing.T, wantAuth string) *httptest.Server {
	t.Helper()

	mcpServer := server.NewMCPServer("fake-mcp", "0.1.0", server.WithToolCapabilities(false))
	noop := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}
	mcpServer.AddTool(mcp.NewTool("alpha", mcp.WithDescription("first")), noop)
	mcpServer.AddTool(mcp.NewTool("beta", mcp.WithDescription("second")), noop)

	handler := server.NewStreamableHTTPServer(mcpServer)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAuth != "" && r.Header.Get("Authorization") != wantAuth {
			w.Header().Set("WWW-Authenticate", `Bearer resource_metadata="x"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProbe_StdioResolvesCommand(t *testing.T) {
	p := New(nil, "test")
	p.lookPath = func(name string) (string, error) {
		if name == "npx" {
			return "/usr/bin/npx", nil
		}
		return "", errors.New("executable file not found in $PATH")
	}

	ok := p.Probe(context.Background(), &config.Server{Name: "local", Command: "npx"}, "")
	assert.True(t, ok.OK)
	assert.Equal(t, "/usr/bin/npx", ok.Path)
	assert.Equal(t, config.TransportStdio, ok.Transport)

	missing := p.Probe(context.Background(), &config.Server{Name: "gone", Command: "nope"}, "")
	assert.False(t, missing.OK)
	assert.Contains(t, missing.Error, `command "nope" not found`)
	assert.Error(t, missing.Err())
}

func TestProbe_NoTransport(t *testing.T) {
	r := New(nil, "test").Probe(context.Background(), &config.Server{Name: "empty"}, "")
	assert.False(t, r.OK)
	assert.Contains(t, r.Error, "no transport")
}

func TestProbe_StreamableHTTPListsTools(t *testing.T) {
	srv := newMCPTestServer(t, "Bearer good-token")

	r := New(srv.Client(), "test").Probe(context.Background(),
		&config.Server{Name: "remote", HTTPURL: srv.URL + "/mcp"}, "Bearer good-token")

	require.True(t, r.OK, "probe failed: %s", r.Error)
	assert.Equal(t, "fake-mcp", r.ServerName)
	assert.Equal(t, "0.1.0", r.ServerVersion)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, r.Tools)
}

func TestProbe_UnauthorizedIsClassified(t *testing.T) {
	srv := newMCPTestServer(t, "Bearer good-token")

	r := New(srv.Client(), "test").Probe(context.Background(),
		&config.Server{Name: "remote", HTTPURL: srv.URL + "/mcp"}, "Bearer stale")

	assert.False(t, r.OK)
	assert.True(t, errors.Is(r.Err(), ErrUnauthorized), "got %v", r.Err())
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := New(nil, "test").Probe(context.Background(), &config.Server{Name: "down", HTTPURL: url + "/mcp"}, "")
	assert.False(t, r.OK)
	assert.NotEmpty(t, r.Error)
}
