package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
oauth:
  callbackTimeout: 2m
  expiryBuffer: 60s
  openBrowser: false
servers:
  github:
    url: https://mcp.example.com/sse
    auth:
      type: oauth
      clientId: my-client
      scopes: [read, write]
      authServerUrl: https://auth.example.com
  docs:
    httpUrl: https://docs.example.com/mcp
    auth: {type: bearer, token: xyz}
  local:
    command: npx
    args: [-y, some-server]
    env:
      KEY: value
  open:
    url: https://open.example.com/sse
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0600))
	return dir
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultCallbackTimeout, cfg.OAuth.CallbackTimeout)
	assert.Equal(t, DefaultExpiryBuffer, cfg.OAuth.ExpiryBuffer)
	assert.Equal(t, DefaultHTTPTimeout, cfg.OAuth.HTTPTimeout)
	assert.True(t, cfg.OAuth.BrowserEnabled())
	assert.Empty(t, cfg.Servers)
}

func TestLoadConfig_ParsesServersAndAuth(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.OAuth.CallbackTimeout)
	assert.Equal(t, 60*time.Second, cfg.OAuth.ExpiryBuffer)
	assert.Equal(t, DefaultConnectTimeout, cfg.OAuth.ConnectTimeout, "unset keys keep defaults")
	assert.False(t, cfg.OAuth.BrowserEnabled())
	assert.Equal(t, []string{"docs", "github", "local", "open"}, cfg.ServerNames())

	github, ok := cfg.Server("github")
	require.True(t, ok)
	assert.Equal(t, "github", github.Name)
	assert.Equal(t, TransportSSE, github.Transport())
	assert.Equal(t, "https://mcp.example.com/sse", github.RemoteURL())
	assert.True(t, github.RequiresOAuth())
	assert.Equal(t, OAuthAuth{
		ClientID:      "my-client",
		Scopes:        []string{"read", "write"},
		AuthServerURL: "https://auth.example.com",
	}, github.Auth)

	docs, _ := cfg.Server("docs")
	assert.Equal(t, TransportHTTP, docs.Transport())
	assert.Equal(t, BearerAuth{Token: "xyz"}, docs.Auth)
	assert.False(t, docs.RequiresOAuth())

	local, _ := cfg.Server("local")
	assert.Equal(t, TransportStdio, local.Transport())
	assert.Empty(t, local.RemoteURL())
	assert.Equal(t, NoAuth{}, local.Auth)
	assert.Equal(t, map[string]string{"KEY": "value"}, local.Env)

	open, _ := cfg.Server("open")
	assert.Equal(t, NoAuth{}, open.Auth)
}

func TestLoadConfig_Malformed(t *testing.T) {
	dir := writeConfigFile(t, "servers: [not, a, map")

	_, err := LoadConfig(dir)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "parse", cfgErr.ErrorType)
	assert.Contains(t, err.Error(), FilePath(dir))
}

func TestLoadConfig_UnknownAuthType(t *testing.T) {
	dir := writeConfigFile(t, `
servers:
  x:
    url: https://x.example.com
    auth: {type: kerberos}
`)
	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown auth type "kerberos"`)
}

func TestLoadConfig_InvalidServerIsValidationError(t *testing.T) {
	dir := writeConfigFile(t, `
servers:
  broken:
    url: ftp://files.example.com
`)
	_, err := LoadConfig(dir)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "validation", cfgErr.ErrorType)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "servers.broken.url", verrs[0].Field)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, sampleConfig))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "nested")
	require.NoError(t, SaveConfig(dir, cfg))

	info, err := os.Stat(FilePath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.OAuth, reloaded.OAuth)
	assert.Equal(t, cfg.Servers, reloaded.Servers)

	data, err := os.ReadFile(FilePath(dir))
	require.NoError(t, err)
	assert.Contains(t, string(data), "callbackTimeout: 2m0s")
	assert.Contains(t, string(data), "clientId: my-client")
	assert.NotContains(t, string(data), "type: none")
}

func TestConfig_SetAndDeleteServer(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.SetServer(&Server{Name: "a", URL: "https://a.example.com"})

	s, ok := cfg.Server("a")
	require.True(t, ok)
	assert.Equal(t, NoAuth{}, s.Auth)

	assert.True(t, cfg.DeleteServer("a"))
	assert.False(t, cfg.DeleteServer("a"))
}

func TestConfig_CloneHasOwnServerMap(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.SetServer(&Server{Name: "a", URL: "https://a.example.com"})

	clone := cfg.Clone()
	clone.SetServer(&Server{Name: "b", URL: "https://b.example.com"})
	clone.DeleteServer("a")

	assert.Equal(t, []string{"a"}, cfg.ServerNames())
	assert.Equal(t, []string{"b"}, clone.ServerNames())
	assert.Equal(t, cfg.OAuth, clone.OAuth)
}

func TestLoadConfig_ExplicitZeroDurationsAreKept(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, "oauth:\n  callbackTimeout: 0s\n  expiryBuffer: 0s\n"))
	require.NoError(t, err)

	assert.Zero(t, cfg.OAuth.CallbackTimeout)
	assert.Zero(t, cfg.OAuth.ExpiryBuffer)
	assert.Equal(t, DefaultHTTPTimeout, cfg.OAuth.HTTPTimeout)
}
