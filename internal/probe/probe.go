package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

// DefaultTimeout bounds a single connectivity check.
const DefaultTimeout = 10 * time.Second

// ErrUnauthorized means the server rejected the request with HTTP 401.
var ErrUnauthorized = errors.New("server requires authentication (HTTP 401)")

// Result is the outcome of probing one server.
type Result struct {
	Name      string           `json:"name"`
	Transport config.Transport `json:"transport"`
	OK        bool             `json:"ok"`

	// Path is the resolved executable for stdio servers.
	Path string `json:"path,omitempty"`

	ServerName    string   `json:"serverName,omitempty"`
	ServerVersion string   `json:"serverVersion,omitempty"`
	Tools         []string `json:"tools,omitempty"`

	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`

	err error
}

// Err returns the underlying failure, or nil.
func (r Result) Err() error {
	return r.err
}

// Prober checks that MCP servers are reachable.
type Prober struct {
	httpClient *http.Client
	timeout    time.Duration
	version    string
	lookPath   func(string) (string, error)
}

// New creates a Prober. httpClient carries the user agent and timeouts used
// for remote servers; version is reported as the MCP client version.
func New(httpClient *http.Client, version string) *Prober {
	return &Prober{
		httpClient: httpClient,
		timeout:    DefaultTimeout,
		version:    version,
		lookPath:   exec.LookPath,
	}
}

// Probe checks one server. Stdio servers only have their command resolved on
// PATH; remote servers are initialized over MCP and asked for their tools.
// authorization is sent as the Authorization header when non-empty.
func (p *Prober) Probe(ctx context.Context, server *config.Server, authorization string) Result {
	start := time.Now()
	result := Result{Name: server.Name, Transport: server.Transport()}

	var err error
	switch result.Transport {
	case config.TransportStdio:
		result.Path, err = p.lookPath(server.Command)
		if err != nil {
			err = fmt.Errorf("command %q not found: %w", server.Command, err)
		}
	case config.TransportSSE, config.TransportHTTP:
		err = p.probeRemote(ctx, server, authorization, &result)
	default:
		err = fmt.Errorf("server %q has no transport configured", server.Name)
	}

	result.Duration = time.Since(start)
	if err != nil {
		result.err = err
		result.Error = err.Error()
		logging.Debug("Probe", "Server %s failed: %v", server.Name, err)
		return result
	}

	result.OK = true
	return result
}

func (p *Prober) probeRemote(ctx context.Context, server *config.Server, authorization string, result *Result) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	headers := map[string]string{}
	if authorization != "" {
		headers["Authorization"] = authorization
	}

	mcpClient, err := p.newClient(server, headers)
	if err != nil {
		return err
	}
	defer mcpClient.Close()

	if err := mcpClient.Start(ctx); err != nil {
		return classify(fmt.Errorf("failed to start %s transport: %w", server.Transport(), err))
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "mooagent", Version: p.version}
	req.Params.Capabilities = mcp.ClientCapabilities{}

	initResult, err := mcpClient.Initialize(ctx, req)
	if err != nil {
		return classify(fmt.Errorf("failed to initialize MCP protocol: %w", err))
	}
	result.ServerName = initResult.ServerInfo.Name
	result.ServerVersion = initResult.ServerInfo.Version

	tools, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return classify(fmt.Errorf("failed to list tools: %w", err))
	}
	for _, tool := range tools.Tools {
		result.Tools = append(result.Tools, tool.Name)
	}

	logging.Debug("Probe", "Server %s (%s %s) exposes %d tools",
		server.Name, result.ServerName, result.ServerVersion, len(result.Tools))
	return nil
}

func (p *Prober) newClient(server *config.Server, headers map[string]string) (*client.Client, error) {
	switch server.Transport() {
	case config.TransportSSE:
		opts := []transport.ClientOption{transport.WithHeaders(headers)}
		if p.httpClient != nil {
			opts = append(opts, transport.WithHTTPClient(p.httpClient))
		}
		c, err := client.NewSSEMCPClient(server.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE client: %w", err)
		}
		return c, nil

	case config.TransportHTTP:
		opts := []transport.StreamableHTTPCOption{transport.WithHTTPHeaders(headers)}
		if p.httpClient != nil {
			opts = append(opts, transport.WithHTTPBasicClient(p.httpClient))
		}
		c, err := client.NewStreamableHttpClient(server.HTTPURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create StreamableHTTP client: %w", err)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("transport %q is not remote", server.Transport())
	}
}

// classify maps transport errors that carry a 401 onto ErrUnauthorized.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return err
}
