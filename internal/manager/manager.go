package manager

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/internal/credentials"
	"github.com/BoringStuffInc/mooagent/internal/oauth"
	"github.com/BoringStuffInc/mooagent/internal/probe"
	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

// DefaultConcurrency bounds DiscoverAll and TestAll.
const DefaultConcurrency = 4

// Options configures a Manager.
type Options struct {
	// ConfigDir holds config.yaml and tokens.json.
	ConfigDir string

	// Config is the loaded configuration. Loaded from ConfigDir when nil.
	Config *config.Config

	// Store is the token store. Opened in ConfigDir when nil.
	Store *credentials.Store

	HTTPClient *http.Client
	Prober     *probe.Prober

	// FlowOptions are appended to the options every OAuth flow is built
	// with, so callers can override the browser opener or show the URL.
	FlowOptions []oauth.FlowOption

	// Concurrency bounds the *All operations. Defaults to DefaultConcurrency.
	Concurrency int
}

// Manager implements the per-server operations shared by the CLI and the
// MCP tools: login, logout, status, refresh, discovery and connectivity
// tests, plus editing the server list.
type Manager struct {
	configDir   string
	httpClient  *http.Client
	prober      *probe.Prober
	flowOpts    []oauth.FlowOption
	concurrency int

	mu       sync.RWMutex
	cfg      *config.Config
	store    *credentials.Store
	storeErr error

	// loginMu serializes interactive logins; only one callback listener and
	// browser tab may be active at a time.
	loginMu sync.Mutex
}

// New creates a Manager, loading the configuration and token store from
// opts.ConfigDir when they are not provided. A token file that cannot be
// read leaves the store empty and is reported by StoreLoadError.
func New(opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadConfig(opts.ConfigDir)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	store := opts.Store
	var storeErr error
	if store == nil {
		store, storeErr = credentials.OpenStore(credentials.StoreConfig{Dir: opts.ConfigDir})
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = oauth.NewHTTPClient("", cfg.OAuth.HTTPTimeout, cfg.OAuth.ConnectTimeout)
	}

	prober := opts.Prober
	if prober == nil {
		prober = probe.New(httpClient, "dev")
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Manager{
		configDir:   opts.ConfigDir,
		httpClient:  httpClient,
		prober:      prober,
		flowOpts:    opts.FlowOptions,
		concurrency: concurrency,
		cfg:         cfg,
		store:       store,
		storeErr:    storeErr,
	}, nil
}

// StoreLoadError returns the error from the last attempt to read the token
// file, or nil. While it is set the store starts out empty, and the next
// save overwrites the unreadable file.
func (m *Manager) StoreLoadError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.storeErr
}

// Store returns the token store.
func (m *Manager) Store() *credentials.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

// ConfigDir returns the directory holding config.yaml and tokens.json.
func (m *Manager) ConfigDir() string {
	return m.configDir
}

// Config returns a snapshot of the current configuration. Add and Remove
// publish a new Config instead of editing the old one, so a snapshot can be
// read without locking. Callers must not modify it.
func (m *Manager) Config() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Reload re-reads config.yaml and tokens.json. On a config error the
// previous configuration is kept.
func (m *Manager) Reload() error {
	cfg, err := config.LoadConfig(m.configDir)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	m.mu.Lock()
	m.cfg = cfg
	store := m.store
	m.mu.Unlock()

	err = store.Load()
	m.mu.Lock()
	m.storeErr = err
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to reload tokens: %w", err)
	}

	logging.Info("Manager", "Reloaded configuration (%d servers) and %d tokens", len(cfg.Servers), len(store.ServerURLs()))
	return nil
}

// expiryBuffer is the configured "expires soon" window. Zero disables it.
func (m *Manager) expiryBuffer() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.OAuth.ExpiryBuffer
}

// server looks up a server by name.
func (m *Manager) server(name string) (*config.Server, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.cfg.Server(name)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrServerNotFound, name)
	}
	return s, nil
}

// oauthServer resolves a server that must be configured for OAuth and
// explains why when it is not.
func (m *Manager) oauthServer(name string) (*config.Server, config.OAuthAuth, error) {
	s, err := m.server(name)
	if err != nil {
		return nil, config.OAuthAuth{}, err
	}

	if !s.IsRemote() {
		return nil, config.OAuthAuth{}, fmt.Errorf("MCP server '%s' is a local (stdio) server - %w", name, ErrOAuthNotApplicable)
	}

	switch auth := s.Auth.(type) {
	case config.OAuthAuth:
		return s, auth, nil
	case config.BearerAuth:
		return nil, config.OAuthAuth{}, fmt.Errorf("MCP server '%s' %w", name, ErrStaticBearer)
	case config.NoAuth, nil:
		return nil, config.OAuthAuth{}, fmt.Errorf("MCP server '%s' has %w", name, ErrNoAuthConfigured)
	default:
		panic(fmt.Sprintf("unhandled auth variant %T", auth))
	}
}

func (m *Manager) newFlow(s *config.Server, auth config.OAuthAuth) *oauth.Flow {
	m.mu.RLock()
	settings := m.cfg.OAuth
	m.mu.RUnlock()

	opts := []oauth.FlowOption{
		oauth.WithHTTPClient(m.httpClient),
		oauth.WithCallbackTimeout(settings.CallbackTimeout),
	}
	if !settings.BrowserEnabled() {
		opts = append(opts, oauth.WithBrowserOpener(nil))
	}
	opts = append(opts, m.flowOpts...)

	return oauth.NewFlow(s.RemoteURL(), oauth.Config{
		ClientID:      auth.ClientID,
		ClientSecret:  auth.ClientSecret,
		Scopes:        auth.Scopes,
		AuthServerURL: auth.AuthServerURL,
	}, opts...)
}
