package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BoringStuffInc/mooagent/internal/config"
	"github.com/BoringStuffInc/mooagent/internal/credentials"
	"github.com/BoringStuffInc/mooagent/internal/oauth"
	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

// ServerStatus describes one server and the state of its credentials.
type ServerStatus struct {
	Name      string           `json:"name"`
	Transport config.Transport `json:"transport"`
	URL       string           `json:"url,omitempty"`
	Command   string           `json:"command,omitempty"`
	Auth      config.AuthKind  `json:"auth"`

	// Token is set for OAuth servers only.
	Token *credentials.TokenStatus `json:"-"`

	TokenState      string     `json:"tokenStatus,omitempty"`
	ClientID        string     `json:"clientId,omitempty"`
	Scopes          []string   `json:"scopes,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	HasRefreshToken bool       `json:"hasRefreshToken,omitempty"`

	Message string `json:"message"`
}

// Symbol returns a one character marker for tables.
func (s ServerStatus) Symbol() string {
	if s.Token != nil {
		return s.Token.Symbol()
	}
	return "-"
}

// NeedsLogin reports whether an OAuth server has no usable token.
func (s ServerStatus) NeedsLogin() bool {
	return s.Token != nil && (*s.Token == credentials.StatusNone || *s.Token == credentials.StatusExpired)
}

// Login runs the interactive OAuth flow for the named server and stores the
// resulting token. Logins are serialized.
func (m *Manager) Login(ctx context.Context, name string) (*credentials.StoredToken, error) {
	s, auth, err := m.oauthServer(name)
	if err != nil {
		return nil, err
	}

	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	flow := m.newFlow(s, auth)
	logging.Info("Manager", "Starting OAuth login for %s (flow %s)", name, flow.ID())

	md, err := flow.Discover(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := flow.Authorize(ctx, md)
	if err != nil {
		return nil, err
	}

	if err := m.Store().Insert(s.RemoteURL(), *tok); err != nil {
		return nil, fmt.Errorf("authenticated but failed to store token: %w", err)
	}

	logging.Info("Manager", "Stored OAuth token for %s", name)
	return tok, nil
}

// Logout removes the stored token of the named server and reports whether
// one existed.
func (m *Manager) Logout(name string) (bool, error) {
	s, _, err := m.oauthServer(name)
	if err != nil {
		return false, err
	}

	_, removed, err := m.Store().Remove(s.RemoteURL())
	if err != nil {
		return false, err
	}
	return removed, nil
}

// LogoutAll removes every stored token and returns how many were removed.
func (m *Manager) LogoutAll() (int, error) {
	return m.Store().Clear()
}

// Refresh exchanges the stored refresh token of the named server for a new
// access token.
func (m *Manager) Refresh(ctx context.Context, name string) (*credentials.StoredToken, error) {
	s, auth, err := m.oauthServer(name)
	if err != nil {
		return nil, err
	}

	current, ok := m.Store().Get(s.RemoteURL())
	if !ok || current.RefreshToken == "" {
		return nil, fmt.Errorf("MCP server '%s' has no refresh token: %w", name, ErrAuthRequired)
	}

	flow := m.newFlow(s, auth)
	md, err := flow.Discover(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := flow.Refresh(ctx, md, current.RefreshToken)
	if err != nil {
		return nil, err
	}

	if err := m.Store().Insert(s.RemoteURL(), *tok); err != nil {
		return nil, fmt.Errorf("refreshed but failed to store token: %w", err)
	}
	return tok, nil
}

// DiscoveryResult is the outcome of discovering one server.
type DiscoveryResult struct {
	Name     string                    `json:"name"`
	URL      string                    `json:"url"`
	Metadata *oauth.AuthServerMetadata `json:"metadata,omitempty"`
	Error    string                    `json:"error,omitempty"`

	err error
}

// Err returns the discovery failure, or nil.
func (r DiscoveryResult) Err() error {
	return r.err
}

// Discover resolves authorization server metadata for the named server
// without starting a login.
func (m *Manager) Discover(ctx context.Context, name string) (*oauth.AuthServerMetadata, error) {
	s, auth, err := m.oauthServer(name)
	if err != nil {
		return nil, err
	}
	return m.newFlow(s, auth).Discover(ctx)
}

// DiscoverAll runs discovery for every OAuth server concurrently. Results
// are ordered by server name.
func (m *Manager) DiscoverAll(ctx context.Context) []DiscoveryResult {
	cfg := m.Config()

	var servers []*config.Server
	for _, name := range cfg.ServerNames() {
		if s, _ := cfg.Server(name); s.RequiresOAuth() {
			servers = append(servers, s)
		}
	}

	results := make([]DiscoveryResult, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, s := range servers {
		g.Go(func() error {
			name := s.Name
			md, err := m.newFlow(s, s.Auth.(config.OAuthAuth)).Discover(gctx)
			results[i] = DiscoveryResult{Name: name, URL: s.RemoteURL(), Metadata: md, err: err}
			if err != nil {
				results[i].Error = err.Error()
			}
			// Failures are per server and must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Status reports the credential state of the named server.
func (m *Manager) Status(name string) (ServerStatus, error) {
	s, err := m.server(name)
	if err != nil {
		return ServerStatus{}, err
	}
	return m.status(s), nil
}

// List reports every configured server sorted by name.
func (m *Manager) List() []ServerStatus {
	cfg := m.Config()

	statuses := make([]ServerStatus, 0, len(cfg.Servers))
	for _, name := range cfg.ServerNames() {
		s, _ := cfg.Server(name)
		statuses = append(statuses, m.status(s))
	}
	return statuses
}

func (m *Manager) status(s *config.Server) ServerStatus {
	st := ServerStatus{
		Name:      s.Name,
		Transport: s.Transport(),
		URL:       s.RemoteURL(),
		Command:   s.Command,
		Auth:      config.AuthKindNone,
	}

	if !s.IsRemote() {
		st.Message = fmt.Sprintf("MCP server '%s' is a local (stdio) server - OAuth not applicable.", s.Name)
		return st
	}

	switch auth := s.Auth.(type) {
	case config.NoAuth, nil:
		st.Message = fmt.Sprintf("MCP server '%s' has no authentication configured.", s.Name)
	case config.BearerAuth:
		st.Auth = config.AuthKindBearer
		st.Message = fmt.Sprintf("MCP server '%s' uses a static bearer token.", s.Name)
	case config.OAuthAuth:
		st.Auth = config.AuthKindOAuth
		st.ClientID = auth.ClientID
		st.Scopes = auth.Scopes

		store := m.Store()
		tokenStatus := store.StatusWithBuffer(s.RemoteURL(), m.expiryBuffer())
		st.Token = &tokenStatus
		st.TokenState = tokenStatus.String()
		st.Message = tokenStatus.Description()

		if tok, ok := store.Get(s.RemoteURL()); ok {
			st.ExpiresAt = tok.ExpiresAt
			st.HasRefreshToken = tok.RefreshToken != ""
			if len(tok.Scopes) > 0 {
				st.Scopes = tok.Scopes
			}
		}
	default:
		panic(fmt.Sprintf("unhandled auth variant %T", auth))
	}

	return st
}

// AuthorizationHeader returns the Authorization header value to send to a
// remote server, or "" when none applies. An OAuth token that is expired or
// about to expire is refreshed once if a refresh token is available.
func (m *Manager) AuthorizationHeader(ctx context.Context, s *config.Server) (string, error) {
	switch auth := s.Auth.(type) {
	case config.NoAuth, nil:
		return "", nil
	case config.BearerAuth:
		return "Bearer " + auth.Token, nil
	case config.OAuthAuth:
		store := m.Store()
		url := s.RemoteURL()

		tok, ok := store.Get(url)
		if !ok {
			return "", fmt.Errorf("MCP server '%s' has no stored token: %w", s.Name, ErrAuthRequired)
		}

		if store.StatusWithBuffer(url, m.expiryBuffer()).NeedsRefresh() && tok.RefreshToken != "" {
			refreshed, err := m.Refresh(ctx, s.Name)
			if err == nil {
				return refreshed.AuthorizationHeader(), nil
			}
			logging.Warn("Manager", "Token refresh for %s failed: %v", s.Name, err)
		}

		if valid, ok := store.GetValid(url); ok {
			return valid.AuthorizationHeader(), nil
		}
		return "", fmt.Errorf("MCP server '%s' token expired: %w", s.Name, ErrAuthRequired)
	default:
		panic(fmt.Sprintf("unhandled auth variant %T", auth))
	}
}

// IsNotApplicable reports errors that mean a server does not use OAuth at
// all, as opposed to a failed login.
func IsNotApplicable(err error) bool {
	return errors.Is(err, ErrOAuthNotApplicable) ||
		errors.Is(err, ErrNoAuthConfigured) ||
		errors.Is(err, ErrStaticBearer)
}
