package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/BoringStuffInc/mooagent/internal/credentials"
	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

// Config is the client registration used for one server. It is not
// modified by a Flow.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	// AuthServerURL skips protected-resource discovery when set.
	AuthServerURL string
}

// Flow runs the authorization code + PKCE grant against one MCP server.
//
// Discovery and authorization are separate calls: Discover returns the
// metadata and the caller hands it to Authorize or Refresh, so nothing is
// cached inside the Flow.
type Flow struct {
	id        string
	serverURL string
	config    Config

	httpClient      *http.Client
	openBrowser     BrowserOpener
	onAuthURL       func(string)
	callbackTimeout time.Duration
	now             func() time.Time
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithHTTPClient sets the client used for discovery and token requests.
func WithHTTPClient(client *http.Client) FlowOption {
	return func(f *Flow) {
		f.httpClient = client
	}
}

// WithBrowserOpener replaces the browser launcher. nil disables it.
func WithBrowserOpener(opener BrowserOpener) FlowOption {
	return func(f *Flow) {
		f.openBrowser = opener
	}
}

// WithCallbackTimeout bounds the wait for the browser redirect. Zero waits
// until the context is cancelled.
func WithCallbackTimeout(timeout time.Duration) FlowOption {
	return func(f *Flow) {
		f.callbackTimeout = timeout
	}
}

// WithAuthURLHandler registers fn to receive the authorization URL before
// the browser is opened, so it can be shown to the user.
func WithAuthURLHandler(fn func(authURL string)) FlowOption {
	return func(f *Flow) {
		f.onAuthURL = fn
	}
}

// WithClock overrides the clock used to compute token expiry.
func WithClock(now func() time.Time) FlowOption {
	return func(f *Flow) {
		f.now = now
	}
}

// NewFlow creates a flow for serverURL.
func NewFlow(serverURL string, config Config, opts ...FlowOption) *Flow {
	f := &Flow{
		id:              uuid.NewString(),
		serverURL:       serverURL,
		config:          config,
		openBrowser:     OpenBrowser,
		callbackTimeout: DefaultCallbackTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.httpClient == nil {
		f.httpClient = NewHTTPClient("", 0, 0)
	}
	return f
}

// ID returns the correlation id attached to this flow's log records.
func (f *Flow) ID() string {
	return f.id
}

// ServerURL returns the MCP server URL the flow authenticates against.
func (f *Flow) ServerURL() string {
	return f.serverURL
}

// Discover resolves the authorization server metadata for the server.
func (f *Flow) Discover(ctx context.Context) (*AuthServerMetadata, error) {
	logging.Debug("OAuth", "[flow %s] Discovering authorization server for %s", f.id, f.serverURL)

	md, err := NewDiscoverer(f.httpClient).Discover(ctx, f.serverURL, f.config.AuthServerURL)
	if err != nil {
		return nil, fmt.Errorf("discovery failed for %s: %w", f.serverURL, err)
	}

	logging.Debug("OAuth", "[flow %s] Using authorization endpoint %s and token endpoint %s",
		f.id, md.AuthorizationEndpoint, md.TokenEndpoint)
	return md, nil
}

// Authorize runs the interactive part of the grant: it binds the callback
// listener, opens the browser, waits for the redirect and exchanges the
// code. The returned token is not persisted.
func (f *Flow) Authorize(ctx context.Context, md *AuthServerMetadata) (*credentials.StoredToken, error) {
	if md == nil {
		return nil, errors.New("authorization server metadata is required")
	}
	if !md.SupportsS256() {
		return nil, ErrUnsupportedChallengeMethod
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}

	listener, err := ListenForCallback(state)
	if err != nil {
		return nil, err
	}
	defer listener.Close()

	authURL := f.AuthorizationURL(md, listener.RedirectURI(), state, pkce)

	if f.onAuthURL != nil {
		f.onAuthURL(authURL)
	}
	if f.openBrowser != nil {
		if err := f.openBrowser(authURL); err != nil {
			logging.Warn("OAuth", "[flow %s] Could not open browser: %v", f.id, err)
		}
	}

	waitCtx := ctx
	if f.callbackTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, f.callbackTimeout)
		defer cancel()
	}

	logging.Debug("OAuth", "[flow %s] Waiting for callback on %s", f.id, listener.RedirectURI())
	code, err := listener.Wait(waitCtx)
	if err != nil {
		f.audit("authorization_failed", "failure", slog.String("error", err.Error()))
		return nil, err
	}

	tok, err := NewExchanger(f.httpClient, f.config.ClientID, f.config.ClientSecret, f.now).
		ExchangeCode(ctx, md, code, listener.RedirectURI(), pkce.CodeVerifier, f.serverURL)
	if err != nil {
		f.audit("token_exchange_failed", "failure", slog.String("error", err.Error()))
		return nil, err
	}

	f.audit("token_exchanged", "success", slog.Bool("has_refresh_token", tok.RefreshToken != ""))
	return tok, nil
}

// Refresh redeems refreshToken at the token endpoint in md.
func (f *Flow) Refresh(ctx context.Context, md *AuthServerMetadata, refreshToken string) (*credentials.StoredToken, error) {
	if md == nil {
		return nil, errors.New("authorization server metadata is required")
	}

	tok, err := NewExchanger(f.httpClient, f.config.ClientID, f.config.ClientSecret, f.now).
		Refresh(ctx, md, refreshToken)
	if err != nil {
		f.audit("token_refresh_failed", "failure", slog.String("error", err.Error()))
		return nil, err
	}

	f.audit("token_refreshed", "success", slog.Bool("new_refresh_token", tok.RefreshToken != refreshToken))
	return tok, nil
}

// AuthorizationURL builds the authorization request URL. scope is omitted
// when neither the config nor the metadata names any scopes.
func (f *Flow) AuthorizationURL(md *AuthServerMetadata, redirectURI, state string, pkce *PKCEChallenge) string {
	conf := &oauth2.Config{
		ClientID:    f.config.ClientID,
		RedirectURL: redirectURI,
		Scopes:      f.scopes(md),
		Endpoint: oauth2.Endpoint{
			AuthURL:  md.AuthorizationEndpoint,
			TokenURL: md.TokenEndpoint,
		},
	}

	return conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.CodeChallengeMethod),
		oauth2.SetAuthURLParam("resource", f.serverURL),
	)
}

func (f *Flow) scopes(md *AuthServerMetadata) []string {
	if len(f.config.Scopes) > 0 {
		return f.config.Scopes
	}
	return md.ScopesSupported
}

func (f *Flow) audit(action, outcome string, attrs ...slog.Attr) {
	logging.Audit(logging.AuditEvent{
		Action:    action,
		ServerURL: f.serverURL,
		Outcome:   outcome,
		Attrs:     append([]slog.Attr{slog.String("flow_id", f.id)}, attrs...),
	})
}
