package config

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for mooagent.
type Config struct {
	OAuth   OAuthSettings      `yaml:"oauth"`
	Servers map[string]*Server `yaml:"servers,omitempty"`
}

// OAuthSettings tunes the OAuth client.
type OAuthSettings struct {
	// CallbackTimeout bounds the wait for the browser redirect. 0 waits
	// until the login is interrupted.
	CallbackTimeout time.Duration `yaml:"callbackTimeout"`

	// ExpiryBuffer is how close to expiry a token is reported as expiring
	// soon and refreshed before use. Zero disables the window.
	ExpiryBuffer time.Duration `yaml:"expiryBuffer"`

	HTTPTimeout    time.Duration `yaml:"httpTimeout"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`

	// OpenBrowser defaults to true when unset.
	OpenBrowser *bool `yaml:"openBrowser,omitempty"`
}

// BrowserEnabled reports whether logins should launch a browser.
func (o OAuthSettings) BrowserEnabled() bool {
	return o.OpenBrowser == nil || *o.OpenBrowser
}

// Transport is how mooagent reaches an MCP server.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportSSE   Transport = "sse"
	TransportHTTP  Transport = "http"
)

// Server is one MCP server definition. The transport is inferred from which
// of Command, HTTPURL or URL is set.
type Server struct {
	Name string `yaml:"-"`

	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// URL is an SSE endpoint.
	URL string `yaml:"url,omitempty"`

	// HTTPURL is a streamable HTTP endpoint.
	HTTPURL string `yaml:"httpUrl,omitempty"`

	// Auth is never nil after loading. Stdio servers always use NoAuth.
	Auth Auth `yaml:"-"`
}

// Transport returns the inferred transport, or "" if none is configured.
func (s *Server) Transport() Transport {
	switch {
	case s.Command != "":
		return TransportStdio
	case s.HTTPURL != "":
		return TransportHTTP
	case s.URL != "":
		return TransportSSE
	default:
		return ""
	}
}

// RemoteURL returns the endpoint of a remote server, which is also the key
// its token is stored under. It is empty for stdio servers.
func (s *Server) RemoteURL() string {
	switch s.Transport() {
	case TransportHTTP:
		return s.HTTPURL
	case TransportSSE:
		return s.URL
	default:
		return ""
	}
}

// IsRemote reports whether the server is reached over HTTP.
func (s *Server) IsRemote() bool {
	return s.RemoteURL() != ""
}

// RequiresOAuth reports whether the server is remote and configured for OAuth.
func (s *Server) RequiresOAuth() bool {
	if !s.IsRemote() {
		return false
	}
	_, ok := s.Auth.(OAuthAuth)
	return ok
}

// AuthKind names an authentication variant.
type AuthKind string

const (
	AuthKindNone   AuthKind = "none"
	AuthKindBearer AuthKind = "bearer"
	AuthKindOAuth  AuthKind = "oauth"
)

// Auth is the authentication used for a remote server. It is one of
// NoAuth, BearerAuth or OAuthAuth.
type Auth interface {
	Kind() AuthKind
	isAuth()
}

// NoAuth sends no credentials.
type NoAuth struct{}

// BearerAuth sends a static token.
type BearerAuth struct {
	Token string
}

// OAuthAuth obtains tokens through the authorization code flow.
type OAuthAuth struct {
	ClientID      string
	ClientSecret  string
	Scopes        []string
	AuthServerURL string
}

func (NoAuth) Kind() AuthKind     { return AuthKindNone }
func (BearerAuth) Kind() AuthKind { return AuthKindBearer }
func (OAuthAuth) Kind() AuthKind  { return AuthKindOAuth }

func (NoAuth) isAuth()     {}
func (BearerAuth) isAuth() {}
func (OAuthAuth) isAuth()  {}

// authDocument is the YAML form of Auth.
type authDocument struct {
	Type          AuthKind `yaml:"type"`
	Token         string   `yaml:"token,omitempty"`
	ClientID      string   `yaml:"clientId,omitempty"`
	ClientSecret  string   `yaml:"clientSecret,omitempty"`
	Scopes        []string `yaml:"scopes,omitempty"`
	AuthServerURL string   `yaml:"authServerUrl,omitempty"`
}

// serverDocument is the YAML form of Server.
type serverDocument struct {
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	URL     string            `yaml:"url,omitempty"`
	HTTPURL string            `yaml:"httpUrl,omitempty"`
	Auth    *authDocument     `yaml:"auth,omitempty"`
}

// UnmarshalYAML decodes a server and its auth variant.
func (s *Server) UnmarshalYAML(node *yaml.Node) error {
	var doc serverDocument
	if err := node.Decode(&doc); err != nil {
		return err
	}

	auth, err := decodeAuth(doc.Auth)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}

	*s = Server{
		Name:    s.Name,
		Command: doc.Command,
		Args:    doc.Args,
		Env:     doc.Env,
		URL:     doc.URL,
		HTTPURL: doc.HTTPURL,
		Auth:    auth,
	}
	return nil
}

// MarshalYAML encodes a server. NoAuth is omitted.
func (s *Server) MarshalYAML() (interface{}, error) {
	return serverDocument{
		Command: s.Command,
		Args:    s.Args,
		Env:     s.Env,
		URL:     s.URL,
		HTTPURL: s.HTTPURL,
		Auth:    encodeAuth(s.Auth),
	}, nil
}

func decodeAuth(doc *authDocument) (Auth, error) {
	if doc == nil {
		return NoAuth{}, nil
	}

	switch doc.Type {
	case "", AuthKindNone:
		return NoAuth{}, nil
	case AuthKindBearer:
		return BearerAuth{Token: doc.Token}, nil
	case AuthKindOAuth:
		return OAuthAuth{
			ClientID:      doc.ClientID,
			ClientSecret:  doc.ClientSecret,
			Scopes:        doc.Scopes,
			AuthServerURL: doc.AuthServerURL,
		}, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q (want none, bearer or oauth)", doc.Type)
	}
}

func encodeAuth(auth Auth) *authDocument {
	switch a := auth.(type) {
	case nil, NoAuth:
		return nil
	case BearerAuth:
		return &authDocument{Type: AuthKindBearer, Token: a.Token}
	case OAuthAuth:
		return &authDocument{
			Type:          AuthKindOAuth,
			ClientID:      a.ClientID,
			ClientSecret:  a.ClientSecret,
			Scopes:        a.Scopes,
			AuthServerURL: a.AuthServerURL,
		}
	default:
		panic(fmt.Sprintf("unhandled auth variant %T", auth))
	}
}

// ParseAuthKind validates a user supplied auth type.
func ParseAuthKind(s string) (AuthKind, error) {
	kind := AuthKind(s)
	if !slices.Contains([]AuthKind{AuthKindNone, AuthKindBearer, AuthKindOAuth}, kind) {
		return "", fmt.Errorf("unknown auth type %q (want none, bearer or oauth)", s)
	}
	return kind, nil
}

// Clone returns a copy of c with its own server map. Server values are
// shared, so callers must replace a server rather than edit it.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Servers = make(map[string]*Server, len(c.Servers))
	for name, s := range c.Servers {
		clone.Servers[name] = s
	}
	return &clone
}

// Server returns the named server.
func (c *Config) Server(name string) (*Server, bool) {
	s, ok := c.Servers[name]
	return s, ok
}

// SetServer adds or replaces a server.
func (c *Config) SetServer(s *Server) {
	if c.Servers == nil {
		c.Servers = make(map[string]*Server)
	}
	if s.Auth == nil {
		s.Auth = NoAuth{}
	}
	c.Servers[s.Name] = s
}

// DeleteServer removes a server and reports whether it existed.
func (c *Config) DeleteServer(name string) bool {
	if _, ok := c.Servers[name]; !ok {
		return false
	}
	delete(c.Servers, name)
	return true
}

// ServerNames returns the configured server names in sorted order.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fillNames copies map keys into Server.Name after decoding.
func (c *Config) fillNames() {
	for name, s := range c.Servers {
		if s == nil {
			s = &Server{Auth: NoAuth{}}
			c.Servers[name] = s
		}
		s.Name = name
		if s.Auth == nil {
			s.Auth = NoAuth{}
		}
	}
}
