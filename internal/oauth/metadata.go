package oauth

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ProtectedResourceMetadata is the RFC 9728 document served by a resource
// server. Only the fields needed to locate an authorization server are kept.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource,omitempty"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
}

// AuthServerMetadata is the RFC 8414 / OIDC discovery document of an
// authorization server.
type AuthServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint,omitempty"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	ClientIDMetadataDocumentSupported bool     `json:"client_id_metadata_document_supported,omitempty"`

	// Source is the URL the document was fetched from. Empty when the
	// metadata was synthesized.
	Source string `json:"-"`

	// Synthesized is set when no discovery document could be fetched and
	// endpoints were derived from the authorization server base URL.
	Synthesized bool `json:"-"`
}

// SupportsS256 reports whether the server can be used with S256 PKCE. A
// server that does not advertise any challenge methods is given the benefit
// of the doubt.
func (m *AuthServerMetadata) SupportsS256() bool {
	if len(m.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	return slices.Contains(m.CodeChallengeMethodsSupported, PKCEMethodS256)
}

// SupportsDynamicRegistration reports whether a registration endpoint is
// advertised. mooagent only reports this; it never registers clients.
func (m *AuthServerMetadata) SupportsDynamicRegistration() bool {
	return m.RegistrationEndpoint != "" && !m.Synthesized
}

func (m *AuthServerMetadata) validate() error {
	if m.AuthorizationEndpoint == "" {
		return fmt.Errorf("metadata missing authorization_endpoint")
	}
	if m.TokenEndpoint == "" {
		return fmt.Errorf("metadata missing token_endpoint")
	}
	return nil
}

// defaultMetadata derives endpoints from the authorization server URL when
// no discovery document is available.
func defaultMetadata(authServerURL string) (*AuthServerMetadata, error) {
	base, _, err := splitBaseURL(authServerURL)
	if err != nil {
		return nil, err
	}

	return &AuthServerMetadata{
		Issuer:                        authServerURL,
		AuthorizationEndpoint:         base + "/authorize",
		TokenEndpoint:                 base + "/token",
		RegistrationEndpoint:          base + "/register",
		ResponseTypesSupported:        []string{"code"},
		GrantTypesSupported:           []string{"authorization_code"},
		CodeChallengeMethodsSupported: []string{PKCEMethodS256},
		Synthesized:                   true,
	}, nil
}

// splitBaseURL returns scheme://host[:port] and the path with any trailing
// slash removed ("" for root).
func splitBaseURL(raw string) (base, path string, err error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", "", fmt.Errorf("URL %q must include scheme and host", raw)
	}

	base = parsed.Scheme + "://" + parsed.Host
	path = strings.TrimRight(parsed.EscapedPath(), "/")
	return base, path, nil
}

// protectedResourceURLs lists RFC 9728 well-known locations for a resource,
// path-suffixed first.
func protectedResourceURLs(resourceURL string) ([]string, error) {
	base, path, err := splitBaseURL(resourceURL)
	if err != nil {
		return nil, err
	}

	var urls []string
	if path != "" {
		urls = append(urls, base+"/.well-known/oauth-protected-resource"+path)
	}
	urls = append(urls, base+"/.well-known/oauth-protected-resource")
	return urls, nil
}

// authServerMetadataURLs lists RFC 8414 and OIDC discovery locations in
// priority order.
func authServerMetadataURLs(authServerURL string) ([]string, error) {
	base, path, err := splitBaseURL(authServerURL)
	if err != nil {
		return nil, err
	}

	if path == "" {
		return []string{
			base + "/.well-known/oauth-authorization-server",
			base + "/.well-known/openid-configuration",
		}, nil
	}

	return []string{
		base + "/.well-known/oauth-authorization-server" + path,
		base + "/.well-known/openid-configuration" + path,
		base + path + "/.well-known/openid-configuration",
	}, nil
}
