package credentials

import (
	"strings"
	"time"
)

// DefaultTokenType is used when the authorization server omits token_type.
const DefaultTokenType = "Bearer"

// DefaultExpiryBuffer is the window before expiry in which a token is
// reported as ExpiresSoon.
const DefaultExpiryBuffer = 300 * time.Second

// StoredToken is the persisted form of an OAuth token for one server.
type StoredToken struct {
	// AccessToken is the OAuth access token.
	AccessToken string `json:"access_token"`

	// RefreshToken is the OAuth refresh token, if one was issued.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is nil for tokens the server issued without expires_in.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`

	// Scopes granted by the server, in the order it returned them.
	Scopes []string `json:"scopes"`
}

// HasExpiry reports whether the token carries an expiry time.
func (t StoredToken) HasExpiry() bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.IsZero()
}

// IsExpired reports whether the token expired at or before now.
// Tokens without an expiry never expire.
func (t StoredToken) IsExpired(now time.Time) bool {
	if !t.HasExpiry() {
		return false
	}
	return !t.ExpiresAt.After(now)
}

// AuthorizationHeader returns the value for an HTTP Authorization header.
func (t StoredToken) AuthorizationHeader() string {
	tokenType := t.TokenType
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = DefaultTokenType
	}
	return tokenType + " " + t.AccessToken
}

// TokenStatus classifies the freshness of a stored token.
type TokenStatus int

const (
	// StatusNone means no token is stored.
	StatusNone TokenStatus = iota
	// StatusValid means the token is usable and not close to expiry.
	StatusValid
	// StatusExpiresSoon means the token expires within the buffer.
	StatusExpiresSoon
	// StatusExpired means the token expiry is in the past.
	StatusExpired
)

// String returns a machine friendly name.
// NeedsRefresh reports whether a token in this state should be refreshed
// before use.
func (s TokenStatus) NeedsRefresh() bool {
	return s == StatusExpired || s == StatusExpiresSoon
}

func (s TokenStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpiresSoon:
		return "expires_soon"
	case StatusExpired:
		return "expired"
	default:
		return "none"
	}
}

// Symbol returns a one character marker for compact listings.
func (s TokenStatus) Symbol() string {
	switch s {
	case StatusValid:
		return "V"
	case StatusExpiresSoon:
		return "!"
	case StatusExpired:
		return "X"
	default:
		return "?"
	}
}

// Description returns human readable text for the status.
func (s TokenStatus) Description() string {
	switch s {
	case StatusValid:
		return "Authenticated"
	case StatusExpiresSoon:
		return "Token expires soon"
	case StatusExpired:
		return "Token expired"
	default:
		return "Not authenticated"
	}
}

// ClassifyToken computes the status of tok at now. A nil token is StatusNone.
func ClassifyToken(tok *StoredToken, now time.Time, buffer time.Duration) TokenStatus {
	if tok == nil {
		return StatusNone
	}
	if !tok.HasExpiry() {
		return StatusValid
	}
	if !tok.ExpiresAt.After(now) {
		return StatusExpired
	}
	if !tok.ExpiresAt.After(now.Add(buffer)) {
		return StatusExpiresSoon
	}
	return StatusValid
}

// NormalizeServerURL returns the store key for a server URL: lower-cased
// with trailing slashes removed.
func NormalizeServerURL(serverURL string) string {
	return strings.ToLower(strings.TrimRight(serverURL, "/"))
}
