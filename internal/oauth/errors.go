package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscoveryExhausted means no well-known metadata document could be
	// fetched. Discover recovers from it by synthesizing default metadata.
	ErrDiscoveryExhausted = errors.New("metadata discovery exhausted")

	// ErrUnsupportedChallengeMethod means the authorization server advertises
	// code challenge methods but not S256.
	ErrUnsupportedChallengeMethod = errors.New("authorization server does not support PKCE S256")

	// ErrStateMismatch means the callback state did not match the state sent
	// in the authorization request. The code is never exchanged.
	ErrStateMismatch = errors.New("OAuth state mismatch - possible CSRF attack")

	// ErrMissingCode means the callback carried neither an error nor a code.
	ErrMissingCode = errors.New("no authorization code in callback")

	// ErrCallbackTimeout means the browser never completed the redirect.
	ErrCallbackTimeout = errors.New("timed out waiting for OAuth callback")
)

// CallbackError is an error returned by the authorization server through the
// redirect (error / error_description query parameters).
type CallbackError struct {
	Code        string
	Description string
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("OAuth error: %s - %s", e.Code, e.Description)
}

// TokenExchangeError reports a failed call to the token endpoint.
type TokenExchangeError struct {
	// Operation is "exchange" or "refresh".
	Operation string

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// ErrorCode and Description come from an RFC 6749 error response.
	ErrorCode   string
	Description string

	Err error
}

func (e *TokenExchangeError) Error() string {
	msg := "token " + e.Operation + " failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.ErrorCode != "" {
		msg += ": " + e.ErrorCode
		if e.Description != "" {
			msg += " - " + e.Description
		}
		return msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err aborted an authorization attempt for a
// protocol reason, as opposed to a local or configuration problem.
func IsAuthFailure(err error) bool {
	var callbackErr *CallbackError
	var exchangeErr *TokenExchangeError
	switch {
	case errors.As(err, &callbackErr), errors.As(err, &exchangeErr):
		return true
	case errors.Is(err, ErrStateMismatch),
		errors.Is(err, ErrMissingCode),
		errors.Is(err, ErrUnsupportedChallengeMethod),
		errors.Is(err, ErrCallbackTimeout):
		return true
	default:
		return false
	}
}
