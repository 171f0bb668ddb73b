package oauth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/BoringStuffInc/mooagent/internal/credentials"
)

// Exchanger turns authorization codes and refresh tokens into stored tokens
// by calling the token endpoint.
type Exchanger struct {
	client       *http.Client
	clientID     string
	clientSecret string
	now          func() time.Time
}

// NewExchanger returns an Exchanger for a client. A nil now defaults to
// time.Now.
func NewExchanger(client *http.Client, clientID, clientSecret string, now func() time.Time) *Exchanger {
	if client == nil {
		client = NewHTTPClient("", 0, 0)
	}
	if now == nil {
		now = time.Now
	}
	return &Exchanger{
		client:       client,
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          now,
	}
}

func (e *Exchanger) config(md *AuthServerMetadata, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     e.clientID,
		ClientSecret: e.clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  md.AuthorizationEndpoint,
			TokenURL: md.TokenEndpoint,
			// Credentials go in the form body. Public clients send only client_id.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (e *Exchanger) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.client)
}

// ExchangeCode redeems an authorization code. resource is sent as the RFC
// 8707 resource indicator.
func (e *Exchanger) ExchangeCode(ctx context.Context, md *AuthServerMetadata, code, redirectURI, verifier, resource string) (*credentials.StoredToken, error) {
	opts := []oauth2.AuthCodeOption{oauth2.VerifierOption(verifier)}
	if resource != "" {
		opts = append(opts, oauth2.SetAuthURLParam("resource", resource))
	}

	tok, err := e.config(md, redirectURI).Exchange(e.context(ctx), code, opts...)
	if err != nil {
		return nil, tokenError("exchange", err)
	}
	return e.normalize(tok), nil
}

// Refresh redeems a refresh token. The previous refresh token is kept when
// the server does not issue a new one.
func (e *Exchanger) Refresh(ctx context.Context, md *AuthServerMetadata, refreshToken string) (*credentials.StoredToken, error) {
	src := e.config(md, "").TokenSource(e.context(ctx), &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		return nil, tokenError("refresh", err)
	}

	stored := e.normalize(tok)
	if stored.RefreshToken == "" {
		stored.RefreshToken = refreshToken
	}
	return stored, nil
}

func (e *Exchanger) normalize(tok *oauth2.Token) *credentials.StoredToken {
	stored := &credentials.StoredToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scopes:       []string{},
	}

	if stored.TokenType == "" {
		stored.TokenType = credentials.DefaultTokenType
	}

	switch {
	case tok.ExpiresIn > 0:
		expiresAt := e.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
		stored.ExpiresAt = &expiresAt
	case !tok.Expiry.IsZero():
		expiresAt := tok.Expiry
		stored.ExpiresAt = &expiresAt
	}

	if scope, ok := tok.Extra("scope").(string); ok {
		stored.Scopes = strings.Fields(scope)
	}

	return stored
}

func tokenError(op string, err error) error {
	exErr := &TokenExchangeError{Operation: op, Err: err}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil {
			exErr.StatusCode = retrieveErr.Response.StatusCode
		}
		exErr.ErrorCode = retrieveErr.ErrorCode
		exErr.Description = retrieveErr.ErrorDescription
	}

	return exErr
}
