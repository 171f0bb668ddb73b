package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthServer is a resource server and authorization server on one origin.
type fakeAuthServer struct {
	*httptest.Server

	mu            sync.Mutex
	challenge     string
	tokenRequests int
	lastForm      url.Values
}

func newFakeAuthServer(t *testing.T) *fakeAuthServer {
	t.Helper()

	fas := &fakeAuthServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/oauth-protected-resource/mcp", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"resource":              fas.URL + "/mcp",
			"authorization_servers": []string{fas.URL},
		})
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"issuer":                           fas.URL,
			"authorization_endpoint":           fas.URL + "/authorize",
			"token_endpoint":                   fas.URL + "/token",
			"scopes_supported":                 []string{"mcp:read", "mcp:write"},
			"code_challenge_methods_supported": []string{"S256"},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		fas.mu.Lock()
		fas.tokenRequests++
		fas.lastForm = r.PostForm
		challenge := fas.challenge
		fas.mu.Unlock()

		if ComputeS256Challenge(r.PostForm.Get("code_verifier")) != challenge {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"PKCE verification failed"}`))
			return
		}
		writeJSON(w, map[string]any{
			"access_token":  "access-xyz",
			"refresh_token": "refresh-xyz",
			"token_type":    "bearer",
			"expires_in":    3600,
			"scope":         "mcp:read",
		})
	})

	fas.Server = httptest.NewServer(mux)
	t.Cleanup(fas.Close)
	return fas
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// browser returns an opener that plays the user: it checks the authorization
// request and follows the redirect with the given code and state override.
func (fas *fakeAuthServer) browser(t *testing.T, query func(state string) string) BrowserOpener {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		q := u.Query()

		fas.mu.Lock()
		fas.challenge = q.Get("code_challenge")
		fas.mu.Unlock()

		go func() {
			resp, err := http.Get(q.Get("redirect_uri") + "?" + query(q.Get("state")))
			if err != nil {
				t.Errorf("redirect to callback failed: %v", err)
				return
			}
			resp.Body.Close()
		}()
		return nil
	}
}

func (fas *fakeAuthServer) form() url.Values {
	fas.mu.Lock()
	defer fas.mu.Unlock()
	return fas.lastForm
}

func (fas *fakeAuthServer) tokenCalls() int {
	fas.mu.Lock()
	defer fas.mu.Unlock()
	return fas.tokenRequests
}

func TestFlow_EndToEnd(t *testing.T) {
	fas := newFakeAuthServer(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var shownURL string
	flow := NewFlow(fas.URL+"/mcp", Config{ClientID: "mooagent-test"},
		WithHTTPClient(fas.Client()),
		WithClock(func() time.Time { return now }),
		WithAuthURLHandler(func(u string) { shownURL = u }),
		WithBrowserOpener(fas.browser(t, func(state string) string {
			return "code=the-code&state=" + url.QueryEscape(state)
		})),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	md, err := flow.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, fas.URL+"/token", md.TokenEndpoint)

	tok, err := flow.Authorize(ctx, md)
	require.NoError(t, err)

	assert.Equal(t, "access-xyz", tok.AccessToken)
	assert.Equal(t, "refresh-xyz", tok.RefreshToken)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, "Bearer access-xyz", tok.AuthorizationHeader())
	assert.Equal(t, []string{"mcp:read"}, tok.Scopes)
	assert.Equal(t, now.Add(time.Hour), *tok.ExpiresAt)

	u, err := url.Parse(shownURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "mooagent-test", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, fas.URL+"/mcp", q.Get("resource"))
	assert.Equal(t, "mcp:read mcp:write", q.Get("scope"))
	assert.Len(t, q.Get("state"), 32)

	form := fas.form()
	assert.Equal(t, "the-code", form.Get("code"))
	assert.Equal(t, q.Get("redirect_uri"), form.Get("redirect_uri"))
	assert.Equal(t, fas.URL+"/mcp", form.Get("resource"))
}

func TestFlow_StateMismatchNeverExchanges(t *testing.T) {
	fas := newFakeAuthServer(t)

	flow := NewFlow(fas.URL+"/mcp", Config{ClientID: "c"},
		WithHTTPClient(fas.Client()),
		WithBrowserOpener(fas.browser(t, func(string) string {
			return "code=the-code&state=wrong"
		})),
	)

	md, err := flow.Discover(context.Background())
	require.NoError(t, err)

	_, err = flow.Authorize(context.Background(), md)
	assert.True(t, errors.Is(err, ErrStateMismatch), "got %v", err)
	assert.Zero(t, fas.tokenCalls())
}

func TestFlow_CallbackErrorSurfaced(t *testing.T) {
	fas := newFakeAuthServer(t)

	flow := NewFlow(fas.URL+"/mcp", Config{ClientID: "c"},
		WithHTTPClient(fas.Client()),
		WithBrowserOpener(fas.browser(t, func(state string) string {
			return fmt.Sprintf("error=access_denied&error_description=user+cancelled&state=%s", state)
		})),
	)

	md, err := flow.Discover(context.Background())
	require.NoError(t, err)

	_, err = flow.Authorize(context.Background(), md)
	var cbErr *CallbackError
	require.True(t, errors.As(err, &cbErr), "got %v", err)
	assert.Equal(t, "access_denied", cbErr.Code)
	assert.Equal(t, "user cancelled", cbErr.Description)
	assert.Zero(t, fas.tokenCalls())
}

func TestFlow_CallbackTimeout(t *testing.T) {
	fas := newFakeAuthServer(t)

	flow := NewFlow(fas.URL+"/mcp", Config{ClientID: "c"},
		WithHTTPClient(fas.Client()),
		WithBrowserOpener(nil),
		WithCallbackTimeout(50*time.Millisecond),
	)

	md, err := flow.Discover(context.Background())
	require.NoError(t, err)

	_, err = flow.Authorize(context.Background(), md)
	assert.True(t, errors.Is(err, ErrCallbackTimeout), "got %v", err)
}

func TestFlow_BrowserFailureIsNotFatal(t *testing.T) {
	fas := newFakeAuthServer(t)
	follow := fas.browser(t, func(state string) string {
		return "code=c&state=" + url.QueryEscape(state)
	})

	flow := NewFlow(fas.URL+"/mcp", Config{ClientID: "c"},
		WithHTTPClient(fas.Client()),
		WithBrowserOpener(func(u string) error {
			_ = follow(u)
			return errors.New("no display")
		}),
	)

	md, err := flow.Discover(context.Background())
	require.NoError(t, err)

	_, err = flow.Authorize(context.Background(), md)
	assert.NoError(t, err)
}

func TestFlow_AuthorizeRejectsPlainOnlyMetadata(t *testing.T) {
	flow := NewFlow("https://mcp.example.com", Config{ClientID: "c"}, WithBrowserOpener(nil))

	_, err := flow.Authorize(context.Background(), &AuthServerMetadata{
		Issuer:                        "https://auth.example.com",
		AuthorizationEndpoint:         "https://auth.example.com/authorize",
		TokenEndpoint:                 "https://auth.example.com/token",
		CodeChallengeMethodsSupported: []string{"plain"},
	})
	assert.True(t, errors.Is(err, ErrUnsupportedChallengeMethod))
}

func TestFlow_AuthorizationURLScopes(t *testing.T) {
	md := &AuthServerMetadata{
		AuthorizationEndpoint: "https://auth.example.com/authorize",
		TokenEndpoint:         "https://auth.example.com/token",
	}
	pkce := &PKCEChallenge{CodeChallenge: "ch", CodeChallengeMethod: PKCEMethodS256}

	t.Run("omitted when none known", func(t *testing.T) {
		flow := NewFlow("https://mcp.example.com", Config{ClientID: "c"})
		u, err := url.Parse(flow.AuthorizationURL(md, "http://127.0.0.1:1/callback", "st", pkce))
		require.NoError(t, err)
		assert.False(t, u.Query().Has("scope"))
		assert.Equal(t, "ch", u.Query().Get("code_challenge"))
		assert.Equal(t, "st", u.Query().Get("state"))
	})

	t.Run("configured scopes win", func(t *testing.T) {
		withScopes := *md
		withScopes.ScopesSupported = []string{"ignored"}
		flow := NewFlow("https://mcp.example.com", Config{ClientID: "c", Scopes: []string{"a", "b"}})
		u, err := url.Parse(flow.AuthorizationURL(&withScopes, "http://127.0.0.1:1/callback", "st", pkce))
		require.NoError(t, err)
		assert.Equal(t, "a b", u.Query().Get("scope"))
	})
}

func TestFlow_Refresh(t *testing.T) {
	srv, form := tokenEndpoint(t, http.StatusOK, "application/json", `{"access_token":"new"}`)

	flow := NewFlow("https://mcp.example.com", Config{ClientID: "c"}, WithHTTPClient(srv.Client()))
	tok, err := flow.Refresh(context.Background(), metadataFor(srv), "rt")
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.Equal(t, "rt", form.Get("refresh_token"))
}

func TestFlow_IDIsUnique(t *testing.T) {
	a := NewFlow("https://x", Config{})
	b := NewFlow("https://x", Config{})
	assert.NotEqual(t, a.ID(), b.ID())
}
