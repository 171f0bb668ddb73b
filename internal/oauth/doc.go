// Package oauth implements the OAuth 2.1 authorization code grant with PKCE
// that mooagent uses to obtain tokens for remote MCP servers.
//
// # Flow
//
// A login runs in two explicit steps so callers control when discovery
// happens and can reuse its result:
//
//	flow := oauth.NewFlow(serverURL, oauth.Config{ClientID: "..."})
//	md, err := flow.Discover(ctx)
//	token, err := flow.Authorize(ctx, md)
//
// Discover locates the authorization server through RFC 9728 protected
// resource metadata (unless one is configured), then fetches RFC 8414 or
// OpenID Connect metadata from the well-known locations in priority order.
// When no document can be fetched, endpoints are derived from the
// authorization server origin (/authorize, /token, /register).
//
// Authorize binds a loopback listener on 127.0.0.1 with an OS-assigned port,
// opens the browser at the authorization endpoint and waits for a single
// redirect to /callback. The state parameter is compared in constant time
// and a mismatch aborts the login before any code is exchanged. The code is
// redeemed with its PKCE verifier and the server URL as resource indicator.
//
// # Security
//
//   - Only S256 challenges are sent; servers that advertise challenge methods
//     without S256 are rejected.
//   - The callback listener serves exactly one request on /callback.
//   - Token values are never logged. Audit records carry the server URL and
//     outcome only.
package oauth
