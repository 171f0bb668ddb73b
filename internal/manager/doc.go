// Package manager implements the operations mooagent offers on configured
// MCP servers. The CLI commands and the MCP tools served by "mooagent serve"
// are thin presentation layers over a Manager.
//
// A Manager owns the loaded configuration and the token store. OAuth
// operations (Login, Logout, Refresh, Discover) only apply to remote servers
// configured with auth type oauth; other servers yield ErrOAuthNotApplicable,
// ErrNoAuthConfigured or ErrStaticBearer with a message naming the server.
package manager
