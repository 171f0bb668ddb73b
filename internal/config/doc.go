// Package config provides configuration management for mooagent.
//
// Configuration is loaded from a single directory. The default is
// ~/.config/mooagent; the --config-path flag selects another one. The
// directory holds config.yaml and the token store (tokens.json, owned by the
// credentials package).
//
// # Configuration Structure
//
//	oauth:
//	  callbackTimeout: 5m     # 0 waits until interrupted
//	  expiryBuffer: 5m        # "expires soon" window, 0 disables it
//	  httpTimeout: 30s
//	  connectTimeout: 10s
//	  openBrowser: true
//	servers:
//	  github:
//	    url: https://example.com/sse        # SSE transport
//	    auth:
//	      type: oauth
//	      clientId: my-client
//	      scopes: [read]
//	  docs:
//	    httpUrl: https://example.com/mcp    # streamable HTTP transport
//	    auth: {type: bearer, token: xyz}
//	  local:
//	    command: npx                        # stdio transport
//	    args: [-y, some-server]
//
// Omitted oauth keys take their defaults. An explicit 0 turns the setting
// off: callbackTimeout 0 waits for the browser until interrupted, and
// expiryBuffer 0 reports a token as valid until it has expired.
//
// The transport is inferred from which of command, httpUrl or url is set.
// Authentication is a closed set of variants (NoAuth, BearerAuth, OAuthAuth)
// selected by auth.type; callers branch on it with a type switch.
package config
