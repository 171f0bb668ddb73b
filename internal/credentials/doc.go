// Package credentials stores OAuth tokens for MCP servers and classifies
// their freshness.
//
// Tokens are keyed by normalized server URL (lower-cased, trailing "/"
// removed), so "https://MCP.example.com/" and "https://mcp.example.com"
// address the same record. The whole store is a single JSON document,
// tokens.json in the mooagent config directory:
//
//	{"tokens": {"https://mcp.example.com": {"access_token": "...", "token_type": "Bearer", "scopes": []}}}
//
// The file is loaded once and rewritten after every mutation. A missing file
// is an empty store. The store serializes access within one process but
// provides no cross-process locking.
package credentials
