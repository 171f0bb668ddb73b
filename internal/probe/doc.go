// Package probe checks whether configured MCP servers are reachable.
//
// Remote servers are contacted with the mcp-go SSE or streamable HTTP client,
// carrying the stored OAuth or bearer token, and must complete the MCP
// initialize handshake and answer tools/list. Local (stdio) servers are not
// started; only their command is resolved on PATH.
package probe
