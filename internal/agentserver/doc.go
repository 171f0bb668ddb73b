// Package agentserver serves mooagent's server management and OAuth
// operations as MCP tools over stdio, so an AI assistant can list, add,
// remove and test MCP servers and drive logins on the user's behalf.
//
// Tools: mcp_list, mcp_add, mcp_remove, test_mcp_server, oauth_status,
// oauth_login and oauth_logout. Every tool delegates to a manager.Manager;
// failures are returned as tool errors rather than protocol errors.
//
// While serving, a Watcher reloads config.yaml and tokens.json whenever
// they change on disk, for example after "mooagent auth login" ran in
// another terminal.
package agentserver
