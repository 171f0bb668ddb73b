// Package logging provides the subsystem-tagged logger used across mooagent.
//
// It is a thin layer over log/slog: InitForCLI configures a text handler once
// at startup and the package level helpers attach a "subsystem" attribute to
// every record.
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("ConfigLoader", "Loaded configuration from %s", path)
//	logging.Error("TokenStore", err, "Failed to persist tokens")
//
// # Audit Logging
//
// Credential mutations are reported through Audit. Records are emitted at
// INFO level with a "SECURITY_AUDIT:" message prefix so they can be filtered
// by log tooling:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:    "token_stored",
//	    ServerURL: "https://mcp.example.com",
//	    Outcome:   "success",
//	})
//
// Token values are never logged.
//
// When mooagent runs as an MCP stdio server, stdout carries JSON-RPC and the
// logger must be pointed at stderr.
package logging
