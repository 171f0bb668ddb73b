package manager

import "errors"

var (
	// ErrServerNotFound means no server with the given name is configured.
	ErrServerNotFound = errors.New("MCP server not found")

	// ErrServerExists means Add was called with a name already in use.
	ErrServerExists = errors.New("MCP server already exists")

	// ErrOAuthNotApplicable means the server is a local stdio process.
	ErrOAuthNotApplicable = errors.New("OAuth not applicable")

	// ErrNoAuthConfigured means the remote server has auth type none.
	ErrNoAuthConfigured = errors.New("no authentication configured")

	// ErrStaticBearer means the server uses a configured bearer token.
	ErrStaticBearer = errors.New("uses a static bearer token")

	// ErrAuthRequired means there is no usable token; run a login first.
	ErrAuthRequired = errors.New("authentication required")
)
