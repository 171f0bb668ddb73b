package config

import "time"

const (
	// DefaultCallbackTimeout is how long a login waits for the browser redirect.
	DefaultCallbackTimeout = 5 * time.Minute

	// DefaultExpiryBuffer is the window before expiry in which a token is
	// reported as expiring soon.
	DefaultExpiryBuffer = 300 * time.Second

	// DefaultHTTPTimeout bounds discovery and token requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultConnectTimeout bounds TCP connection setup.
	DefaultConnectTimeout = 10 * time.Second
)

// GetDefaultConfig returns the configuration used when no config.yaml exists.
func GetDefaultConfig() Config {
	return Config{
		OAuth: OAuthSettings{
			CallbackTimeout: DefaultCallbackTimeout,
			ExpiryBuffer:    DefaultExpiryBuffer,
			HTTPTimeout:     DefaultHTTPTimeout,
			ConnectTimeout:  DefaultConnectTimeout,
		},
		Servers: map[string]*Server{},
	}
}
