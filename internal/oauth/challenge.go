package oauth

import (
	"regexp"
	"strings"
)

var challengeParamRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// Challenge holds the parameters of a WWW-Authenticate header.
//
// Example header:
//
//	Bearer realm="https://auth.example.com",
//	       scope="openid profile",
//	       resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"
type Challenge struct {
	Scheme           string
	Realm            string
	Scope            string
	Error            string
	ErrorDescription string

	// ResourceMetadataURL is the RFC 9728 protected resource document of
	// the server that issued the challenge.
	ResourceMetadataURL string
}

// ParseChallenge parses a WWW-Authenticate header value. It returns nil for
// an empty header.
func ParseChallenge(header string) *Challenge {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}

	scheme, rest, _ := strings.Cut(header, " ")
	c := &Challenge{Scheme: scheme}

	for _, match := range challengeParamRegex.FindAllStringSubmatch(rest, -1) {
		value := match[2]
		switch strings.ToLower(match[1]) {
		case "realm":
			c.Realm = value
		case "scope":
			c.Scope = value
		case "error":
			c.Error = value
		case "error_description":
			c.ErrorDescription = value
		case "resource_metadata":
			c.ResourceMetadataURL = value
		}
	}

	return c
}

// IsBearer reports whether the challenge uses the Bearer scheme.
func (c *Challenge) IsBearer() bool {
	return c != nil && strings.EqualFold(c.Scheme, "Bearer")
}
