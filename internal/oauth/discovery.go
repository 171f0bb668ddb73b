package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

// maxMetadataSize caps discovery documents at 1MB.
const maxMetadataSize = 1024 * 1024

// Discoverer resolves the authorization server for an MCP resource and
// fetches its metadata.
type Discoverer struct {
	client *http.Client
}

// NewDiscoverer returns a Discoverer that issues requests through client.
func NewDiscoverer(client *http.Client) *Discoverer {
	if client == nil {
		client = NewHTTPClient("", 0, 0)
	}
	return &Discoverer{client: client}
}

// Discover returns authorization server metadata for resourceURL. When
// authServerURL is empty it is resolved through protected-resource
// discovery first. If no metadata document can be fetched, defaults derived
// from the authorization server URL are returned. A server that advertises
// challenge methods without S256 is rejected.
func (d *Discoverer) Discover(ctx context.Context, resourceURL, authServerURL string) (*AuthServerMetadata, error) {
	if authServerURL == "" {
		resolved, err := d.ResolveAuthServer(ctx, resourceURL)
		if err != nil {
			return nil, err
		}
		authServerURL = resolved
	}

	metadata, err := d.FetchAuthServerMetadata(ctx, authServerURL)
	if err != nil {
		if !errors.Is(err, ErrDiscoveryExhausted) {
			return nil, err
		}
		logging.Warn("OAuth", "No authorization server metadata for %s, using default endpoints: %v", authServerURL, err)
		metadata, err = defaultMetadata(authServerURL)
		if err != nil {
			return nil, err
		}
	}

	if !metadata.SupportsS256() {
		return nil, fmt.Errorf("%w (advertised: %v)", ErrUnsupportedChallengeMethod, metadata.CodeChallengeMethodsSupported)
	}

	return metadata, nil
}

// ResolveAuthServer finds the authorization server protecting resourceURL
// using RFC 9728: the well-known documents first, then the resource_metadata
// of a 401 challenge. The resource's own origin is returned when neither
// names one.
func (d *Discoverer) ResolveAuthServer(ctx context.Context, resourceURL string) (string, error) {
	base, _, err := splitBaseURL(resourceURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse server URL: %w", err)
	}

	candidates, err := protectedResourceURLs(resourceURL)
	if err != nil {
		return "", err
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		var prm ProtectedResourceMetadata
		if err := d.getJSON(ctx, candidate, &prm); err != nil {
			logging.Debug("OAuth", "Protected resource metadata not available at %s: %v", candidate, err)
			continue
		}
		if len(prm.AuthorizationServers) == 0 || prm.AuthorizationServers[0] == "" {
			logging.Debug("OAuth", "Protected resource metadata at %s lists no authorization servers", candidate)
			continue
		}

		logging.Debug("OAuth", "Discovered authorization server %s via %s", prm.AuthorizationServers[0], candidate)
		return prm.AuthorizationServers[0], nil
	}

	if authServer := d.resolveFromChallenge(ctx, resourceURL); authServer != "" {
		return authServer, nil
	}

	logging.Debug("OAuth", "Falling back to resource origin %s as authorization server", base)
	return base, nil
}

// resolveFromChallenge sends an unauthenticated request to the resource and
// follows the resource_metadata parameter of a Bearer challenge. It returns
// "" when the resource does not answer with such a challenge.
func (d *Discoverer) resolveFromChallenge(ctx context.Context, resourceURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := d.client.Do(req)
	if err != nil {
		logging.Debug("OAuth", "Unauthenticated request to %s failed: %v", resourceURL, err)
		return ""
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		return ""
	}
	challenge := ParseChallenge(resp.Header.Get("WWW-Authenticate"))
	if !challenge.IsBearer() || challenge.ResourceMetadataURL == "" {
		return ""
	}

	var prm ProtectedResourceMetadata
	if err := d.getJSON(ctx, challenge.ResourceMetadataURL, &prm); err != nil {
		logging.Debug("OAuth", "Resource metadata from challenge not available: %v", err)
		return ""
	}
	if len(prm.AuthorizationServers) == 0 || prm.AuthorizationServers[0] == "" {
		return ""
	}

	logging.Debug("OAuth", "Discovered authorization server %s via WWW-Authenticate challenge", prm.AuthorizationServers[0])
	return prm.AuthorizationServers[0]
}

// FetchAuthServerMetadata tries each well-known location for authServerURL
// in priority order and returns the first valid document. The returned error
// wraps ErrDiscoveryExhausted when every candidate failed.
func (d *Discoverer) FetchAuthServerMetadata(ctx context.Context, authServerURL string) (*AuthServerMetadata, error) {
	candidates, err := authServerMetadataURLs(authServerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata URLs: %w", err)
	}

	var attempts []error
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logging.Debug("OAuth", "Trying metadata endpoint (%d/%d): %s", i+1, len(candidates), candidate)

		var metadata AuthServerMetadata
		if err := d.getJSON(ctx, candidate, &metadata); err != nil {
			attempts = append(attempts, err)
			continue
		}
		if err := metadata.validate(); err != nil {
			attempts = append(attempts, fmt.Errorf("%s: %w", candidate, err))
			continue
		}

		metadata.Source = candidate
		logging.Debug("OAuth", "Discovered authorization server metadata at %s", candidate)
		return &metadata, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrDiscoveryExhausted, errors.Join(attempts...))
}

func (d *Discoverer) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return fmt.Errorf("GET %s: failed to read body: %w", rawURL, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: invalid JSON: %w", rawURL, err)
	}
	return nil
}
