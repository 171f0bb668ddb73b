package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

const (
	// PKCEMethodS256 is the only code challenge method mooagent uses.
	PKCEMethodS256 = "S256"

	codeVerifierLength = 64
	stateLength        = 32

	// RFC 7636 section 4.1 unreserved characters.
	verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
	stateAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
type PKCEChallenge struct {
	// CodeVerifier is kept secret and only sent to the token endpoint.
	CodeVerifier string

	// CodeChallenge is sent in the authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// GeneratePKCE generates a 64 character code verifier drawn uniformly from
// the unreserved alphabet, and its S256 challenge.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifier, err := randomString(codeVerifierLength, verifierAlphabet)
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       ComputeS256Challenge(verifier),
		CodeChallengeMethod: PKCEMethodS256,
	}, nil
}

// ComputeS256Challenge returns base64url-no-pad(SHA-256(verifier)).
func ComputeS256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState generates a 32 character alphanumeric anti-CSRF state.
func GenerateState() (string, error) {
	state, err := randomString(stateLength, stateAlphabet)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return state, nil
}

func randomString(n int, alphabet string) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
