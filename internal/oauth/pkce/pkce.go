// Package pkce produces the material for an OAuth2 Authorization Code +
// PKCE exchange (RFC 7636, S256 only).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	verifierBytes = 32
	tokenBytes    = 16
)

// Material is generated once per authorization attempt. Verifier and State
// stay server-side until the callback arrives and are discarded after one
// use.
type Material struct {
	CodeVerifier  string `json:"code_verifier"`
	CodeChallenge string `json:"code_challenge"`
	State         string `json:"state"`
	Nonce         string `json:"nonce"`
}

// ChallengeMethod is the only method this client declares.
const ChallengeMethod = "S256"

// Generate builds fresh PKCE material from the OS entropy source. If secure
// randomness is unavailable it fails; there is no weaker fallback.
func Generate() (Material, error) {
	verifier, err := randomToken(verifierBytes)
	if err != nil {
		return Material{}, fmt.Errorf("pkce: code verifier: %w", err)
	}
	state, err := randomToken(tokenBytes)
	if err != nil {
		return Material{}, fmt.Errorf("pkce: state: %w", err)
	}
	nonce, err := randomToken(tokenBytes)
	if err != nil {
		return Material{}, fmt.Errorf("pkce: nonce: %w", err)
	}

	return Material{
		CodeVerifier:  verifier,
		CodeChallenge: ChallengeS256(verifier),
		State:         state,
		Nonce:         nonce,
	}, nil
}

// ChallengeS256 derives the S256 code challenge for a verifier:
// base64url(SHA256(verifier)) without padding.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
