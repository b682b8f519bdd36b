package idp

import (
	"net/url"

	"github.com/meridianbank/signin-gateway/internal/oauth/pkce"
)

// AuthorizeURL assembles the IdP redirect URL for fresh PKCE material.
// url.Values handles the percent-encoding; redirect_uri goes in exactly as
// configured — the IdP rejects the request on any mismatch with the
// registered value, so no normalisation is applied here.
func (c *Client) AuthorizeURL(m pkce.Material) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", c.cfg.Scope)
	q.Set("state", m.State)
	q.Set("nonce", m.Nonce)
	q.Set("code_challenge", m.CodeChallenge)
	q.Set("code_challenge_method", pkce.ChallengeMethod)
	return c.cfg.AuthorizationEndpoint + "?" + q.Encode()
}
