package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// TokenResponse is the IdP's answer to a successful code exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// TokenExchangeError carries the raw HTTP outcome of a failed exchange. The
// body is surfaced untouched; this client never tries to interpret or repair
// the provider's error.
type TokenExchangeError struct {
	Status int
	Body   string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: http %d: %s", e.Status, e.Body)
}

// Exchange trades an authorization code for tokens. One POST, no retries:
// authorization codes are single-use, so resending the same code after a
// failure could only ever fail again (or worse, trip replay detection).
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("code_verifier", codeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TokenExchangeError{Status: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &TokenExchangeError{Status: resp.StatusCode, Body: string(b)}
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &TokenExchangeError{Status: resp.StatusCode, Body: "malformed token response: " + err.Error()}
	}
	if tr.AccessToken == "" {
		return nil, &TokenExchangeError{Status: resp.StatusCode, Body: "token response missing access_token"}
	}
	return &tr, nil
}
