// Package idp is the OAuth2/OIDC client side of the sign-in flow: it builds
// the authorization redirect, exchanges the callback code for tokens and
// resolves the userinfo claim set. It never validates token signatures —
// that is the identity provider's job; tokens are carried as opaque
// capabilities.
package idp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrConfiguration marks missing or invalid static client configuration.
// It is fatal and never retryable.
var ErrConfiguration = errors.New("idp configuration error")

// Config is the static OAuth2 client registration. RedirectURI must match
// the IdP registration byte for byte; it is sent verbatim on both the
// authorization request and the token exchange.
type Config struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string
	ClientID              string
	RedirectURI           string
	Scope                 string
}

// Validate reports every missing required field at once so a broken
// deployment is diagnosed in a single pass.
func (c Config) Validate() error {
	var missing []string
	if c.AuthorizationEndpoint == "" {
		missing = append(missing, "authorization_endpoint")
	}
	if c.TokenEndpoint == "" {
		missing = append(missing, "token_endpoint")
	}
	if c.UserInfoEndpoint == "" {
		missing = append(missing, "userinfo_endpoint")
	}
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.RedirectURI == "" {
		missing = append(missing, "redirect_uri")
	}
	if c.Scope == "" {
		missing = append(missing, "scope")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// Client talks to the IdP. One http.Client with a bounded timeout is shared
// by the token and userinfo calls.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client. Returns ErrConfiguration when cfg is incomplete.
func New(cfg Config, timeout time.Duration) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}, nil
}

// Config returns the static client configuration.
func (c *Client) Config() Config { return c.cfg }
