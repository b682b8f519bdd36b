package idp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/meridianbank/signin-gateway/internal/oauth/pkce"
)

func testClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	if cfg.AuthorizationEndpoint == "" {
		cfg.AuthorizationEndpoint = "https://idp.example/authorize"
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = "https://idp.example/token"
	}
	if cfg.UserInfoEndpoint == "" {
		cfg.UserInfoEndpoint = "https://idp.example/userinfo"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "portal"
	}
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = "https://portal.example/v1/signin/callback"
	}
	if cfg.Scope == "" {
		cfg.Scope = "openid email profile"
	}
	c, err := New(cfg, time.Second)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	return c
}

func TestConfigValidate_ListsAllMissing(t *testing.T) {
	err := Config{}.Validate()
	if err == nil {
		t.Fatal("expected error for empty config")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	for _, want := range []string{"authorization_endpoint", "token_endpoint", "client_id", "redirect_uri"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not name %q", err.Error(), want)
		}
	}
}

func TestAuthorizeURL_ParameterSet(t *testing.T) {
	redirect := "https://portal.example/v1/signin/callback?env=prod"
	c := testClient(t, Config{RedirectURI: redirect})

	m := pkce.Material{
		CodeVerifier:  "verifier",
		CodeChallenge: pkce.ChallengeS256("verifier"),
		State:         "state-token",
		Nonce:         "nonce-token",
	}
	raw := c.AuthorizeURL(m)

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	q := u.Query()

	checks := map[string]string{
		"response_type":         "code",
		"client_id":             "portal",
		"scope":                 "openid email profile",
		"state":                 "state-token",
		"nonce":                 "nonce-token",
		"code_challenge":        m.CodeChallenge,
		"code_challenge_method": "S256",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}

	// The configured redirect_uri must survive the round trip byte for
	// byte, query string included.
	if got := q.Get("redirect_uri"); got != redirect {
		t.Fatalf("redirect_uri = %q, want %q", got, redirect)
	}
}

func TestExchange_PostsExactFormOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "application/x-www-form-urlencoded") {
			t.Errorf("content type = %q", ct)
		}
		for k, want := range map[string]string{
			"grant_type":    "authorization_code",
			"client_id":     "portal",
			"code":          "auth-code-1",
			"code_verifier": "the-verifier",
		} {
			if got := r.PostFormValue(k); got != want {
				t.Errorf("form %s = %q, want %q", k, got, want)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","id_token":"it","token_type":"Bearer","expires_in":300}`))
	}))
	defer srv.Close()

	c := testClient(t, Config{TokenEndpoint: srv.URL})
	tr, err := c.Exchange(context.Background(), "auth-code-1", "the-verifier")
	if err != nil {
		t.Fatalf("Exchange err: %v", err)
	}
	if tr.AccessToken != "at" || tr.IDToken != "it" {
		t.Fatalf("token response = %+v", tr)
	}
	if calls != 1 {
		t.Fatalf("token endpoint called %d times, want exactly 1", calls)
	}
}

func TestExchange_NoRetryOnFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	c := testClient(t, Config{TokenEndpoint: srv.URL})
	_, err := c.Exchange(context.Background(), "used-code", "v")

	var exchErr *TokenExchangeError
	if !errors.As(err, &exchErr) {
		t.Fatalf("err = %v, want TokenExchangeError", err)
	}
	if exchErr.Status != http.StatusBadRequest {
		t.Fatalf("status = %d", exchErr.Status)
	}
	if !strings.Contains(exchErr.Body, "invalid_grant") {
		t.Fatalf("body = %q, provider error not surfaced", exchErr.Body)
	}
	// The code is single-use upstream; the client must not have resent it.
	if calls != 1 {
		t.Fatalf("token endpoint called %d times after failure, want 1", calls)
	}
}

func TestExchange_MissingAccessTokenIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	c := testClient(t, Config{TokenEndpoint: srv.URL})
	if _, err := c.Exchange(context.Background(), "code", "v"); err == nil {
		t.Fatal("expected error for response without access_token")
	}
}

func TestUserInfo_BearerAndClaims(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at-123" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"subject-1","name":"Thandi N","email":"thandi@example.com","custom":"x"}`))
	}))
	defer srv.Close()

	c := testClient(t, Config{UserInfoEndpoint: srv.URL})
	p, err := c.UserInfo(context.Background(), "at-123")
	if err != nil {
		t.Fatalf("UserInfo err: %v", err)
	}
	if p.SubjectID != "subject-1" || p.Email != "thandi@example.com" {
		t.Fatalf("profile = %+v", p)
	}
	if p.RawClaims["custom"] != "x" {
		t.Fatalf("raw claims not retained: %v", p.RawClaims)
	}
}

func TestUserInfo_FailureWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, Config{UserInfoEndpoint: srv.URL})
	_, err := c.UserInfo(context.Background(), "at")
	if !errors.Is(err, ErrUserInfo) {
		t.Fatalf("err = %v, want ErrUserInfo", err)
	}
}
