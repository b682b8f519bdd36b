// Package session is the server-side session store for the sign-in flow.
//
// Key schema, per session id (all values JSON, token material encrypted at
// rest when a master key is configured):
//
//	flowstate — current sign-in flow state
//	pkce      — PKCE material (verifier, state, nonce) awaiting callback
//	token     — token response from the exchange
//	claims    — decoded identity claims
//	customer  — resolved customer profile
//	selected  — selected business profile party id
//	directors — resolved director batch
//	otp       — pending step-up challenge
//
// The store is injected into the orchestrator; nothing reads or writes
// session state ambiently.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridianbank/signin-gateway/internal/cache"
	"github.com/meridianbank/signin-gateway/internal/oauth/idp"
	"github.com/meridianbank/signin-gateway/internal/oauth/pkce"
	"github.com/meridianbank/signin-gateway/internal/otp"
	"github.com/meridianbank/signin-gateway/internal/profile"
	"github.com/meridianbank/signin-gateway/internal/security/secretbox"
)

// Session keys.
const (
	KeyFlowState = "flowstate"
	KeyPKCE      = "pkce"
	KeyToken     = "token"
	KeyClaims    = "claims"
	KeyCustomer  = "customer"
	KeySelected  = "selected"
	KeyDirectors = "directors"
	KeyOTP       = "otp"
)

var allKeys = []string{
	KeyFlowState, KeyPKCE, KeyToken, KeyClaims,
	KeyCustomer, KeySelected, KeyDirectors, KeyOTP,
}

type Store struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewStore(c cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{cache: c, ttl: ttl}
}

// NewSessionID mints a fresh session identifier for the cookie.
func (s *Store) NewSessionID() string { return uuid.NewString() }

func key(sid, k string) string { return "sess:" + sid + ":" + k }

func (s *Store) set(sid, k string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session set %s: %w", k, err)
	}
	s.cache.Set(key(sid, k), b, s.ttl)
	return nil
}

func (s *Store) get(sid, k string, dst any) (bool, error) {
	b, ok := s.cache.Get(key(sid, k))
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("session get %s: %w", k, err)
	}
	return true, nil
}

// Delete removes a single key.
func (s *Store) Delete(sid, k string) { s.cache.Delete(key(sid, k)) }

// Clear wipes every key of a session. Used on sign-out and on terminal
// authorization errors.
func (s *Store) Clear(sid string) {
	for _, k := range allKeys {
		s.cache.Delete(key(sid, k))
	}
}

// Flow state.

func (s *Store) SetFlowState(sid, state string) error { return s.set(sid, KeyFlowState, state) }

func (s *Store) FlowState(sid string) (string, bool) {
	var v string
	ok, err := s.get(sid, KeyFlowState, &v)
	return v, ok && err == nil
}

// PKCE material. Retained server-side between Start and the callback,
// deleted after one use.

func (s *Store) SetPKCE(sid string, m pkce.Material) error { return s.set(sid, KeyPKCE, m) }

func (s *Store) PKCE(sid string) (pkce.Material, bool) {
	var m pkce.Material
	ok, err := s.get(sid, KeyPKCE, &m)
	return m, ok && err == nil
}

func (s *Store) DeletePKCE(sid string) { s.Delete(sid, KeyPKCE) }

// Token material. Access and ID tokens pass through the secretbox when a
// master key is configured; in dev without one they are stored as-is.

type storedToken struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	Boxed       bool   `json:"boxed"`
}

func (s *Store) SetToken(sid string, tr idp.TokenResponse) error {
	st := storedToken{
		AccessToken: tr.AccessToken,
		IDToken:     tr.IDToken,
		TokenType:   tr.TokenType,
		ExpiresIn:   tr.ExpiresIn,
		Scope:       tr.Scope,
	}
	if secretbox.Ready() {
		at, err := secretbox.Encrypt(tr.AccessToken)
		if err != nil {
			return err
		}
		st.AccessToken = at
		if tr.IDToken != "" {
			it, err := secretbox.Encrypt(tr.IDToken)
			if err != nil {
				return err
			}
			st.IDToken = it
		}
		st.Boxed = true
	}
	return s.set(sid, KeyToken, st)
}

func (s *Store) Token(sid string) (idp.TokenResponse, bool) {
	var st storedToken
	ok, err := s.get(sid, KeyToken, &st)
	if !ok || err != nil {
		return idp.TokenResponse{}, false
	}
	tr := idp.TokenResponse{
		AccessToken: st.AccessToken,
		IDToken:     st.IDToken,
		TokenType:   st.TokenType,
		ExpiresIn:   st.ExpiresIn,
		Scope:       st.Scope,
	}
	if st.Boxed {
		at, err := secretbox.Decrypt(st.AccessToken)
		if err != nil {
			return idp.TokenResponse{}, false
		}
		tr.AccessToken = at
		if st.IDToken != "" {
			it, err := secretbox.Decrypt(st.IDToken)
			if err != nil {
				return idp.TokenResponse{}, false
			}
			tr.IDToken = it
		}
	}
	return tr, true
}

// Identity claims.

func (s *Store) SetClaims(sid string, p idp.UserProfile) error { return s.set(sid, KeyClaims, p) }

func (s *Store) Claims(sid string) (idp.UserProfile, bool) {
	var p idp.UserProfile
	ok, err := s.get(sid, KeyClaims, &p)
	return p, ok && err == nil
}

// Resolved customer profile.

func (s *Store) SetCustomer(sid string, p profile.CustomerProfile) error {
	return s.set(sid, KeyCustomer, p)
}

func (s *Store) Customer(sid string) (profile.CustomerProfile, bool) {
	var p profile.CustomerProfile
	ok, err := s.get(sid, KeyCustomer, &p)
	return p, ok && err == nil
}

// Selected business profile.

func (s *Store) SetSelected(sid, partyID string) error { return s.set(sid, KeySelected, partyID) }

func (s *Store) Selected(sid string) (string, bool) {
	var v string
	ok, err := s.get(sid, KeySelected, &v)
	return v, ok && err == nil
}

// Director batch.

func (s *Store) SetDirectors(sid string, b profile.DirectorBatch) error {
	return s.set(sid, KeyDirectors, b)
}

func (s *Store) Directors(sid string) (profile.DirectorBatch, bool) {
	var b profile.DirectorBatch
	ok, err := s.get(sid, KeyDirectors, &b)
	return b, ok && err == nil
}

// Pending OTP challenge. At most one per session; setting replaces.

func (s *Store) SetChallenge(sid string, ch otp.Challenge) error { return s.set(sid, KeyOTP, ch) }

func (s *Store) Challenge(sid string) (otp.Challenge, bool) {
	var ch otp.Challenge
	ok, err := s.get(sid, KeyOTP, &ch)
	return ch, ok && err == nil
}

func (s *Store) DeleteChallenge(sid string) { s.Delete(sid, KeyOTP) }
