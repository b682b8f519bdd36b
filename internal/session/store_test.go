package session

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/meridianbank/signin-gateway/internal/cache/memory"
	"github.com/meridianbank/signin-gateway/internal/oauth/idp"
	"github.com/meridianbank/signin-gateway/internal/oauth/pkce"
	"github.com/meridianbank/signin-gateway/internal/otp"
	"github.com/meridianbank/signin-gateway/internal/profile"
	"github.com/meridianbank/signin-gateway/internal/security/secretbox"
)

func newTestStore() *Store {
	return NewStore(memory.New(time.Minute), time.Minute)
}

func TestStore_SchemaRoundTrip(t *testing.T) {
	s := newTestStore()
	sid := s.NewSessionID()

	if err := s.SetFlowState(sid, "SIGNIN"); err != nil {
		t.Fatal(err)
	}
	if v, ok := s.FlowState(sid); !ok || v != "SIGNIN" {
		t.Fatalf("flow state = (%q, %v)", v, ok)
	}

	m := pkce.Material{CodeVerifier: "v", CodeChallenge: "c", State: "st", Nonce: "n"}
	if err := s.SetPKCE(sid, m); err != nil {
		t.Fatal(err)
	}
	if got, ok := s.PKCE(sid); !ok || got != m {
		t.Fatalf("pkce = (%+v, %v)", got, ok)
	}

	ch := otp.Challenge{CellNumber: "082", QueueName: "Q-1", IssuedAt: time.Now().UTC().Truncate(time.Second)}
	if err := s.SetChallenge(sid, ch); err != nil {
		t.Fatal(err)
	}
	if got, ok := s.Challenge(sid); !ok || got.QueueName != "Q-1" {
		t.Fatalf("challenge = (%+v, %v)", got, ok)
	}

	cust := profile.CustomerProfile{PartyID: "P-1", BPID: "100", CustomerName: "Meridian Holdings"}
	if err := s.SetCustomer(sid, cust); err != nil {
		t.Fatal(err)
	}
	if got, ok := s.Customer(sid); !ok || got.PartyID != "P-1" {
		t.Fatalf("customer = (%+v, %v)", got, ok)
	}

	// Sessions are isolated by id.
	other := s.NewSessionID()
	if _, ok := s.PKCE(other); ok {
		t.Fatal("pkce leaked across sessions")
	}
}

func TestStore_ClearWipesAllKeys(t *testing.T) {
	s := newTestStore()
	sid := s.NewSessionID()

	_ = s.SetFlowState(sid, "OTP_CHALLENGE")
	_ = s.SetPKCE(sid, pkce.Material{CodeVerifier: "v"})
	_ = s.SetToken(sid, idp.TokenResponse{AccessToken: "at"})
	_ = s.SetClaims(sid, idp.UserProfile{SubjectID: "sub"})
	_ = s.SetCustomer(sid, profile.CustomerProfile{PartyID: "P-1"})
	_ = s.SetSelected(sid, "P-1")
	_ = s.SetDirectors(sid, profile.DirectorBatch{})
	_ = s.SetChallenge(sid, otp.Challenge{QueueName: "Q"})

	s.Clear(sid)

	if _, ok := s.FlowState(sid); ok {
		t.Fatal("flow state survived Clear")
	}
	if _, ok := s.PKCE(sid); ok {
		t.Fatal("pkce survived Clear")
	}
	if _, ok := s.Token(sid); ok {
		t.Fatal("token survived Clear")
	}
	if _, ok := s.Claims(sid); ok {
		t.Fatal("claims survived Clear")
	}
	if _, ok := s.Customer(sid); ok {
		t.Fatal("customer survived Clear")
	}
	if _, ok := s.Selected(sid); ok {
		t.Fatal("selected survived Clear")
	}
	if _, ok := s.Directors(sid); ok {
		t.Fatal("directors survived Clear")
	}
	if _, ok := s.Challenge(sid); ok {
		t.Fatal("challenge survived Clear")
	}
}

func TestStore_DeletePKCEIsSingleUse(t *testing.T) {
	s := newTestStore()
	sid := s.NewSessionID()

	_ = s.SetPKCE(sid, pkce.Material{CodeVerifier: "v", State: "st"})
	s.DeletePKCE(sid)
	if _, ok := s.PKCE(sid); ok {
		t.Fatal("pkce readable after delete")
	}
}

func TestStore_TokenEncryptedAtRest(t *testing.T) {
	secretbox.UnsafeResetForTests()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	t.Setenv("SIGNIN_MASTER_KEY", base64.StdEncoding.EncodeToString(raw))
	defer secretbox.UnsafeResetForTests()

	c := memory.New(time.Minute)
	s := NewStore(c, time.Minute)
	sid := s.NewSessionID()

	if err := s.SetToken(sid, idp.TokenResponse{AccessToken: "plain-access-token", IDToken: "plain-id-token"}); err != nil {
		t.Fatal(err)
	}

	// The raw cache bytes must not contain the plaintext token.
	b, ok := c.Get("sess:" + sid + ":token")
	if !ok {
		t.Fatal("token key missing from cache")
	}
	if strings.Contains(string(b), "plain-access-token") || strings.Contains(string(b), "plain-id-token") {
		t.Fatalf("plaintext token at rest: %s", b)
	}

	tr, ok := s.Token(sid)
	if !ok {
		t.Fatal("token not readable back")
	}
	if tr.AccessToken != "plain-access-token" || tr.IDToken != "plain-id-token" {
		t.Fatalf("decrypted token = %+v", tr)
	}
}
