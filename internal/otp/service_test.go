package otp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type providerRecorder struct {
	bodies []string
	// responses are dequeued per call; the last one repeats.
	responses []string
}

func (p *providerRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		p.bodies = append(p.bodies, string(b))
		resp := p.responses[0]
		if len(p.responses) > 1 {
			p.responses = p.responses[1:]
		}
		fmt.Fprint(w, resp)
	}
}

func genResponse(code, qname string) string {
	return fmt.Sprintf(`<otp_response><vers_v_response_code>%s</vers_v_response_code><otp_qname>%s</otp_qname></otp_response>`, code, qname)
}

func valResponse(code string) string {
	return fmt.Sprintf(`<otp_response><vers_v_response_code>%s</vers_v_response_code></otp_response>`, code)
}

func newTestService(t *testing.T, url string, cooldown time.Duration) *Service {
	t.Helper()
	s, err := NewService(Options{
		URL:            url,
		CountryCode:    "27",
		Certificate:    "opaque-cert",
		Timeout:        2 * time.Second,
		ResendCooldown: cooldown,
	})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	return s
}

func TestSend_IssuesChallenge(t *testing.T) {
	rec := &providerRecorder{responses: []string{genResponse("0000", "Q-1")}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := newTestService(t, srv.URL, 30*time.Second)
	ch, err := s.Send(context.Background(), "0821234567", "at", nil)
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if ch.QueueName != "Q-1" || ch.CellNumber != "0821234567" {
		t.Fatalf("challenge = %+v", ch)
	}

	body := rec.bodies[0]
	for _, frag := range []string{
		"<otp_function_id>GEN</otp_function_id>",
		"<otp_cell_no>0821234567</otp_cell_no>",
		"<otp_country_code>27</otp_country_code>",
		"<otp_certificate>opaque-cert</otp_certificate>",
	} {
		if !strings.Contains(body, frag) {
			t.Errorf("envelope missing %s:\n%s", frag, body)
		}
	}
	if strings.Contains(body, "<otp_otp>") {
		t.Errorf("generate envelope must not carry a passcode:\n%s", body)
	}
}

func TestSend_CooldownRejected(t *testing.T) {
	rec := &providerRecorder{responses: []string{genResponse("0000", "Q-2")}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := newTestService(t, srv.URL, 30*time.Second)
	prev := &Challenge{CellNumber: "082", QueueName: "Q-1", IssuedAt: time.Now().Add(-5 * time.Second)}

	if _, err := s.Send(context.Background(), "082", "at", prev); !errors.Is(err, ErrResendCooldown) {
		t.Fatalf("err = %v, want ErrResendCooldown", err)
	}
	if len(rec.bodies) != 0 {
		t.Fatalf("provider called despite cooldown")
	}

	// Past the window a resend goes through and supersedes.
	prev.IssuedAt = time.Now().Add(-31 * time.Second)
	ch, err := s.Send(context.Background(), "082", "at", prev)
	if err != nil {
		t.Fatalf("Send after cooldown err: %v", err)
	}
	if ch.QueueName != "Q-2" {
		t.Fatalf("queue name = %q, want fresh Q-2", ch.QueueName)
	}
}

func TestSend_ProviderRefusalIsError(t *testing.T) {
	rec := &providerRecorder{responses: []string{genResponse("9999", "")}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := newTestService(t, srv.URL, time.Second)
	if _, err := s.Send(context.Background(), "082", "at", nil); !errors.Is(err, ErrIssue) {
		t.Fatalf("err = %v, want ErrIssue", err)
	}
}

func TestSend_MissingQueueNameIsError(t *testing.T) {
	rec := &providerRecorder{responses: []string{valResponse("0000")}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := newTestService(t, srv.URL, time.Second)
	if _, err := s.Send(context.Background(), "082", "at", nil); !errors.Is(err, ErrIssue) {
		t.Fatalf("err = %v, want ErrIssue for missing qname", err)
	}
}

func TestValidate_StaleQueueNameFailsLocally(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, valResponse("0000"))
	}))
	defer srv.Close()

	s := newTestService(t, srv.URL, time.Second)
	pending := &Challenge{CellNumber: "082", QueueName: "Q-NEW", IssuedAt: time.Now()}

	// Code from the superseded challenge: rejected before any network call.
	if _, err := s.Validate(context.Background(), pending, "Q-OLD", "123456", "at"); !errors.Is(err, ErrChallengeSuperseded) {
		t.Fatalf("err = %v, want ErrChallengeSuperseded", err)
	}
	if calls != 0 {
		t.Fatalf("provider called %d times for a stale queue name", calls)
	}
}

func TestValidate_NoPendingChallenge(t *testing.T) {
	s := newTestService(t, "http://unused.example", time.Second)
	if _, err := s.Validate(context.Background(), nil, "Q", "123", "at"); !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("err = %v, want ErrNoPendingChallenge", err)
	}
}

func TestValidate_EmptyPasscodeShortCircuits(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()

	s := newTestService(t, srv.URL, time.Second)
	pending := &Challenge{CellNumber: "082", QueueName: "Q-1", IssuedAt: time.Now()}

	out, err := s.Validate(context.Background(), pending, "Q-1", "", "at")
	if err != nil {
		t.Fatalf("Validate err: %v", err)
	}
	if out.Code != CodeInvalid || out.OK() {
		t.Fatalf("outcome = %+v, want invalid", out)
	}
	if calls != 0 {
		t.Fatalf("provider called for empty passcode")
	}
}

func TestValidate_VerdictTable(t *testing.T) {
	cases := []struct {
		code     string
		ok       bool
		blocking bool
		reissued bool
	}{
		{"0000", true, false, false},
		{"1001", false, false, false},
		{"1005", false, true, false},
		{"1008", false, false, true},
		{"4242", false, true, false}, // unknown collapses to technical
	}

	for _, tc := range cases {
		rec := &providerRecorder{responses: []string{valResponse(tc.code)}}
		srv := httptest.NewServer(rec.handler())

		s := newTestService(t, srv.URL, time.Second)
		pending := &Challenge{CellNumber: "082", QueueName: "Q-1", IssuedAt: time.Now()}
		out, err := s.Validate(context.Background(), pending, "Q-1", "111111", "at")
		srv.Close()
		if err != nil {
			t.Fatalf("code %s: Validate err: %v", tc.code, err)
		}
		if out.OK() != tc.ok || out.Blocking != tc.blocking || out.Reissued != tc.reissued {
			t.Errorf("code %s: outcome = %+v", tc.code, out)
		}
		if out.Message == "" {
			t.Errorf("code %s: empty message", tc.code)
		}

		body := rec.bodies[0]
		if !strings.Contains(body, "<otp_function_id>VAL</otp_function_id>") ||
			!strings.Contains(body, "<otp_otp>111111</otp_otp>") ||
			!strings.Contains(body, "<otp_qname>Q-1</otp_qname>") {
			t.Errorf("code %s: bad validate envelope:\n%s", tc.code, body)
		}
	}
}

func TestValidate_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newTestService(t, srv.URL, time.Second)
	pending := &Challenge{CellNumber: "082", QueueName: "Q-1", IssuedAt: time.Now()}

	out, err := s.Validate(context.Background(), pending, "Q-1", "111111", "at")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if !out.Blocking {
		t.Fatalf("transport failure outcome should be blocking: %+v", out)
	}
}

func TestParseResponse(t *testing.T) {
	code, qname, err := parseResponse(genResponse("0000", "Q-9"))
	if err != nil || code != "0000" || qname != "Q-9" {
		t.Fatalf("got (%q, %q, %v)", code, qname, err)
	}

	code, qname, err = parseResponse(valResponse("1001"))
	if err != nil || code != "1001" || qname != "" {
		t.Fatalf("got (%q, %q, %v)", code, qname, err)
	}

	if _, _, err := parseResponse("<otp_response></otp_response>"); err == nil {
		t.Fatal("expected error for missing response code")
	}
}

func TestBuildEnvelope_EscapesValues(t *testing.T) {
	env := buildEnvelope(fnGenerate, `082<&>"`, "27", "", "", "")
	if strings.Contains(env, `082<&>`) {
		t.Fatalf("unescaped value in envelope: %s", env)
	}
	if !strings.Contains(env, "082&lt;&amp;&gt;&quot;") {
		t.Fatalf("escaping wrong: %s", env)
	}
}
