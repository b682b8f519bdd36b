package otp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meridianbank/signin-gateway/internal/observability/logger"
)

var (
	// ErrIssue: the provider refused to issue a passcode, or the call
	// failed outright.
	ErrIssue = errors.New("otp issue failed")

	// ErrValidation wraps transport-level validation failures. Provider
	// verdicts (wrong code, attempts exceeded) are not errors — they come
	// back as an Outcome.
	ErrValidation = errors.New("otp validation failed")

	// ErrResendCooldown: Send was re-invoked before the cooldown elapsed.
	// Enforced here, not just in the UI.
	ErrResendCooldown = errors.New("otp resend cooldown active")

	// ErrChallengeSuperseded: the supplied queue name belongs to a
	// challenge that a later Send invalidated. Fails locally, before any
	// network call — a stale code must never validate against the newest
	// challenge.
	ErrChallengeSuperseded = errors.New("otp challenge superseded")

	// ErrNoPendingChallenge: validate called with nothing issued.
	ErrNoPendingChallenge = errors.New("no pending otp challenge")
)

// Challenge is the single pending step-up per session. Issuing a new one
// supersedes the previous; the queue name is the provider's routing token
// scoping this instance.
type Challenge struct {
	CellNumber string    `json:"cellNumber"`
	QueueName  string    `json:"queueName"`
	IssuedAt   time.Time `json:"issuedAt"`
}

// Service talks to the mobile-auth gateway.
type Service struct {
	url         string
	countryCode string
	certificate string
	cooldown    time.Duration
	http        *http.Client
	now         func() time.Time
}

type Options struct {
	URL         string
	CountryCode string
	Certificate string
	Timeout     time.Duration
	// ResendCooldown throttles Send per pending challenge; <= 0 falls
	// back to 30s.
	ResendCooldown time.Duration
}

func NewService(opts Options) (*Service, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: otp url is required", ErrIssue)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.ResendCooldown <= 0 {
		opts.ResendCooldown = 30 * time.Second
	}
	return &Service{
		url:         opts.URL,
		countryCode: opts.CountryCode,
		certificate: opts.Certificate,
		cooldown:    opts.ResendCooldown,
		http:        &http.Client{Timeout: opts.Timeout},
		now:         time.Now,
	}, nil
}

// Cooldown exposes the resend throttle so the UI can render the timer.
func (s *Service) Cooldown() time.Duration { return s.cooldown }

// Send issues a new passcode to cellNumber. prev is the currently pending
// challenge (nil when none): sending inside the cooldown window is refused,
// and a successful send always supersedes prev — its queue name becomes
// invalid the moment this returns.
func (s *Service) Send(ctx context.Context, cellNumber, authToken string, prev *Challenge) (*Challenge, error) {
	if cellNumber == "" {
		return nil, fmt.Errorf("%w: empty cell number", ErrIssue)
	}
	if prev != nil && s.now().Sub(prev.IssuedAt) < s.cooldown {
		return nil, ErrResendCooldown
	}

	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("otp"))

	code, qname, err := s.call(ctx, buildEnvelope(fnGenerate, cellNumber, s.countryCode, "", "", s.certificate), authToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIssue, err)
	}

	outcome := Interpret(code)
	if !outcome.OK() {
		log.Warn("otp issue refused", logger.String("response_code", code))
		return nil, fmt.Errorf("%w: %s", ErrIssue, outcome.Message)
	}
	if qname == "" {
		return nil, fmt.Errorf("%w: provider returned no queue name", ErrIssue)
	}

	log.Info("otp issued", logger.QueueName(qname))
	return &Challenge{
		CellNumber: cellNumber,
		QueueName:  qname,
		IssuedAt:   s.now(),
	}, nil
}

// Validate checks a passcode against the pending challenge. queueName is
// what the client submitted; when it does not match the pending challenge
// the call fails locally with ErrChallengeSuperseded. The provider verdict
// comes back as an Outcome from the fixed table; only transport failures
// are errors.
func (s *Service) Validate(ctx context.Context, pending *Challenge, queueName, passcode, authToken string) (Outcome, error) {
	if pending == nil {
		return technicalOutcome(""), ErrNoPendingChallenge
	}
	if queueName == "" || queueName != pending.QueueName {
		return technicalOutcome(""), ErrChallengeSuperseded
	}
	if passcode == "" {
		return Interpret(CodeInvalid), nil
	}

	code, _, err := s.call(ctx, buildEnvelope(fnValidate, pending.CellNumber, s.countryCode, pending.QueueName, passcode, s.certificate), authToken)
	if err != nil {
		return technicalOutcome(""), fmt.Errorf("%w: %v", ErrValidation, err)
	}

	outcome := Interpret(code)
	logger.From(ctx).Info("otp validated",
		logger.Component("otp"),
		logger.QueueName(pending.QueueName),
		logger.String("response_code", outcome.Code),
		logger.Bool("ok", outcome.OK()),
	)
	return outcome, nil
}

func (s *Service) call(ctx context.Context, envelope, authToken string) (code, qname string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(envelope))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", "", fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", "", err
	}
	return parseResponse(string(body))
}
