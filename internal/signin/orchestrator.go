package signin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridianbank/signin-gateway/internal/audit"
	"github.com/meridianbank/signin-gateway/internal/metrics"
	"github.com/meridianbank/signin-gateway/internal/oauth/idp"
	"github.com/meridianbank/signin-gateway/internal/oauth/pkce"
	"github.com/meridianbank/signin-gateway/internal/observability/logger"
	"github.com/meridianbank/signin-gateway/internal/otp"
	"github.com/meridianbank/signin-gateway/internal/profile"
	"github.com/meridianbank/signin-gateway/internal/session"
)

// IdPClient is the slice of the idp package the orchestrator consumes.
type IdPClient interface {
	AuthorizeURL(m pkce.Material) string
	Exchange(ctx context.Context, code, codeVerifier string) (*idp.TokenResponse, error)
	UserInfo(ctx context.Context, accessToken string) (*idp.UserProfile, error)
}

// ProfileResolver resolves identities to customer records.
type ProfileResolver interface {
	ResolveByIdentity(ctx context.Context, subjectID, accessToken string) (*profile.CustomerProfile, error)
	ResolveDirectors(ctx context.Context, origin *profile.CustomerProfile, accessToken string) (profile.DirectorBatch, error)
}

// OTPService issues and validates step-up challenges.
type OTPService interface {
	Send(ctx context.Context, cellNumber, authToken string, prev *otp.Challenge) (*otp.Challenge, error)
	Validate(ctx context.Context, pending *otp.Challenge, queueName, passcode, authToken string) (otp.Outcome, error)
	Cooldown() time.Duration
}

// Deps wires the orchestrator. Sessions is required; Metrics and Audit are
// optional (nil-safe).
type Deps struct {
	IdP      IdPClient
	Profiles ProfileResolver
	OTP      OTPService
	Sessions *session.Store
	Metrics  *metrics.Metrics
	Audit    *audit.Publisher
}

// Orchestrator sequences the sign-in flow. It owns no business logic: each
// stage lives in its component, and the orchestrator persists results into
// the session at transition points only.
type Orchestrator struct {
	idp      IdPClient
	profiles ProfileResolver
	otp      OTPService
	sessions *session.Store
	metrics  *metrics.Metrics
	audit    *audit.Publisher
}

func New(d Deps) (*Orchestrator, error) {
	if d.IdP == nil || d.Profiles == nil || d.OTP == nil || d.Sessions == nil {
		return nil, errors.New("signin: IdP, Profiles, OTP and Sessions are required")
	}
	return &Orchestrator{
		idp:      d.IdP,
		profiles: d.Profiles,
		otp:      d.OTP,
		sessions: d.Sessions,
		metrics:  d.Metrics,
		audit:    d.Audit,
	}, nil
}

// CurrentState reads the session's flow state, defaulting to Welcome.
func (o *Orchestrator) CurrentState(sid string) State {
	if v, ok := o.sessions.FlowState(sid); ok {
		return State(v)
	}
	return StateWelcome
}

// transition validates the move against the table and persists it. It is
// the single funnel for flow-state writes.
func (o *Orchestrator) transition(ctx context.Context, sid string, from, to State) error {
	if !from.CanTransition(to) {
		return illegal(from, to)
	}
	if err := o.sessions.SetFlowState(sid, string(to)); err != nil {
		return err
	}
	o.metrics.ObserveTransition(string(from), string(to))
	logger.From(ctx).Info("flow transition",
		logger.Component("signin"),
		logger.SessionID(sid),
		logger.String("from", string(from)),
		logger.FlowState(string(to)),
	)
	return nil
}

// Start begins (or restarts) a sign-in attempt: any in-flight PKCE material
// and pending OTP challenge for the session are invalidated, fresh material
// is generated and retained server-side, and the IdP redirect URL is
// returned.
func (o *Orchestrator) Start(ctx context.Context, sid string) (string, error) {
	o.sessions.Clear(sid)

	m, err := pkce.Generate()
	if err != nil {
		return "", err
	}
	if err := o.sessions.SetPKCE(sid, m); err != nil {
		return "", err
	}
	if err := o.transition(ctx, sid, StateWelcome, StateSignIn); err != nil {
		return "", err
	}

	o.audit.Emit(ctx, audit.Event{SessionID: sid, Action: audit.ActionSignInStarted})
	return o.idp.AuthorizeURL(m), nil
}

// HandleCallback processes the browser's return from the IdP: the silent
// CALLBACK_PROCESSING sequence of exchange → userinfo → profile resolution
// → conditional step-up. It lands in OTPChallenge or
// BusinessProfileSelection, or fails terminally.
func (o *Orchestrator) HandleCallback(ctx context.Context, sid, code, state, idpErr, idpErrDesc string) (State, error) {
	log := logger.From(ctx).With(logger.Component("signin"), logger.SessionID(sid))

	// IdP said no. Terminal: surface the exact error and leave no
	// partial session state behind.
	if idpErr != "" {
		authErr := &AuthorizationError{Code: idpErr, Description: idpErrDesc}
		o.failTerminal(ctx, sid, authErr.Error())
		return StateError, authErr
	}

	cur := o.CurrentState(sid)
	m, ok := o.sessions.PKCE(sid)
	if cur != StateSignIn || !ok {
		return cur, ErrNoSignInInProgress
	}

	// CSRF cross-check against the retained state token.
	if state == "" || state != m.State {
		o.failTerminal(ctx, sid, "state mismatch")
		return StateError, ErrStateMismatch
	}

	if err := o.transition(ctx, sid, cur, StateCallbackProcessing); err != nil {
		return cur, err
	}

	// The verifier is single-use: drop it before the exchange so a
	// replayed callback can never re-send the same code.
	o.sessions.DeletePKCE(sid)

	start := time.Now()
	tok, err := o.idp.Exchange(ctx, code, m.CodeVerifier)
	o.metrics.ObserveExternalCall("idp_token", time.Since(start), err)
	if err != nil {
		o.failTerminal(ctx, sid, "token exchange: "+err.Error())
		return StateError, err
	}
	if err := o.sessions.SetToken(sid, *tok); err != nil {
		o.failTerminal(ctx, sid, "session write: "+err.Error())
		return StateError, err
	}

	claims := o.resolveClaims(ctx, sid, tok)

	// Without a subject there is nothing to key the customer lookup by;
	// the claim-dependent steps are skipped and the user goes straight
	// to profile selection (which will report the missing profile).
	if claims == nil || claims.SubjectID == "" {
		if err := o.transition(ctx, sid, StateCallbackProcessing, StateBusinessProfileSel); err != nil {
			return StateCallbackProcessing, err
		}
		return StateBusinessProfileSel, nil
	}

	start = time.Now()
	cust, err := o.profiles.ResolveByIdentity(ctx, claims.SubjectID, tok.AccessToken)
	o.metrics.ObserveExternalCall("profile_lookup", time.Since(start), err)
	if err != nil {
		o.failTerminal(ctx, sid, "profile resolution: "+err.Error())
		return StateError, err
	}
	if err := o.sessions.SetCustomer(sid, *cust); err != nil {
		o.failTerminal(ctx, sid, "session write: "+err.Error())
		return StateError, err
	}

	// Step-up only when the resolved party is eligible; otherwise skip
	// straight to profile selection.
	if !cust.StepUpEligible() {
		if err := o.transition(ctx, sid, StateCallbackProcessing, StateBusinessProfileSel); err != nil {
			return StateCallbackProcessing, err
		}
		return StateBusinessProfileSel, nil
	}

	start = time.Now()
	ch, err := o.otp.Send(ctx, cust.CellNumber(), tok.AccessToken, nil)
	o.metrics.ObserveExternalCall("otp_send", time.Since(start), err)
	if err != nil {
		// The guard on entering OTPChallenge is an issued challenge;
		// without one the step-up cannot be satisfied, so the attempt
		// fails rather than silently bypassing verification.
		o.failTerminal(ctx, sid, "otp issue: "+err.Error())
		return StateError, err
	}
	if err := o.sessions.SetChallenge(sid, *ch); err != nil {
		o.failTerminal(ctx, sid, "session write: "+err.Error())
		return StateError, err
	}
	if err := o.transition(ctx, sid, StateCallbackProcessing, StateOTPChallenge); err != nil {
		return StateCallbackProcessing, err
	}

	o.audit.Emit(ctx, audit.Event{
		SessionID: sid,
		Action:    audit.ActionStepUpIssued,
		Subject:   claims.SubjectID,
		PartyID:   cust.PartyID,
	})
	log.Info("step-up issued", logger.QueueName(ch.QueueName))
	return StateOTPChallenge, nil
}

// resolveClaims fetches userinfo and persists the claims. A userinfo
// failure is non-fatal: the error is reported, and when the token response
// carried an ID token its claims are decoded as the documented fallback.
func (o *Orchestrator) resolveClaims(ctx context.Context, sid string, tok *idp.TokenResponse) *idp.UserProfile {
	log := logger.From(ctx).With(logger.Component("signin"), logger.SessionID(sid))

	start := time.Now()
	claims, err := o.idp.UserInfo(ctx, tok.AccessToken)
	o.metrics.ObserveExternalCall("idp_userinfo", time.Since(start), err)
	if err != nil {
		log.Warn("userinfo failed, continuing without it", logger.Err(err))
		if tok.IDToken == "" {
			return nil
		}
		claims, err = idp.ParseIDTokenClaims(tok.IDToken)
		if err != nil {
			log.Warn("id token claim fallback failed", logger.Err(err))
			return nil
		}
	}

	if err := o.sessions.SetClaims(sid, *claims); err != nil {
		log.Warn("claims session write failed", logger.Err(err))
	}
	return claims
}

// ResendOTP supersedes the pending challenge with a fresh one. The cooldown
// is enforced in the OTP service; a rejected resend leaves the pending
// challenge untouched.
func (o *Orchestrator) ResendOTP(ctx context.Context, sid string) (*otp.Challenge, error) {
	if cur := o.CurrentState(sid); cur != StateOTPChallenge {
		return nil, illegal(cur, StateOTPChallenge)
	}
	prev, ok := o.sessions.Challenge(sid)
	if !ok {
		return nil, otp.ErrNoPendingChallenge
	}
	tok, ok := o.sessions.Token(sid)
	if !ok {
		return nil, ErrNoSignInInProgress
	}

	start := time.Now()
	ch, err := o.otp.Send(ctx, prev.CellNumber, tok.AccessToken, &prev)
	o.metrics.ObserveExternalCall("otp_send", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if err := o.sessions.SetChallenge(sid, *ch); err != nil {
		return nil, err
	}

	o.audit.Emit(ctx, audit.Event{SessionID: sid, Action: audit.ActionStepUpIssued, Detail: "resend"})
	return ch, nil
}

// ValidateOTP checks a submitted passcode. Success advances the flow to
// business profile selection; every other verdict leaves the flow in
// OTPChallenge with the mapped message for inline display. queueName must
// belong to the pending challenge — a superseded one fails locally.
func (o *Orchestrator) ValidateOTP(ctx context.Context, sid, queueName, passcode string) (otp.Outcome, error) {
	cur := o.CurrentState(sid)
	if cur != StateOTPChallenge {
		return otp.Outcome{}, illegal(cur, StateBusinessProfileSel)
	}

	var pending *otp.Challenge
	if ch, ok := o.sessions.Challenge(sid); ok {
		pending = &ch
	}
	tok, ok := o.sessions.Token(sid)
	if !ok {
		return otp.Outcome{}, ErrNoSignInInProgress
	}

	start := time.Now()
	outcome, err := o.otp.Validate(ctx, pending, queueName, passcode, tok.AccessToken)
	o.metrics.ObserveExternalCall("otp_validate", time.Since(start), err)
	if err != nil {
		return outcome, err
	}
	o.metrics.ObserveOTPResult(outcome.Code)

	if !outcome.OK() {
		o.audit.Emit(ctx, audit.Event{SessionID: sid, Action: audit.ActionStepUpRejected, Detail: outcome.Code})
		return outcome, nil
	}

	o.sessions.DeleteChallenge(sid)
	if err := o.transition(ctx, sid, StateOTPChallenge, StateBusinessProfileSel); err != nil {
		return outcome, err
	}
	o.audit.Emit(ctx, audit.Event{SessionID: sid, Action: audit.ActionStepUpValidated})
	return outcome, nil
}

// Customer returns the resolved customer profile for rendering the
// selection screen.
func (o *Orchestrator) Customer(sid string) (profile.CustomerProfile, bool) {
	return o.sessions.Customer(sid)
}

// Directors returns the stored director batch, if selection already ran.
func (o *Orchestrator) Directors(sid string) (profile.DirectorBatch, bool) {
	return o.sessions.Directors(sid)
}

// SelectBusinessProfile records the chosen business profile, fans out over
// its directors and enters the application. Director failures are partial:
// the batch's failed list travels with the session instead of blocking
// entry.
func (o *Orchestrator) SelectBusinessProfile(ctx context.Context, sid, partyID string) (profile.DirectorBatch, error) {
	cur := o.CurrentState(sid)
	if cur != StateBusinessProfileSel {
		return profile.DirectorBatch{}, illegal(cur, StateEntered)
	}

	cust, ok := o.sessions.Customer(sid)
	if !ok {
		return profile.DirectorBatch{}, profile.ErrMissingProfile
	}
	if partyID == "" || partyID != cust.PartyID {
		return profile.DirectorBatch{}, fmt.Errorf("%w: unknown party %q", profile.ErrMissingProfile, partyID)
	}
	tok, ok := o.sessions.Token(sid)
	if !ok {
		return profile.DirectorBatch{}, ErrNoSignInInProgress
	}

	start := time.Now()
	batch, err := o.profiles.ResolveDirectors(ctx, &cust, tok.AccessToken)
	o.metrics.ObserveExternalCall("director_fanout", time.Since(start), err)
	if err != nil {
		return batch, err
	}

	if err := o.sessions.SetSelected(sid, partyID); err != nil {
		return batch, err
	}
	if err := o.sessions.SetDirectors(sid, batch); err != nil {
		return batch, err
	}
	if err := o.transition(ctx, sid, StateBusinessProfileSel, StateEntered); err != nil {
		return batch, err
	}

	o.metrics.ObserveOutcome("entered")
	o.audit.Emit(ctx, audit.Event{SessionID: sid, Action: audit.ActionProfileSelected, PartyID: partyID})
	o.audit.Emit(ctx, audit.Event{SessionID: sid, Action: audit.ActionSignInCompleted, PartyID: partyID})
	return batch, nil
}

// SignOut clears the session and returns the flow to Welcome.
func (o *Orchestrator) SignOut(ctx context.Context, sid string) {
	o.sessions.Clear(sid)
	o.audit.Emit(ctx, audit.Event{SessionID: sid, Action: audit.ActionSignedOut})
}

// failTerminal wipes the session, parks the flow in Error and records the
// outcome. Terminal errors restart from Welcome on the next attempt.
func (o *Orchestrator) failTerminal(ctx context.Context, sid, detail string) {
	o.sessions.Clear(sid)
	_ = o.sessions.SetFlowState(sid, string(StateError))
	o.metrics.ObserveOutcome("failed")
	o.audit.Emit(ctx, audit.Event{SessionID: sid, Action: audit.ActionSignInFailed, Detail: detail})
	logger.From(ctx).Warn("sign-in failed",
		logger.Component("signin"),
		logger.SessionID(sid),
		logger.String("detail", detail),
	)
}
