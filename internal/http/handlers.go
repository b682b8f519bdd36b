package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/meridianbank/signin-gateway/internal/config"
	"github.com/meridianbank/signin-gateway/internal/oauth/idp"
	"github.com/meridianbank/signin-gateway/internal/otp"
	"github.com/meridianbank/signin-gateway/internal/profile"
	"github.com/meridianbank/signin-gateway/internal/session"
	"github.com/meridianbank/signin-gateway/internal/signin"
)

// Handlers binds the orchestrator to the wire. Ready is the readiness probe
// for the backing cache; nil means always ready.
type Handlers struct {
	Flow     *signin.Orchestrator
	Sessions *session.Store
	Cfg      *config.Config
	Ready    func(ctx context.Context) error
}

type flowStatus struct {
	State       string `json:"state"`
	OTPRequired bool   `json:"otp_required,omitempty"`
	QueueName   string `json:"queue_name,omitempty"`
	CellNumber  string `json:"cell_number,omitempty"`
}

// maskCell keeps the trailing digits so the user can recognise the device
// without the full number crossing the wire.
func maskCell(cell string) string {
	if len(cell) <= 3 {
		return cell
	}
	masked := make([]byte, len(cell)-3)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + cell[len(cell)-3:]
}

// StartSignIn mints the session, starts the flow and sends the browser to
// the IdP. ?redirect=false returns the URL as JSON for SPA callers.
func (h *Handlers) StartSignIn(w http.ResponseWriter, r *http.Request) {
	sid, ok := readSessionID(r, h.Cfg)
	if !ok {
		sid = h.Sessions.NewSessionID()
	}
	http.SetCookie(w, sessionCookie(h.Cfg, sid, h.Cfg.SessionTTL()))

	url, err := h.Flow.Start(r.Context(), sid)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}

	if r.URL.Query().Get("redirect") == "false" {
		WriteJSON(w, http.StatusOK, map[string]string{"authorization_url": url})
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback lands the browser's return from the IdP and runs the silent
// processing sequence.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	sid, ok := readSessionID(r, h.Cfg)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "no_session", "no sign-in session cookie")
		return
	}

	q := r.URL.Query()
	state, err := h.Flow.HandleCallback(r.Context(), sid,
		q.Get("code"), q.Get("state"), q.Get("error"), q.Get("error_description"))
	if err != nil {
		h.writeFlowError(w, err)
		return
	}

	resp := flowStatus{State: string(state)}
	if state == signin.StateOTPChallenge {
		resp.OTPRequired = true
		if ch, ok := h.Sessions.Challenge(sid); ok {
			resp.QueueName = ch.QueueName
			resp.CellNumber = maskCell(ch.CellNumber)
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// OTPSend re-issues the pending challenge. The service enforces the resend
// cooldown; a rejected resend keeps the previous challenge valid.
func (h *Handlers) OTPSend(w http.ResponseWriter, r *http.Request) {
	sid, ok := readSessionID(r, h.Cfg)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "no_session", "no sign-in session cookie")
		return
	}

	ch, err := h.Flow.ResendOTP(r.Context(), sid)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"queue_name":       ch.QueueName,
		"cell_number":      maskCell(ch.CellNumber),
		"cooldown_seconds": int(h.Cfg.ResendCooldown().Seconds()),
	})
}

type otpValidateRequest struct {
	QueueName string `json:"queue_name"`
	Passcode  string `json:"passcode"`
}

// OTPValidate checks the submitted passcode. A non-blocking rejection keeps
// the flow in the challenge state and returns the mapped message for inline
// display; a blocking code parks the flow until a fresh challenge is issued.
func (h *Handlers) OTPValidate(w http.ResponseWriter, r *http.Request) {
	sid, ok := readSessionID(r, h.Cfg)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "no_session", "no sign-in session cookie")
		return
	}

	var req otpValidateRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	outcome, err := h.Flow.ValidateOTP(r.Context(), sid, req.QueueName, req.Passcode)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"state":    string(h.Flow.CurrentState(sid)),
		"verified": outcome.OK(),
		"code":     outcome.Code,
		"message":  outcome.Message,
		"blocking": outcome.Blocking,
		"reissued": outcome.Reissued,
	})
}

// Profiles returns the resolved customer for the selection screen, plus the
// director batch once selection has run.
func (h *Handlers) Profiles(w http.ResponseWriter, r *http.Request) {
	sid, ok := readSessionID(r, h.Cfg)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "no_session", "no sign-in session cookie")
		return
	}

	cust, ok := h.Flow.Customer(sid)
	if !ok {
		WriteError(w, http.StatusNotFound, "no_profile", "no customer profile resolved for session")
		return
	}

	resp := map[string]any{
		"state":    string(h.Flow.CurrentState(sid)),
		"customer": cust,
	}
	if batch, ok := h.Flow.Directors(sid); ok {
		resp["directors"] = batch
	}
	if selected, ok := h.Sessions.Selected(sid); ok {
		resp["selected_party_id"] = selected
	}
	WriteJSON(w, http.StatusOK, resp)
}

type selectRequest struct {
	PartyID string `json:"party_id"`
}

// Select records the chosen business profile and enters the application.
func (h *Handlers) Select(w http.ResponseWriter, r *http.Request) {
	sid, ok := readSessionID(r, h.Cfg)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "no_session", "no sign-in session cookie")
		return
	}

	var req selectRequest
	if !ReadJSON(w, r, &req) {
		return
	}

	batch, err := h.Flow.SelectBusinessProfile(r.Context(), sid, req.PartyID)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"state":     string(signin.StateEntered),
		"directors": batch,
	})
}

// SignOut clears the session server-side and expires the cookie.
func (h *Handlers) SignOut(w http.ResponseWriter, r *http.Request) {
	if sid, ok := readSessionID(r, h.Cfg); ok {
		h.Flow.SignOut(r.Context(), sid)
	}
	http.SetCookie(w, expiredCookie(h.Cfg))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeFlowError maps orchestrator errors onto wire statuses. The IdP's own
// authorization error and a state mismatch read as 401: the attempt is dead
// and the client starts over.
func (h *Handlers) writeFlowError(w http.ResponseWriter, err error) {
	var authErr *signin.AuthorizationError
	var exchErr *idp.TokenExchangeError

	switch {
	case errors.As(err, &authErr):
		WriteError(w, http.StatusUnauthorized, authErr.Code, authErr.Description)
	case errors.Is(err, signin.ErrStateMismatch):
		WriteError(w, http.StatusUnauthorized, "state_mismatch", "authorization state did not match this session")
	case errors.Is(err, signin.ErrNoSignInInProgress):
		WriteError(w, http.StatusConflict, "no_signin_in_progress", err.Error())
	case errors.Is(err, signin.ErrIllegalTransition):
		WriteError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, otp.ErrResendCooldown):
		w.Header().Set("Retry-After", "30")
		WriteError(w, http.StatusTooManyRequests, "resend_cooldown", err.Error())
	case errors.Is(err, otp.ErrChallengeSuperseded):
		WriteError(w, http.StatusConflict, "challenge_superseded", err.Error())
	case errors.Is(err, otp.ErrNoPendingChallenge):
		WriteError(w, http.StatusConflict, "no_pending_challenge", err.Error())
	case errors.As(err, &exchErr):
		WriteError(w, http.StatusBadGateway, "token_exchange_failed", err.Error())
	case errors.Is(err, profile.ErrNotFound):
		WriteError(w, http.StatusNotFound, "profile_not_found", err.Error())
	case errors.Is(err, profile.ErrMissingProfile):
		WriteError(w, http.StatusBadRequest, "missing_profile", err.Error())
	case errors.Is(err, profile.ErrResolution), errors.Is(err, otp.ErrIssue), errors.Is(err, otp.ErrValidation):
		WriteError(w, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
