// Package signin owns the sign-in flow state machine. The orchestrator
// sequences the IdP exchange, profile resolution and the OTP step-up, and
// is the only writer of session state; every write happens at a transition
// checked against the table below.
package signin

import (
	"errors"
	"fmt"
)

// State is where the user currently is in the flow.
type State string

const (
	StateWelcome            State = "WELCOME"
	StateSignIn             State = "SIGNIN"
	StateCallbackProcessing State = "CALLBACK_PROCESSING"
	StateOTPChallenge       State = "OTP_CHALLENGE"
	StateBusinessProfileSel State = "BUSINESS_PROFILE_SELECTION"
	StateEntered            State = "ENTERED"
	StateError              State = "ERROR"
)

// transitions is the full set of legal moves. CALLBACK_PROCESSING is a
// silent machine state between the redirect landing and wherever the
// resolved profile sends the user next.
var transitions = map[State][]State{
	StateWelcome:            {StateSignIn},
	StateSignIn:             {StateCallbackProcessing, StateError, StateWelcome},
	StateCallbackProcessing: {StateOTPChallenge, StateBusinessProfileSel, StateError},
	StateOTPChallenge:       {StateBusinessProfileSel, StateError, StateWelcome},
	StateBusinessProfileSel: {StateEntered, StateError, StateWelcome},
	StateEntered:            {StateWelcome},
	StateError:              {StateWelcome, StateSignIn},
}

// ErrIllegalTransition is returned when a caller tries to move the flow
// somewhere the table does not allow (e.g. validating an OTP with no
// challenge issued).
var ErrIllegalTransition = errors.New("illegal sign-in flow transition")

// CanTransition reports whether from → to is legal.
func (s State) CanTransition(to State) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

func illegal(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// AuthorizationError carries the IdP's own error from the redirect. It is
// terminal: the flow stops and no session state is created.
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return "authorization error: " + e.Code
	}
	return fmt.Sprintf("authorization error: %s: %s", e.Code, e.Description)
}

// ErrStateMismatch: the state parameter on the callback does not match the
// value retained for this session. Treated like a terminal authorization
// failure (possible CSRF or a stale/duplicated callback).
var ErrStateMismatch = errors.New("oauth state mismatch")

// ErrNoSignInInProgress: a callback or step arrived for a session with no
// retained PKCE material or in the wrong state.
var ErrNoSignInInProgress = errors.New("no sign-in in progress for session")
