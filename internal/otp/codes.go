// Package otp drives the mobile one-time-passcode step-up against the
// secondary mobile-auth channel. Passcodes are scoped to a
// (cellNumber, queueName) pair assigned by the provider; they are not
// globally addressable.
package otp

// Provider response codes. The table below is the single interpretation
// layer for them; nothing else in the system may map codes to behaviour.
const (
	CodeSuccess          = "0000"
	CodeInvalid          = "1001"
	CodeAttemptsExceeded = "1005"
	CodeExpiredReissued  = "1008"
)

// Outcome is the interpreted provider verdict.
type Outcome struct {
	Code    string `json:"responseCode"`
	Message string `json:"message"`
	// Blocking means the challenge cannot continue on this channel and the
	// user must escalate; non-blocking outcomes leave the flow in place
	// for another attempt.
	Blocking bool `json:"blocking"`
	// Reissued marks the expired-and-resent case: informational, the user
	// just types the new code.
	Reissued bool `json:"reissued"`
}

// OK reports the canonical success code.
func (o Outcome) OK() bool { return o.Code == CodeSuccess }

var outcomes = map[string]Outcome{
	CodeSuccess: {Code: CodeSuccess, Message: "Verified"},
	CodeInvalid: {Code: CodeInvalid, Message: "Invalid OTP. Please check the code and try again."},
	CodeAttemptsExceeded: {
		Code:     CodeAttemptsExceeded,
		Message:  "Too many incorrect attempts. Please visit your nearest branch to reset mobile verification.",
		Blocking: true,
	},
	CodeExpiredReissued: {
		Code:     CodeExpiredReissued,
		Message:  "Your OTP expired. A new one has been sent to your cellphone.",
		Reissued: true,
	},
}

// Interpret maps a raw provider code through the fixed table. Unknown codes
// collapse to a blocking technical error.
func Interpret(code string) Outcome {
	if o, ok := outcomes[code]; ok {
		return o
	}
	return technicalOutcome(code)
}

func technicalOutcome(code string) Outcome {
	if code == "" {
		code = "ERR"
	}
	return Outcome{
		Code:     code,
		Message:  "A technical error occurred. Please try again.",
		Blocking: true,
	}
}
