package flows

import (
	"errors"
	"fmt"
)

// LoginState is the tag of a login attempt.
type LoginState uint8

const (
	LoginStateNone LoginState = iota
	LoginStateCredentialsSubmitted
	LoginStateOTPPending
	LoginStateSessionEstablished
)

// ErrIllegalTransition is returned by Advance for transitions outside the table.
var ErrIllegalTransition = errors.New("illegal login state transition")

var loginTransitions = map[LoginState][]LoginState{
	LoginStateNone:                 {LoginStateCredentialsSubmitted},
	LoginStateCredentialsSubmitted: {LoginStateOTPPending},
	// resend keeps the attempt pending
	LoginStateOTPPending: {LoginStateOTPPending, LoginStateSessionEstablished},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to LoginState) bool {
	for _, next := range loginTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Advance returns to when the transition is allowed.
func Advance(from, to LoginState) (LoginState, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return to, nil
}

func (s LoginState) String() string {
	switch s {
	case LoginStateNone:
		return "NONE"
	case LoginStateCredentialsSubmitted:
		return "CREDENTIALS_SUBMITTED"
	case LoginStateOTPPending:
		return "OTP_PENDING"
	case LoginStateSessionEstablished:
		return "SESSION_ESTABLISHED"
	}
	return fmt.Sprintf("LoginState(%d)", uint8(s))
}
