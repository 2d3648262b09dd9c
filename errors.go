package ctxAuth

import (
	"errors"

	"github.com/MrEthical07/ctxAuth/challenge"
	"github.com/MrEthical07/ctxAuth/trust"
)

var (
	// ErrUnauthenticated is returned when a request carries no usable identity:
	// expired access token, unknown user, missing or invalid refresh record, or
	// an identity mismatch between the two tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTokenInvalid is returned when the access token signature or structure is wrong.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrUserNotFound is returned when the user directory has no matching user.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailUnverified is returned when a login is attempted before email verification.
	ErrEmailUnverified = errors.New("email not verified")
	// ErrEmailAlreadyVerified is returned by VerifyEmail for an already verified address.
	ErrEmailAlreadyVerified = errors.New("email already verified")
	// ErrContextBlocked is returned when the login context has been blocked by the account owner.
	ErrContextBlocked = errors.New("login context blocked")
	// ErrContextNotFound is returned when a context id does not exist for the caller.
	ErrContextNotFound = trust.ErrNotFound
	// ErrInvalidTransition is returned when a context cannot move to the requested state.
	ErrInvalidTransition = trust.ErrInvalidTransition
	// ErrInvalidContextKind is returned for an unknown context-data listing type.
	ErrInvalidContextKind = errors.New("invalid context kind")
	// ErrChallengeNotFound is returned when no active challenge exists, including after consumption.
	ErrChallengeNotFound = challenge.ErrNotFound
	// ErrChallengeExpired is returned when the challenge window has closed.
	ErrChallengeExpired = challenge.ErrExpired
	// ErrChallengeMismatch is returned when the submitted code is wrong.
	ErrChallengeMismatch = challenge.ErrMismatch
	// ErrChallengeAttemptsExceeded is returned when too many wrong codes destroyed the challenge.
	ErrChallengeAttemptsExceeded = challenge.ErrAttemptsExceeded
	// ErrInvalidCode is returned when a submitted code is not five digits.
	ErrInvalidCode = errors.New("invalid verification code format")
	// ErrDeliveryFailed is returned when the mailer could not send a challenge.
	ErrDeliveryFailed = errors.New("challenge delivery failed")
	// ErrStoreUnavailable wraps transient persistence failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned when an Engine method is called on a nil or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// IsChallengeFailure reports whether err is any of the challenge verification
// failures a client can render as "code invalid or expired".
func IsChallengeFailure(err error) bool {
	return errors.Is(err, ErrChallengeNotFound) ||
		errors.Is(err, ErrChallengeExpired) ||
		errors.Is(err, ErrChallengeMismatch) ||
		errors.Is(err, ErrChallengeAttemptsExceeded) ||
		errors.Is(err, ErrInvalidCode)
}
