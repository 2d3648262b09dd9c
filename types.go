package ctxAuth

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/ctxAuth/challenge"
	"github.com/MrEthical07/ctxAuth/fingerprint"
	internalaudit "github.com/MrEthical07/ctxAuth/internal/audit"
	"github.com/MrEthical07/ctxAuth/trust"
	"github.com/sirupsen/logrus"
)

// Fingerprint identifies a login context (browser family, OS family, masked network).
type Fingerprint = fingerprint.Fingerprint

// TrustRecord is one known login context for a user.
type TrustRecord = trust.Record

// TrustState is the pending / trusted / blocked classification of a context.
type TrustState = trust.State

// TrustStore persists trust records. See [trust.Store].
type TrustStore = trust.Store

// ChallengeStore persists verification challenges. See [challenge.Store].
type ChallengeStore = challenge.Store

// UserRecord is the slice of the application's user entity the engine reads.
// The engine never owns profile fields; it only flips EmailVerified through
// [UserDirectory.MarkEmailVerified].
type UserRecord struct {
	ID            string
	Email         string
	Name          string
	Role          string
	EmailVerified bool
}

// UserDirectory is implemented by the host application. GetUserByEmail must
// return an error wrapping [ErrUserNotFound] when no user matches.
type UserDirectory interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	MarkEmailVerified(ctx context.Context, userID string) error
}

// RefreshTokenStore keeps one refresh token per user. Put must be an atomic
// upsert keyed by user; Get returns "" with a nil error when none exists.
type RefreshTokenStore interface {
	Put(ctx context.Context, userID, token string, issuedAt time.Time, ttl time.Duration) error
	Get(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, userID string) error
}

// PreferenceStore keeps the per-user context-auth flag. found is false when
// the user never stored a value; the engine then treats it as enabled.
type PreferenceStore interface {
	ContextAuthEnabled(ctx context.Context, userID string) (enabled, found bool, err error)
	SetContextAuthEnabled(ctx context.Context, userID string, enabled bool) error
}

// LoginOutcome is the terminal state of a login attempt.
type LoginOutcome uint8

const (
	// OutcomeAllowed means credentials were issued.
	OutcomeAllowed LoginOutcome = iota + 1
	// OutcomeChallengePending means a login-context code was mailed and the
	// caller must complete the login through [Engine.VerifyLogin].
	OutcomeChallengePending
	// OutcomeDenied means the context is blocked.
	OutcomeDenied
)

func (o LoginOutcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allow"
	case OutcomeChallengePending:
		return "challenge-pending"
	case OutcomeDenied:
		return "deny"
	default:
		return "unknown"
	}
}

// LoginResult is returned by [Engine.Login] and [Engine.VerifyLogin].
// AccessToken is set only for OutcomeAllowed. The refresh token never leaves
// the engine.
type LoginResult struct {
	Outcome     LoginOutcome
	User        UserRecord
	AccessToken string
	ExpiresAt   time.Time
	// ContextID is the trust record that was evaluated. Empty when
	// context-based authentication is disabled for the user.
	ContextID string
	// Bypassed is true when the user's preference disabled context checks.
	Bypassed bool
}

// AuthResult is returned by [Engine.Authenticate].
type AuthResult struct {
	User UserRecord
	// RotatedAccessToken is set when the presented token was inside the
	// rotation window and a fresh one was minted.
	RotatedAccessToken string
	ExpiresAt          time.Time
}

// ContextKind selects which contexts [Engine.ContextData] lists.
type ContextKind string

const (
	// ContextPrimary lists the contexts registered at email verification.
	ContextPrimary ContextKind = "primary"
	// ContextTrusted lists every trusted context.
	ContextTrusted ContextKind = "trusted"
	// ContextBlocked lists every blocked context.
	ContextBlocked ContextKind = "blocked"
	// ContextPending lists contexts awaiting verification.
	ContextPending ContextKind = "pending"
)

// ParseContextKind parses a listing type; "" defaults to [ContextPrimary].
func ParseContextKind(v string) (ContextKind, error) {
	switch k := ContextKind(strings.ToLower(strings.TrimSpace(v))); k {
	case "":
		return ContextPrimary, nil
	case ContextPrimary, ContextTrusted, ContextBlocked, ContextPending:
		return k, nil
	default:
		return "", ErrInvalidContextKind
	}
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// AuditSinkFunc adapts a function to [AuditSink].
type AuditSinkFunc = internalaudit.SinkFunc

// LogrusSink is an [AuditSink] that writes one logrus entry per event.
type LogrusSink = internalaudit.LogrusSink

// NewLogrusSink creates a [LogrusSink] over log.
func NewLogrusSink(log logrus.FieldLogger) *LogrusSink {
	return internalaudit.NewLogrusSink(log)
}

// NewChannelSink creates a [ChannelSink] with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
