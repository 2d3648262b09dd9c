package ctxAuth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginAllowed          = "login_allowed"
	auditEventLoginBypassed         = "login_bypassed"
	auditEventLoginChallenged       = "login_challenged"
	auditEventLoginDenied           = "login_denied"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginVerified         = "login_context_verified"
	auditEventLoginVerifyFailure    = "login_context_verify_failure"
	auditEventLoginBlocked          = "login_context_blocked"
	auditEventChallengeIssued       = "challenge_issued"
	auditEventChallengeDelivery     = "challenge_delivery_failed"
	auditEventEmailVerification     = "email_verification_request"
	auditEventEmailVerified         = "email_verified"
	auditEventEmailVerifyFailure    = "email_verification_failure"
	auditEventContextDeleted        = "context_deleted"
	auditEventContextBlocked        = "context_blocked"
	auditEventContextUnblocked      = "context_unblocked"
	auditEventPreferenceChanged     = "context_auth_preference_changed"
	auditEventAuthenticateFailure   = "authenticate_failure"
	auditEventAccessTokenRotated    = "access_token_rotated"
	auditEventLogout                = "logout"
)

// AuditErrorCode is the stable error classification recorded on audit events.
type AuditErrorCode string

const (
	auditErrUnauthenticated      AuditErrorCode = "unauthenticated"
	auditErrInvalidToken         AuditErrorCode = "invalid_token"
	auditErrUserNotFound         AuditErrorCode = "user_not_found"
	auditErrEmailUnverified      AuditErrorCode = "email_unverified"
	auditErrEmailAlreadyVerified AuditErrorCode = "email_already_verified"
	auditErrContextBlocked       AuditErrorCode = "context_blocked"
	auditErrContextNotFound      AuditErrorCode = "context_not_found"
	auditErrInvalidTransition    AuditErrorCode = "invalid_transition"
	auditErrChallengeNotFound    AuditErrorCode = "challenge_not_found"
	auditErrChallengeExpired     AuditErrorCode = "challenge_expired"
	auditErrChallengeMismatch    AuditErrorCode = "challenge_mismatch"
	auditErrAttemptsExceeded     AuditErrorCode = "attempts_exceeded"
	auditErrInvalidCode          AuditErrorCode = "invalid_code"
	auditErrDeliveryFailed       AuditErrorCode = "delivery_failed"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	contextID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		ContextID: contextID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrEmailUnverified):
		return auditErrEmailUnverified
	case errors.Is(err, ErrEmailAlreadyVerified):
		return auditErrEmailAlreadyVerified
	case errors.Is(err, ErrContextBlocked):
		return auditErrContextBlocked
	case errors.Is(err, ErrContextNotFound):
		return auditErrContextNotFound
	case errors.Is(err, ErrInvalidTransition):
		return auditErrInvalidTransition
	case errors.Is(err, ErrChallengeNotFound):
		return auditErrChallengeNotFound
	case errors.Is(err, ErrChallengeExpired):
		return auditErrChallengeExpired
	case errors.Is(err, ErrChallengeMismatch):
		return auditErrChallengeMismatch
	case errors.Is(err, ErrChallengeAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
