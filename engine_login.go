package ctxAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/ctxAuth/challenge"
	"github.com/MrEthical07/ctxAuth/trust"
)

// Login classifies the login context of a user whose credentials the caller
// has already verified, and decides whether to issue credentials.
//
// The context is derived from [WithFingerprint], or from [WithUserAgent] and
// [WithClientIP]. A trusted context yields [OutcomeAllowed] with an access
// token. An unseen or pending context mails a login-context code and yields
// [OutcomeChallengePending]. A blocked context yields [OutcomeDenied] together
// with [ErrContextBlocked]; the result is still returned so callers can
// report which context was refused.
func (e *Engine) Login(ctx context.Context, email string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.lookupUser(ctx, email)
	if err != nil {
		e.loginFailed(ctx, "", "", err)
		return nil, err
	}
	if e.config.Context.RequireVerifiedEmail && !user.EmailVerified {
		e.loginFailed(ctx, user.ID, "", ErrEmailUnverified)
		return nil, ErrEmailUnverified
	}

	enabled, err := e.contextAuthEnabled(ctx, user.ID)
	if err != nil {
		e.loginFailed(ctx, user.ID, "", err)
		return nil, err
	}
	if !enabled {
		token, expiresAt, err := e.issueCredentials(ctx, user)
		if err != nil {
			e.loginFailed(ctx, user.ID, "", err)
			return nil, err
		}
		e.metricInc(MetricLoginBypassed)
		e.emitAudit(ctx, auditEventLoginBypassed, true, user.ID, "", nil, nil)
		return &LoginResult{
			Outcome:     OutcomeAllowed,
			User:        user,
			AccessToken: token,
			ExpiresAt:   expiresAt,
			Bypassed:    true,
		}, nil
	}

	record, err := e.trustStore.RecordAttempt(ctx, user.ID, FingerprintFromContext(ctx), e.clock())
	if err != nil {
		err = storeErr(err)
		e.loginFailed(ctx, user.ID, "", err)
		return nil, err
	}

	switch record.State {
	case trust.StateTrusted:
		token, expiresAt, err := e.issueCredentials(ctx, user)
		if err != nil {
			e.loginFailed(ctx, user.ID, record.ID, err)
			return nil, err
		}
		e.metricInc(MetricLoginAllowed)
		e.emitAudit(ctx, auditEventLoginAllowed, true, user.ID, record.ID, nil, nil)
		return &LoginResult{
			Outcome:     OutcomeAllowed,
			User:        user,
			AccessToken: token,
			ExpiresAt:   expiresAt,
			ContextID:   record.ID,
		}, nil

	case trust.StateBlocked:
		e.metricInc(MetricLoginDenied)
		e.emitAudit(ctx, auditEventLoginDenied, false, user.ID, record.ID, ErrContextBlocked, nil)
		return &LoginResult{
			Outcome:   OutcomeDenied,
			User:      user,
			ContextID: record.ID,
		}, ErrContextBlocked

	case trust.StatePending:
		err := e.issueChallenge(ctx, user.ID, user.Email, challenge.PurposeLoginContext, record.ID, func(code string) (string, string, error) {
			return e.mail.renderLogin(user, record, code, e.config.Challenge.TTL)
		})
		if err != nil {
			e.loginFailed(ctx, user.ID, record.ID, err)
			return nil, err
		}
		e.metricInc(MetricLoginChallenged)
		e.emitAudit(ctx, auditEventLoginChallenged, true, user.ID, record.ID, nil, func() map[string]string {
			return map[string]string{
				"browser": record.Fingerprint.BrowserFamily,
				"os":      record.Fingerprint.OSFamily,
				"network": record.Fingerprint.NetworkOrigin,
			}
		})
		return &LoginResult{
			Outcome:   OutcomeChallengePending,
			User:      user,
			ContextID: record.ID,
		}, nil

	default:
		err := fmt.Errorf("%w: %v", ErrStoreUnavailable, trust.ErrInvalidState)
		e.loginFailed(ctx, user.ID, record.ID, err)
		return nil, err
	}
}

func (e *Engine) loginFailed(ctx context.Context, userID, contextID string, err error) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, contextID, err, nil)
}

func (e *Engine) lookupUser(ctx context.Context, email string) (UserRecord, error) {
	email = normalizeEmail(email)
	if email == "" {
		return UserRecord{}, ErrUserNotFound
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, err
		}
		return UserRecord{}, storeErr(err)
	}
	if user.ID == "" {
		return UserRecord{}, ErrUserNotFound
	}
	if user.Email == "" {
		user.Email = email
	}
	return user, nil
}
