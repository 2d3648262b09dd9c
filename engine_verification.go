package ctxAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/ctxAuth/challenge"
	"github.com/MrEthical07/ctxAuth/trust"
)

// EmailVerification is the result of [Engine.VerifyEmail].
type EmailVerification struct {
	User UserRecord
	// PrimaryContext is the context the verification was completed from.
	// Nil if it could not be registered.
	PrimaryContext *TrustRecord
}

// SendSignupVerification mails a fresh signup code to email, superseding any
// earlier one. name is used in the greeting and falls back to the directory name.
func (e *Engine) SendSignupVerification(ctx context.Context, email, name string) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.lookupUser(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return ErrEmailAlreadyVerified
	}
	if name == "" {
		name = user.Name
	}

	err = e.issueChallenge(ctx, user.ID, user.Email, challenge.PurposeSignupEmail, "", func(code string) (string, string, error) {
		return e.mail.renderSignup(user.Email, name, code, e.config.Challenge.TTL)
	})
	e.emitAudit(ctx, auditEventEmailVerification, err == nil, user.ID, "", err, nil)
	return err
}

// VerifyEmail consumes a signup code. On success the user is marked verified,
// context-based authentication is switched on, and the context the request
// came from is registered as the trusted primary context.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) (*EmailVerification, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.lookupUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.EmailVerified {
		// A code left over from before verification can never be used.
		if err := e.challenges.Discard(ctx, challenge.NormalizeSubject(user.Email), challenge.PurposeSignupEmail); err != nil {
			e.log().WithError(err).WithField("user_id", user.ID).
				Warn("ctxauth: discarding stale signup challenge failed")
		}
		return nil, ErrEmailAlreadyVerified
	}

	if _, err := e.verifyChallenge(ctx, user.Email, challenge.PurposeSignupEmail, code); err != nil {
		e.emitAudit(ctx, auditEventEmailVerifyFailure, false, user.ID, "", err, nil)
		return nil, err
	}

	if err := e.users.MarkEmailVerified(ctx, user.ID); err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventEmailVerifyFailure, false, user.ID, "", err, nil)
		return nil, err
	}
	user.EmailVerified = true

	// The code is spent and the user is verified; the rest is best effort.
	if err := e.preferences.SetContextAuthEnabled(ctx, user.ID, true); err != nil {
		e.log().WithError(err).WithField("user_id", user.ID).
			Warn("ctxauth: enabling context auth after email verification failed")
	}

	now := e.clock()
	primary, err := e.trustStore.RegisterPrimary(ctx, user.ID, FingerprintFromContext(ctx), now)
	if err != nil {
		e.log().WithError(err).WithField("user_id", user.ID).
			Warn("ctxauth: registering primary context failed")
		primary = nil
	}

	contextID := ""
	if primary != nil {
		contextID = primary.ID
	}
	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, auditEventEmailVerified, true, user.ID, contextID, nil, nil)

	return &EmailVerification{
		User:           user,
		PrimaryContext: primary,
	}, nil
}

// VerifyLogin completes a challenged login: it consumes the login-context
// code, promotes the context the code was issued for to trusted, and issues
// credentials.
func (e *Engine) VerifyLogin(ctx context.Context, email, code string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.lookupUser(ctx, email)
	if err != nil {
		return nil, err
	}

	issued, err := e.verifyChallenge(ctx, user.Email, challenge.PurposeLoginContext, code)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginVerifyFailure, false, user.ID, "", err, nil)
		return nil, err
	}
	if issued.ContextID == "" {
		e.emitAudit(ctx, auditEventLoginVerifyFailure, false, user.ID, "", ErrContextNotFound, nil)
		return nil, ErrContextNotFound
	}

	record, err := trust.Promote(ctx, e.trustStore, user.ID, issued.ContextID, e.clock())
	if err != nil {
		// A context blocked or deleted while the code was outstanding stays that way.
		err = storeErr(err)
		e.emitAudit(ctx, auditEventLoginVerifyFailure, false, user.ID, issued.ContextID, err, nil)
		if errors.Is(err, ErrInvalidTransition) {
			return nil, ErrContextBlocked
		}
		return nil, err
	}
	e.metricInc(MetricContextPromoted)

	token, expiresAt, err := e.issueCredentials(ctx, user)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginVerifyFailure, false, user.ID, record.ID, err, nil)
		return nil, err
	}

	e.emitAudit(ctx, auditEventLoginVerified, true, user.ID, record.ID, nil, nil)
	return &LoginResult{
		Outcome:     OutcomeAllowed,
		User:        user,
		AccessToken: token,
		ExpiresAt:   expiresAt,
		ContextID:   record.ID,
	}, nil
}

// BlockLogin blocks a pending context from the link in a login-context email.
// It needs no code, so it never touches trusted contexts: those fail with
// [ErrInvalidTransition] and stay trusted. Blocking any state is
// [Engine.BlockContext], which requires authentication.
func (e *Engine) BlockLogin(ctx context.Context, email, contextID string) (*TrustRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.lookupUser(ctx, email)
	if err != nil {
		return nil, err
	}

	record, err := trust.Reject(ctx, e.trustStore, user.ID, contextID, e.clock())
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventLoginBlocked, false, user.ID, contextID, err, nil)
		return nil, err
	}

	e.metricInc(MetricContextBlocked)
	e.emitAudit(ctx, auditEventLoginBlocked, true, user.ID, record.ID, nil, nil)
	return record, nil
}
