package ctxAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/ctxAuth/jwt"
)

// IssueCredentials mints an access token for user and replaces the user's
// stored refresh token. Login and VerifyLogin call it; hosts use it for flows
// that authenticate by other means.
func (e *Engine) IssueCredentials(ctx context.Context, user UserRecord) (string, time.Time, error) {
	if err := e.ready(); err != nil {
		return "", time.Time{}, err
	}
	if user.ID == "" || user.Email == "" {
		return "", time.Time{}, ErrUserNotFound
	}
	return e.issueCredentials(ctx, user)
}

func (e *Engine) issueCredentials(ctx context.Context, user UserRecord) (string, time.Time, error) {
	refreshToken, err := e.refreshJWT.Create(user.ID, user.Email)
	if err != nil {
		return "", time.Time{}, err
	}
	now := e.clock()
	if err := e.refresh.Put(ctx, user.ID, refreshToken, now, e.refreshJWT.TTL()); err != nil {
		return "", time.Time{}, storeErr(err)
	}

	accessToken, err := e.accessJWT.Create(user.ID, user.Email)
	if err != nil {
		return "", time.Time{}, err
	}

	e.metricInc(MetricCredentialsIssued)
	return accessToken, now.Add(e.accessJWT.TTL()), nil
}

// Authenticate validates an access token against the user directory and the
// stored refresh token. A token with less than RotationThreshold left is
// replaced; the replacement is returned in [AuthResult.RotatedAccessToken] and
// the presented token stays valid until its own expiry.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricAuthenticateLatency, time.Since(start))
	}()

	result, err := e.authenticate(ctx, accessToken)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		userID := ""
		if result != nil {
			userID = result.User.ID
		}
		e.emitAudit(ctx, auditEventAuthenticateFailure, false, userID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricAuthenticateSuccess)
	return result, nil
}

func (e *Engine) authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := e.accessJWT.Parse(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, fmt.Errorf("%w: access token expired", ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	user, err := e.lookupUser(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return nil, err
	}
	partial := &AuthResult{User: user}
	if user.ID != claims.UID {
		return partial, fmt.Errorf("%w: token subject mismatch", ErrUnauthenticated)
	}

	stored, err := e.refresh.Get(ctx, user.ID)
	if err != nil {
		return partial, storeErr(err)
	}
	if stored == "" {
		return partial, fmt.Errorf("%w: no refresh token", ErrUnauthenticated)
	}
	refreshClaims, err := e.refreshJWT.Parse(stored)
	if err != nil {
		return partial, fmt.Errorf("%w: refresh token: %v", ErrUnauthenticated, err)
	}
	if refreshClaims.UID != claims.UID || !strings.EqualFold(refreshClaims.Email, claims.Email) {
		return partial, fmt.Errorf("%w: refresh token identity mismatch", ErrUnauthenticated)
	}

	result := &AuthResult{
		User:      user,
		ExpiresAt: claims.ExpiresAt.Time,
	}

	remaining := e.accessJWT.Remaining(claims)
	if remaining > 0 && remaining < e.config.JWT.RotationThreshold {
		rotated, err := e.accessJWT.Create(user.ID, user.Email)
		if err != nil {
			return partial, err
		}
		result.RotatedAccessToken = rotated
		result.ExpiresAt = e.clock().Add(e.accessJWT.TTL())
		e.metricInc(MetricAccessRotated)
		e.emitAudit(ctx, auditEventAccessTokenRotated, true, user.ID, "", nil, nil)
	}

	return result, nil
}

// Logout deletes the user's refresh token. Access tokens already issued stop
// authenticating immediately because Authenticate requires the refresh record.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if userID == "" {
		return ErrUnauthenticated
	}

	if err := e.refresh.Delete(ctx, userID); err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventLogout, false, userID, "", err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, userID, "", nil, nil)
	return nil
}
