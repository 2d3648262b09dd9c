package ctxAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/ctxAuth/challenge"
	"github.com/MrEthical07/ctxAuth/internal"
)

type challengeMail func(code string) (subject, body string, err error)

// issueChallenge persists a fresh code for (subject, purpose), replacing any
// outstanding one, then mails it. A challenge that could not be delivered is
// removed again so it never outlives a failed send.
func (e *Engine) issueChallenge(
	ctx context.Context,
	userID string,
	subject string,
	purpose challenge.Purpose,
	contextID string,
	render challengeMail,
) error {
	code, err := internal.NewVerificationCode()
	if err != nil {
		return err
	}

	now := e.clock()
	record := challenge.Record{
		Subject:   challenge.NormalizeSubject(subject),
		Purpose:   purpose,
		CodeHash:  challenge.HashCode(code),
		ContextID: contextID,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.config.Challenge.TTL),
	}
	if err := e.challenges.Save(ctx, record); err != nil {
		return storeErr(err)
	}

	mailSubject, body, err := render(code)
	if err != nil {
		e.rollbackChallenge(ctx, record)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.Mail.SendTimeout)
	defer cancel()

	messageID, err := e.mailer.Send(sendCtx, subject, mailSubject, body)
	if err != nil {
		e.rollbackChallenge(ctx, record)
		e.metricInc(MetricChallengeDeliveryFailed)
		e.emitAudit(ctx, auditEventChallengeDelivery, false, userID, contextID, ErrDeliveryFailed, func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		})
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.metricInc(MetricChallengeIssued)
	e.emitAudit(ctx, auditEventChallengeIssued, true, userID, contextID, nil, func() map[string]string {
		meta := map[string]string{"purpose": string(purpose)}
		if messageID != "" {
			meta["message_id"] = messageID
		}
		return meta
	})
	return nil
}

func (e *Engine) rollbackChallenge(ctx context.Context, record challenge.Record) {
	// Only the code we just saved is removed; a concurrent reissue survives.
	err := e.challenges.Remove(context.WithoutCancel(ctx), record.Subject, record.Purpose, record.CodeHash)
	if err != nil {
		e.log().WithError(err).WithField("purpose", string(record.Purpose)).
			Warn("ctxauth: challenge rollback failed")
	}
}

// verifyChallenge consumes the active challenge when code matches.
func (e *Engine) verifyChallenge(ctx context.Context, subject string, purpose challenge.Purpose, code string) (*challenge.Record, error) {
	if !internal.IsVerificationCode(code) {
		e.metricInc(MetricChallengeFailed)
		return nil, ErrInvalidCode
	}

	record, err := e.challenges.Verify(
		ctx,
		challenge.NormalizeSubject(subject),
		purpose,
		challenge.HashCode(code),
		e.config.Challenge.MaxAttempts,
		e.clock(),
	)
	if err != nil {
		if IsChallengeFailure(err) {
			if errors.Is(err, ErrChallengeAttemptsExceeded) {
				e.metricInc(MetricChallengeAttemptsExceeded)
			} else {
				e.metricInc(MetricChallengeFailed)
			}
		}
		return nil, storeErr(err)
	}

	e.metricInc(MetricChallengeVerified)
	return record, nil
}
