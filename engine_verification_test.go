package ctxAuth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/ctxAuth/challenge"
	"github.com/MrEthical07/ctxAuth/trust"
)

func TestSignupVerificationRegistersPrimaryContext(t *testing.T) {
	h := newTestHarness(t, nil, aliceUnverified())
	ctx := homeContext()

	if err := h.engine.SendSignupVerification(ctx, "alice@example.com", ""); err != nil {
		t.Fatalf("SendSignupVerification failed: %v", err)
	}
	mail := h.mailer.sent[0]
	if !strings.Contains(mail.Body, "Alice") {
		t.Fatal("expected greeting to fall back to the directory name")
	}
	if !strings.Contains(mail.Body, "/auth/verify?") {
		t.Fatal("expected verification link")
	}
	code := h.mailer.lastCode(t)

	res, err := h.engine.VerifyEmail(ctx, "alice@example.com", code)
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if !res.User.EmailVerified {
		t.Fatal("expected user marked verified")
	}
	if res.PrimaryContext == nil || !res.PrimaryContext.Primary || res.PrimaryContext.State != trust.StateTrusted {
		t.Fatalf("expected trusted primary context, got %+v", res.PrimaryContext)
	}
	if h.users.markCalls != 1 {
		t.Fatalf("expected one MarkEmailVerified call, got %d", h.users.markCalls)
	}

	enabled, err := h.engine.ContextAuthEnabled(ctx, "u1")
	if err != nil || !enabled {
		t.Fatalf("expected context auth enabled, got %v (%v)", enabled, err)
	}

	primary, err := h.engine.ContextData(ctx, "u1", ContextPrimary)
	if err != nil {
		t.Fatalf("ContextData failed: %v", err)
	}
	if len(primary) != 1 || primary[0].ID != res.PrimaryContext.ID {
		t.Fatalf("expected primary listing, got %+v", primary)
	}

	// Logging in from the verification context is trusted immediately.
	login, err := h.engine.Login(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.Outcome != OutcomeAllowed || login.ContextID != res.PrimaryContext.ID {
		t.Fatalf("expected allow from primary context, got %+v", login)
	}
	if h.mailer.count() != 1 {
		t.Fatalf("expected no login mail, got %d mails", h.mailer.count())
	}
}

func TestVerifyEmailAlreadyVerified(t *testing.T) {
	h := newTestHarness(t, nil, aliceVerified())

	if err := h.engine.SendSignupVerification(homeContext(), "alice@example.com", "Alice"); !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
	}
	if _, err := h.engine.VerifyEmail(homeContext(), "alice@example.com", "12345"); !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
	}
}

func TestVerifyEmailAlreadyVerifiedDiscardsStaleCode(t *testing.T) {
	h := newTestHarness(t, nil, aliceUnverified())
	if err := h.engine.SendSignupVerification(homeContext(), "alice@example.com", ""); err != nil {
		t.Fatalf("SendSignupVerification failed: %v", err)
	}
	code := h.mailer.lastCode(t)

	// Verified through some other path while the code was outstanding.
	h.users.put(aliceVerified())

	if _, err := h.engine.VerifyEmail(homeContext(), "alice@example.com", "00000"); !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
	}
	_, err := h.engine.challenges.Verify(context.Background(), "alice@example.com", challenge.PurposeSignupEmail,
		challenge.HashCode(code), 0, h.clock.Now())
	if !errors.Is(err, challenge.ErrNotFound) {
		t.Fatalf("expected stale signup challenge discarded, got %v", err)
	}
}

func TestVerifyEmailWrongCodeLeavesUserUnverified(t *testing.T) {
	h := newTestHarness(t, nil, aliceUnverified())
	ctx := homeContext()

	if err := h.engine.SendSignupVerification(ctx, "alice@example.com", "Alice"); err != nil {
		t.Fatalf("SendSignupVerification failed: %v", err)
	}
	code := h.mailer.lastCode(t)

	if _, err := h.engine.VerifyEmail(ctx, "alice@example.com", wrongCode(code)); !errors.Is(err, ErrChallengeMismatch) {
		t.Fatalf("expected ErrChallengeMismatch, got %v", err)
	}
	if h.users.markCalls != 0 {
		t.Fatal("expected no directory update on mismatch")
	}
	if recs, _ := h.engine.ContextData(ctx, "u1", ContextPrimary); len(recs) != 0 {
		t.Fatalf("expected no primary context, got %+v", recs)
	}
}

func TestSignupResendSupersedes(t *testing.T) {
	h := newTestHarness(t, nil, aliceUnverified())
	ctx := homeContext()

	if err := h.engine.SendSignupVerification(ctx, "alice@example.com", "Alice"); err != nil {
		t.Fatalf("SendSignupVerification failed: %v", err)
	}
	first := h.mailer.lastCode(t)
	if err := h.engine.SendSignupVerification(ctx, "alice@example.com", "Alice"); err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	second := h.mailer.lastCode(t)

	if first != second {
		if _, err := h.engine.VerifyEmail(ctx, "alice@example.com", first); !errors.Is(err, ErrChallengeMismatch) {
			t.Fatalf("expected first code superseded, got %v", err)
		}
	}
	if _, err := h.engine.VerifyEmail(ctx, "alice@example.com", second); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
}

func TestSignupAndLoginChallengesIndependent(t *testing.T) {
	h := newTestHarness(t, nil, aliceVerified())
	ctx := travelContext()

	if _, err := h.engine.Login(ctx, "alice@example.com"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	loginCode := h.mailer.lastCode(t)

	// A login-context code is not a signup code.
	h.users.put(aliceUnverified())
	if _, err := h.engine.VerifyEmail(ctx, "alice@example.com", loginCode); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestVerifyEmailDirectoryFailure(t *testing.T) {
	h := newTestHarness(t, nil, aliceUnverified())
	ctx := homeContext()

	if err := h.engine.SendSignupVerification(ctx, "alice@example.com", "Alice"); err != nil {
		t.Fatalf("SendSignupVerification failed: %v", err)
	}
	code := h.mailer.lastCode(t)
	h.users.markErr = errors.New("db down")

	if _, err := h.engine.VerifyEmail(ctx, "alice@example.com", code); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestSendSignupVerificationDeliveryFailure(t *testing.T) {
	h := newTestHarness(t, nil, aliceUnverified())
	h.mailer.fail(context.DeadlineExceeded)

	err := h.engine.SendSignupVerification(homeContext(), "alice@example.com", "Alice")
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if _, err := h.engine.VerifyEmail(homeContext(), "alice@example.com", "12345"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected rolled back challenge, got %v", err)
	}
}
