package authkit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func verificationConfig() Config {
	cfg := testConfig()
	cfg.EmailVerification.Enabled = true
	cfg.EmailVerification.RequireForLogin = true
	return cfg
}

func TestEmailVerificationFlow(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, verificationConfig(), nil)
	users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	token, err := engine.RequestEmailVerification(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestEmailVerification failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected dev token without a mailer")
	}

	if err := engine.VerifyEmail(ctx, "alice@example.com", token); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	user, _ := users.GetUserByEmail(ctx, "alice@example.com")
	if !user.EmailVerified {
		t.Fatal("expected account to be verified")
	}

	// The token is single use.
	err = engine.VerifyEmail(ctx, "alice@example.com", token)
	if !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified on replay, got %v", err)
	}
}

func TestVerifyEmailWrongToken(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, verificationConfig(), nil)
	users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	if _, err := engine.RequestEmailVerification(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestEmailVerification failed: %v", err)
	}

	err := engine.VerifyEmail(ctx, "alice@example.com", "wrong-token")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	err = engine.VerifyEmail(ctx, "nobody@example.com", "whatever")
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("unknown email: expected ErrCodeInvalid, got %v", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	clock := newTestClock()
	users := newMockUserStore()
	cfg := verificationConfig()
	cfg.EmailVerification.TokenTTL = 24 * time.Hour
	engine := newTestEngine(t, rdb, users, cfg, clock)
	users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	token, err := engine.RequestEmailVerification(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("RequestEmailVerification failed: %v", err)
	}

	clock.Advance(25 * time.Hour)

	err = engine.VerifyEmail(ctx, "alice@example.com", token)
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestVerificationReissueSupersedes(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, verificationConfig(), nil)
	users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	first, err := engine.RequestEmailVerification(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	second, err := engine.RequestEmailVerification(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("second request failed: %v", err)
	}

	if err := engine.VerifyEmail(ctx, "alice@example.com", first); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected superseded token to fail, got %v", err)
	}
	if err := engine.VerifyEmail(ctx, "alice@example.com", second); err != nil {
		t.Fatalf("expected newest token to verify, got %v", err)
	}
}

func TestVerificationDisabled(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	engine := newTestEngine(t, rdb, newMockUserStore(), testConfig(), nil)

	if _, err := engine.RequestEmailVerification(ctx, "alice@example.com"); !errors.Is(err, ErrVerificationDisabled) {
		t.Fatalf("expected ErrVerificationDisabled, got %v", err)
	}
	if err := engine.VerifyEmail(ctx, "alice@example.com", "t"); !errors.Is(err, ErrVerificationDisabled) {
		t.Fatalf("expected ErrVerificationDisabled, got %v", err)
	}
}

func TestRequestVerificationAlreadyVerified(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, verificationConfig(), nil)
	users.seed(t, engine.hasher, "alice@example.com", "password1", true)

	_, err := engine.RequestEmailVerification(ctx, "alice@example.com")
	if !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
	}
}

func TestRequestVerificationUnknownEmail(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	engine := newTestEngine(t, rdb, newMockUserStore(), verificationConfig(), nil)

	// Unknown addresses get the same quiet acknowledgement as known ones.
	token, err := engine.RequestEmailVerification(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("RequestEmailVerification failed: %v", err)
	}
	if token != "" {
		t.Fatalf("expected no token for an unknown address, got %q", token)
	}
}
