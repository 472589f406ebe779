package authkit

import (
	"context"
	"testing"
	"time"
)

func TestBuilderBuildsWorkingEngine(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	sink := NewChannelSink(64)
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Account.AutoLogin = true

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(newMockUserStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	result, err := engine.Register(ctx, RegisterInput{
		Email:    "alice@example.com",
		Password: "password1",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.Session == nil {
		t.Fatal("expected auto-login session")
	}

	if _, err := engine.Login(ctx, "alice@example.com", "password1"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)

	builder := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserStore(newMockUserStore())

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := builder.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestAuditEventsEmitted(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	sink := NewChannelSink(64)
	cfg := testConfig()
	cfg.Audit.Enabled = true

	users := newMockUserStore()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := engine.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "password1"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "wrongpass1"); err == nil {
		t.Fatal("expected login failure")
	}

	engine.Close()

	var types []string
	for {
		select {
		case event := <-sink.Events():
			types = append(types, event.EventType)
			continue
		default:
		}
		break
	}

	want := map[string]bool{"register.success": false, "login.bad_password": false}
	for _, typ := range types {
		if _, tracked := want[typ]; tracked {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Fatalf("expected audit event %q, got %v", typ, types)
		}
	}
}

func TestValidateAccessExpired(t *testing.T) {
	_, rdb := newTestRedis(t)

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, testConfig(), nil)

	if _, err := engine.ValidateAccess("garbage"); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	// Mint a token that is already expired.
	engine.tokens.WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	token, _, err := engine.tokens.CreateAccess("u1", "alice@example.com")
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	engine.tokens.WithClock(time.Now)

	if _, err := engine.ValidateAccess(token); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
