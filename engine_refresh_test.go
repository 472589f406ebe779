package authkit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRefreshRotation(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, testConfig(), nil)
	users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	pair, err := engine.Login(ctx, "alice@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	next, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token must rotate")
	}
	if next.User.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", next.User)
	}

	if _, err := engine.ValidateAccess(next.AccessToken); err != nil {
		t.Fatalf("new access token invalid: %v", err)
	}
}

func TestRefreshReuseRevokesLineage(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, testConfig(), nil)
	users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	pair, err := engine.Login(ctx, "alice@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	next, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Replaying the consumed token is reuse.
	_, err = engine.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse, got %v", err)
	}
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatal("reuse must also match the generic refresh failure")
	}

	// Reuse detection killed the lineage; the fresh token is dead too.
	_, err = engine.Refresh(ctx, next.RefreshToken)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected lineage to be revoked, got %v", err)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, testConfig(), nil)
	users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	pair, err := engine.Login(ctx, "alice@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("unexpected racer error: %v", err)
		}
	}
	if wins > 1 {
		t.Fatalf("rotation must have at most one winner, got %d", wins)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	_, rdb := newTestRedis(t)

	engine := newTestEngine(t, rdb, newMockUserStore(), testConfig(), nil)

	for _, token := range []string{"", "short", "not!base64url!!"} {
		if _, err := engine.Refresh(context.Background(), token); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("token %q: expected ErrRefreshInvalid, got %v", token, err)
		}
	}
}

func TestRefreshExpiredSession(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	clock := newTestClock()
	users := newMockUserStore()
	cfg := testConfig()
	cfg.Session.RefreshTTL = time.Hour
	engine := newTestEngine(t, rdb, users, cfg, clock)
	users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	pair, err := engine.Login(ctx, "alice@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	clock.Advance(2 * time.Hour)

	_, err = engine.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for expired session, got %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, testConfig(), nil)
	users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	pair, err := engine.Login(ctx, "alice@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if err := engine.Logout(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("second Logout failed: %v", err)
	}
	if err := engine.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("garbage Logout failed: %v", err)
	}

	_, err = engine.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected refresh to fail after logout, got %v", err)
	}
}

func TestLogoutAll(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, testConfig(), nil)
	user := users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	var pairs []TokenPair
	for i := 0; i < 3; i++ {
		pair, err := engine.Login(ctx, "alice@example.com", "password1")
		if err != nil {
			t.Fatalf("Login %d failed: %v", i, err)
		}
		pairs = append(pairs, pair)
	}

	if err := engine.LogoutAll(ctx, user.ID); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}

	for i, pair := range pairs {
		if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("session %d: expected ErrRefreshInvalid, got %v", i, err)
		}
	}
}

func TestRefreshAfterUserDeleted(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	users := newMockUserStore()
	engine := newTestEngine(t, rdb, users, testConfig(), nil)
	user := users.seed(t, engine.hasher, "alice@example.com", "password1", false)

	pair, err := engine.Login(ctx, "alice@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	users.mu.Lock()
	delete(users.users, user.ID)
	delete(users.byEmail, user.Email)
	users.mu.Unlock()

	_, err = engine.Refresh(ctx, pair.RefreshToken)
	if !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid for deleted user, got %v", err)
	}
}
