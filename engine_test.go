package authkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/avdeyev/authkit/internal/codes"
	"github.com/avdeyev/authkit/internal/limiters"
	"github.com/avdeyev/authkit/jwt"
	"github.com/avdeyev/authkit/password"
	"github.com/avdeyev/authkit/session"
)

var testJWTSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

// mockUserStore is an in-memory UserStore for engine tests.
type mockUserStore struct {
	mu      sync.Mutex
	users   map[string]User
	byEmail map[string]string
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:   make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (m *mockUserStore) CreateUser(_ context.Context, input CreateUserInput) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[input.Email]; taken {
		return User{}, ErrDuplicateEmail
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: input.PasswordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.users[user.ID] = user
	m.byEmail[user.Email] = user.ID

	return user, nil
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *mockUserStore) GetUserByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStore) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	return m.update(userID, func(u *User) {
		u.PasswordHash = newHash
	})
}

func (m *mockUserStore) SetEmailVerified(_ context.Context, userID string) error {
	return m.update(userID, func(u *User) {
		u.EmailVerified = true
	})
}

func (m *mockUserStore) RecordLoginFailure(_ context.Context, userID string, at time.Time, restart bool) error {
	return m.update(userID, func(u *User) {
		if restart {
			u.FailedLoginAttempts = 1
		} else {
			u.FailedLoginAttempts++
		}
		u.LastFailedLoginAt = at
	})
}

func (m *mockUserStore) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	return m.update(userID, func(u *User) {
		u.FailedLoginAttempts = 0
		u.LastFailedLoginAt = time.Time{}
		u.LastLoginAt = at
	})
}

func (m *mockUserStore) update(userID string, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	fn(&user)
	m.users[userID] = user
	return nil
}

func (m *mockUserStore) seed(t *testing.T, hasher *password.Hasher, email, pass string, verified bool) User {
	t.Helper()

	hash, err := hasher.Hash(pass)
	if err != nil {
		t.Fatalf("seed hash failed: %v", err)
	}

	user, err := m.CreateUser(context.Background(), CreateUserInput{
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("seed user failed: %v", err)
	}

	if verified {
		if err := m.SetEmailVerified(context.Background(), user.ID); err != nil {
			t.Fatalf("seed verify failed: %v", err)
		}
		user.EmailVerified = true
	}

	return user
}

// testClock is an adjustable time source shared by engine and stores.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()

	hasher, err := password.NewHasher(password.Config{Cost: 10})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return hasher
}

func newStrongHasher() (*password.Hasher, error) {
	return password.NewHasher(password.Config{Cost: 11})
}

func newTestEngine(t *testing.T, rdb *redis.Client, users UserStore, cfg Config, clock *testClock) *Engine {
	t.Helper()

	cfg.withDefaults()

	tokens, err := jwt.NewManager(jwt.Config{
		Secret:    testJWTSecret,
		AccessTTL: cfg.JWT.AccessTTL,
		Issuer:    cfg.JWT.Issuer,
	})
	if err != nil {
		t.Fatalf("jwt.NewManager failed: %v", err)
	}

	engine := &Engine{
		config:   cfg,
		users:    users,
		sessions: session.NewStore(rdb, "t"),
		codes:    codes.NewStore(rdb, "t"),
		tokens:   tokens,
		hasher:   newTestHasher(t),
		lockout: limiters.LockoutPolicy{
			MaxAttempts: cfg.Lockout.MaxAttempts,
			Window:      cfg.Lockout.Window,
		},
		now: time.Now,
	}

	if clock != nil {
		engine.now = clock.Now
		engine.sessions.WithClock(clock.Now)
		engine.codes.WithClock(clock.Now)
	}

	return engine
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testJWTSecret
	cfg.Password.Cost = 10
	return cfg
}
