package userstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeyev/authkit"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func createUser(t *testing.T, store *Store, email string) authkit.User {
	t.Helper()

	user, err := store.CreateUser(context.Background(), authkit.CreateUserInput{
		Email:        email,
		PasswordHash: "$2a$10$fakefakefakefakefakefakefakefakefakefakefakefakefake",
		Name:         "Test User",
	})
	require.NoError(t, err)

	return user
}

func TestCreateAndGetUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := createUser(t, store, "alice@example.com")
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.EmailVerified)
	assert.Zero(t, created.FailedLoginAttempts)

	byEmail, err := store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, "Test User", byEmail.Name)

	byID, err := store.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, byID.Email)
}

func TestDuplicateEmailCaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createUser(t, store, "alice@example.com")

	_, err := store.CreateUser(ctx, authkit.CreateUserInput{
		Email:        "ALICE@example.com",
		PasswordHash: "h",
	})
	assert.ErrorIs(t, err, authkit.ErrDuplicateEmail)
}

func TestGetUserByEmailCaseInsensitive(t *testing.T) {
	store := newTestStore(t)

	created := createUser(t, store, "alice@example.com")

	found, err := store.GetUserByEmail(context.Background(), "Alice@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestGetUserNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, authkit.ErrUserNotFound)

	_, err = store.GetUserByID(ctx, "no-such-id")
	assert.ErrorIs(t, err, authkit.ErrUserNotFound)
}

func TestUpdatePasswordHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createUser(t, store, "alice@example.com")

	require.NoError(t, store.UpdatePasswordHash(ctx, user.ID, "new-hash"))

	updated, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", updated.PasswordHash)

	assert.ErrorIs(t, store.UpdatePasswordHash(ctx, "no-such-id", "h"), authkit.ErrUserNotFound)
}

func TestSetEmailVerified(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createUser(t, store, "alice@example.com")
	require.NoError(t, store.SetEmailVerified(ctx, user.ID))

	updated, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, updated.EmailVerified)
}

func TestLoginFailureBookkeeping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := createUser(t, store, "alice@example.com")
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordLoginFailure(ctx, user.ID, at, false))
	require.NoError(t, store.RecordLoginFailure(ctx, user.ID, at.Add(time.Minute), false))

	updated, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.FailedLoginAttempts)
	assert.Equal(t, at.Add(time.Minute), updated.LastFailedLoginAt)

	// A stale streak restarts at one.
	require.NoError(t, store.RecordLoginFailure(ctx, user.ID, at.Add(time.Hour), true))
	updated, err = store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FailedLoginAttempts)

	// Success clears everything and stamps the login time.
	loginAt := at.Add(2 * time.Hour)
	require.NoError(t, store.RecordLoginSuccess(ctx, user.ID, loginAt))
	updated, err = store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, updated.FailedLoginAttempts)
	assert.True(t, updated.LastFailedLoginAt.IsZero())
	assert.Equal(t, loginAt, updated.LastLoginAt)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
