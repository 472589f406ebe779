// Package userstore persists user credential records in SQLite. It is the
// durable side of the system: sessions and one-time codes live in Redis,
// but accounts survive restarts here.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/avdeyev/authkit"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	email_verified INTEGER NOT NULL DEFAULT 0,
	failed_login_attempts INTEGER NOT NULL DEFAULT 0,
	last_failed_login_at INTEGER,
	last_login_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store implements authkit.UserStore over SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ authkit.UserStore = (*Store)(nil)

// Open opens (creating if needed) the user database at path. ":memory:"
// is accepted for tests.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// WithClock overrides the time source. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// CreateUser inserts a new user and returns the stored record. The email
// must already be normalized; uniqueness is case-insensitive.
func (s *Store) CreateUser(ctx context.Context, input authkit.CreateUserInput) (authkit.User, error) {
	now := s.now().UTC()
	user := authkit.User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: input.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, email_verified, failed_login_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.Name, toMillis(now), toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return authkit.User{}, authkit.ErrDuplicateEmail
		}
		return authkit.User{}, fmt.Errorf("%w: insert user: %v", authkit.ErrBackendUnavailable, err)
	}

	return user, nil
}

// GetUserByEmail looks a user up by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (authkit.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email)
}

// GetUserByID looks a user up by id.
func (s *Store) GetUserByID(ctx context.Context, userID string) (authkit.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
}

const userColumns = `id, email, password_hash, name, email_verified, failed_login_attempts, last_failed_login_at, last_login_at, created_at, updated_at`

func (s *Store) queryUser(ctx context.Context, query string, arg any) (authkit.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, query, arg)

	var (
		user          authkit.User
		emailVerified int
		lastFailed    sql.NullInt64
		lastLogin     sql.NullInt64
		createdMillis int64
		updatedMillis int64
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name,
		&emailVerified, &user.FailedLoginAttempts,
		&lastFailed, &lastLogin, &createdMillis, &updatedMillis,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authkit.User{}, authkit.ErrUserNotFound
		}
		return authkit.User{}, fmt.Errorf("%w: query user: %v", authkit.ErrBackendUnavailable, err)
	}

	user.EmailVerified = emailVerified != 0
	if lastFailed.Valid {
		user.LastFailedLoginAt = fromMillis(lastFailed.Int64)
	}
	if lastLogin.Valid {
		user.LastLoginAt = fromMillis(lastLogin.Int64)
	}
	user.CreatedAt = fromMillis(createdMillis)
	user.UpdatedAt = fromMillis(updatedMillis)

	return user, nil
}

// UpdatePasswordHash replaces the stored hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	return s.execOne(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, toMillis(s.now()), userID,
	)
}

// SetEmailVerified marks the user's email address as confirmed.
func (s *Store) SetEmailVerified(ctx context.Context, userID string) error {
	return s.execOne(ctx, `
		UPDATE users SET email_verified = 1, updated_at = ? WHERE id = ?`,
		toMillis(s.now()), userID,
	)
}

// RecordLoginFailure increments the failure counter and stamps the failure
// time. When restart is true the counter restarts at one instead, which the
// engine requests once a previous failure streak has gone stale.
func (s *Store) RecordLoginFailure(ctx context.Context, userID string, at time.Time, restart bool) error {
	if restart {
		return s.execOne(ctx, `
			UPDATE users SET failed_login_attempts = 1, last_failed_login_at = ?, updated_at = ? WHERE id = ?`,
			toMillis(at), toMillis(s.now()), userID,
		)
	}
	return s.execOne(ctx, `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1, last_failed_login_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(s.now()), userID,
	)
}

// RecordLoginSuccess clears the failure streak and stamps the login time.
func (s *Store) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	return s.execOne(ctx, `
		UPDATE users SET failed_login_attempts = 0, last_failed_login_at = NULL, last_login_at = ?, updated_at = ? WHERE id = ?`,
		toMillis(at), toMillis(s.now()), userID,
	)
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: update user: %v", authkit.ErrBackendUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update user: %v", authkit.ErrBackendUnavailable, err)
	}
	if affected == 0 {
		return authkit.ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
