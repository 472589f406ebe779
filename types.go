package authkit

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/avdeyev/authkit/internal/audit"
)

// User is the full account record exchanged with a [UserStore]. It carries
// the credential hash and the login bookkeeping columns the lockout policy
// evaluates. Zero time values mean "never".
type User struct {
	ID                  string
	Email               string
	Name                string
	PasswordHash        string
	EmailVerified       bool
	FailedLoginAttempts int
	LastFailedLoginAt   time.Time
	LastLoginAt         time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Profile is the public projection of a [User], safe to hand to clients.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// Profile returns the caller-visible projection of the user.
func (u User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
	}
}

// CreateUserInput is the input for [UserStore.CreateUser]. Email is already
// normalized (lowercase, trimmed) and PasswordHash is already computed when
// the engine calls the store.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	Name         string
}

// UserStore is the persistence interface the engine requires for user
// records. The bundled SQLite implementation lives in the userstore
// subpackage; callers may supply their own.
//
// Error contract: CreateUser returns [ErrDuplicateEmail] on a taken email
// (case-insensitive); lookups return [ErrUserNotFound] when no row matches.
// Backend faults wrap [ErrBackendUnavailable].
type UserStore interface {
	CreateUser(ctx context.Context, input CreateUserInput) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
	SetEmailVerified(ctx context.Context, userID string) error

	// RecordLoginFailure increments failed_login_attempts and stamps
	// last_failed_login_at; with restart set the counter restarts at one,
	// which the engine requests when the previous streak has gone stale.
	// RecordLoginSuccess resets the counter and stamps last_login_at.
	RecordLoginFailure(ctx context.Context, userID string, at time.Time, restart bool) error
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error
}

// TokenPair is the result of a successful login, auto-login, or refresh.
// RefreshToken is the only copy of the raw value; the server keeps a hash.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             Profile
}

// Claims is the validated content of an access token.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// RegisterResult is returned by [Engine.Register].
type RegisterResult struct {
	UserID               string
	VerificationRequired bool

	// DevVerificationToken carries the raw verification token when no mail
	// sender is configured, so local setups can complete the flow without
	// an outbound channel. Empty in production.
	DevVerificationToken string

	// Session is set when verification is not required and auto-login is
	// enabled.
	Session *TokenPair
}

// ResetRequest is returned by [Engine.RequestPasswordReset]. It is
// deliberately identical whether or not the email exists.
type ResetRequest struct {
	// DevCode carries the raw reset code when no mail sender is configured.
	// Empty in production and always empty for unknown emails.
	DevCode string
	CodeTTL time.Duration
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
