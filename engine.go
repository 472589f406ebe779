package authkit

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/avdeyev/authkit/internal/audit"
	"github.com/avdeyev/authkit/internal/codes"
	"github.com/avdeyev/authkit/internal/limiters"
	"github.com/avdeyev/authkit/jwt"
	"github.com/avdeyev/authkit/mail"
	"github.com/avdeyev/authkit/password"
	"github.com/avdeyev/authkit/session"

	akinternal "github.com/avdeyev/authkit/internal"
)

// Engine orchestrates every credential and session operation. Construct it
// through [Builder]; the zero value is unusable. All methods are safe for
// concurrent use.
type Engine struct {
	config Config

	users    UserStore
	sessions *session.Store
	codes    *codes.Store
	tokens   *jwt.Manager
	hasher   *password.Hasher
	lockout  limiters.LockoutPolicy
	mailer   mail.Sender
	audit    *internalaudit.Dispatcher

	verifyBaseURL string

	now func() time.Time
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// ValidateAccess parses and validates an access token, returning its
// identity claims. Expired tokens return [ErrTokenExpired]; anything else
// wrong with the token returns [ErrTokenInvalid].
func (e *Engine) ValidateAccess(tokenStr string) (Claims, error) {
	parsed, err := e.tokens.ParseAccess(tokenStr)
	if err != nil {
		if jwt.IsExpired(err) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	return Claims{
		UserID:    parsed.Subject,
		Email:     parsed.Email,
		ExpiresAt: parsed.ExpiresAt.Time,
	}, nil
}

// Ping reports backend availability: the session registry's Redis on one
// round trip. The user store is exercised lazily by the flows themselves.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.sessions.Ping(ctx)
	if err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}
	return nil
}

// issueSession creates a fresh refresh session for the user and mints the
// matching access token.
func (e *Engine) issueSession(ctx context.Context, user User) (TokenPair, error) {
	sid, err := akinternal.NewSessionID()
	if err != nil {
		return TokenPair{}, err
	}
	secret, err := akinternal.NewRefreshSecret()
	if err != nil {
		return TokenPair{}, err
	}

	now := e.now()
	expiresAt := now.Add(e.config.Session.RefreshTTL)

	sess := &session.Session{
		SessionID:   sid.String(),
		UserID:      user.ID,
		RefreshHash: akinternal.HashRefreshSecret(secret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   expiresAt.Unix(),
	}
	if err := e.sessions.Save(ctx, sess, e.config.Session.RefreshTTL); err != nil {
		return TokenPair{}, errors.Join(ErrBackendUnavailable, err)
	}

	refreshToken, err := akinternal.EncodeRefreshToken(sess.SessionID, secret)
	if err != nil {
		return TokenPair{}, err
	}

	accessToken, accessExpiresAt, err := e.tokens.CreateAccess(user.ID, user.Email)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: expiresAt,
		User:             user.Profile(),
	}, nil
}

func sessionExpiry(sess *session.Session) time.Time {
	return time.Unix(sess.ExpiresAt, 0).UTC()
}

func auditEvent(eventType, userID, email, sessionID string) internalaudit.Event {
	return internalaudit.Event{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		SessionID: sessionID,
		Success:   true,
	}
}

func (e *Engine) emit(ctx context.Context, event internalaudit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) emitSuccess(ctx context.Context, eventType string, user User, sessionID string) {
	e.emit(ctx, internalaudit.Event{
		EventType: eventType,
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: sessionID,
		Success:   true,
	})
}

func (e *Engine) emitFailure(ctx context.Context, eventType, userID, email string, cause error) {
	event := internalaudit.Event{
		EventType: eventType,
		UserID:    userID,
		Email:     email,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	e.emit(ctx, event)
}
