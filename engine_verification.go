package authkit

import (
	"context"
	"errors"
	"net/url"

	akinternal "github.com/avdeyev/authkit/internal"
	"github.com/avdeyev/authkit/internal/codes"
	"github.com/avdeyev/authkit/mail"
)

// RequestEmailVerification issues (or reissues) a verification token for
// the account. Reissuing supersedes the previous token. Returns the raw
// token when no mailer is configured, empty otherwise. Unknown addresses
// get the same empty acknowledgement as a delivered one, so this path
// reveals nothing about which accounts exist.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) (string, error) {
	if !e.config.EmailVerification.Enabled {
		return "", ErrVerificationDisabled
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitFailure(ctx, "verification.unknown_email", "", email, nil)
			return "", nil
		}
		return "", err
	}
	if user.EmailVerified {
		return "", ErrEmailAlreadyVerified
	}

	return e.issueVerification(ctx, user)
}

// VerifyEmail consumes a verification token and marks the account
// verified. Wrong, superseded, and expired tokens return [ErrCodeInvalid].
func (e *Engine) VerifyEmail(ctx context.Context, email, token string) error {
	if !e.config.EmailVerification.Enabled {
		return ErrVerificationDisabled
	}

	email = normalizeEmail(email)

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrCodeInvalid
		}
		return err
	}
	if user.EmailVerified {
		return ErrEmailAlreadyVerified
	}

	err = e.codes.Consume(ctx, codes.PurposeEmailVerification, user.ID,
		akinternal.HashBytes([]byte(token)), e.config.EmailVerification.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, codes.ErrCodeNotFound),
			errors.Is(err, codes.ErrCodeMismatch),
			errors.Is(err, codes.ErrCodeAttemptsExceeded):
			e.emitFailure(ctx, "verification.bad_token", user.ID, user.Email, nil)
			return ErrCodeInvalid
		default:
			return errors.Join(ErrBackendUnavailable, err)
		}
	}

	if err := e.users.SetEmailVerified(ctx, user.ID); err != nil {
		return err
	}

	e.emitSuccess(ctx, "verification.confirmed", user, "")

	return nil
}

// issueVerification creates and delivers a fresh verification token,
// returning the raw token when delivery is not configured.
func (e *Engine) issueVerification(ctx context.Context, user User) (string, error) {
	token, err := akinternal.NewOpaqueToken()
	if err != nil {
		return "", err
	}

	ttl := e.config.EmailVerification.TokenTTL
	record := &codes.Record{
		CodeHash:  akinternal.HashBytes([]byte(token)),
		ExpiresAt: e.now().Add(ttl).Unix(),
	}
	if err := e.codes.Issue(ctx, codes.PurposeEmailVerification, user.ID, record, ttl); err != nil {
		return "", errors.Join(ErrBackendUnavailable, err)
	}

	if e.mailer == nil {
		e.emitSuccess(ctx, "verification.requested", user, "")
		return token, nil
	}

	msg := mail.VerificationMessage(user.Email, e.verifyURL(user.Email, token), ttl)
	if err := e.mailer.Send(ctx, msg); err != nil {
		e.emitFailure(ctx, "verification.mail", user.ID, user.Email, err)
		return "", errors.Join(ErrBackendUnavailable, err)
	}

	e.emitSuccess(ctx, "verification.requested", user, "")

	return "", nil
}

func (e *Engine) verifyURL(email, token string) string {
	if e.verifyBaseURL == "" {
		return token
	}
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return e.verifyBaseURL + "?" + q.Encode()
}
