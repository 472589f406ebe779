package authkit

import (
	"context"
	"errors"

	akinternal "github.com/avdeyev/authkit/internal"
	"github.com/avdeyev/authkit/internal/codes"
	"github.com/avdeyev/authkit/mail"
	"github.com/avdeyev/authkit/password"
)

// RequestPasswordReset issues a one-time reset code for the account, if it
// exists. The return value is identical whether or not the address is
// registered; only delivery differs. Re-requesting supersedes any code
// issued earlier.
//
// With no mailer configured, the raw code is returned in DevCode so
// development setups can complete the flow without SMTP.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (ResetRequest, error) {
	email = normalizeEmail(email)
	result := ResetRequest{CodeTTL: e.config.PasswordReset.CodeTTL}

	if err := validateEmail(email); err != nil {
		// Same acknowledgement as for an unknown address.
		return result, nil
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitFailure(ctx, "password_reset.unknown_email", "", email, nil)
			return result, nil
		}
		return ResetRequest{}, err
	}

	code, err := akinternal.NewOTP(e.config.PasswordReset.CodeDigits)
	if err != nil {
		return ResetRequest{}, err
	}

	record := &codes.Record{
		CodeHash:  akinternal.HashBytes([]byte(code)),
		ExpiresAt: e.now().Add(e.config.PasswordReset.CodeTTL).Unix(),
	}
	if err := e.codes.Issue(ctx, codes.PurposePasswordReset, user.ID, record, e.config.PasswordReset.CodeTTL); err != nil {
		return ResetRequest{}, errors.Join(ErrBackendUnavailable, err)
	}

	if e.mailer != nil {
		msg := mail.PasswordResetMessage(user.Email, code, e.config.PasswordReset.CodeTTL)
		if err := e.mailer.Send(ctx, msg); err != nil {
			e.emitFailure(ctx, "password_reset.mail", user.ID, user.Email, err)
			return ResetRequest{}, errors.Join(ErrBackendUnavailable, err)
		}
	} else {
		result.DevCode = code
	}

	e.emitSuccess(ctx, "password_reset.requested", user, "")

	return result, nil
}

// ConfirmPasswordReset consumes a reset code and installs the new
// password. On success every refresh session for the user is revoked, so
// a stolen refresh token does not outlive the reset.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)

	if err := password.ValidatePolicy(newPassword); err != nil {
		return errors.Join(ErrWeakPassword, err)
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrCodeInvalid
		}
		return err
	}

	err = e.codes.Consume(ctx, codes.PurposePasswordReset, user.ID,
		akinternal.HashBytes([]byte(code)), e.config.PasswordReset.MaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, codes.ErrCodeNotFound),
			errors.Is(err, codes.ErrCodeMismatch),
			errors.Is(err, codes.ErrCodeAttemptsExceeded):
			e.emitFailure(ctx, "password_reset.bad_code", user.ID, user.Email, nil)
			return ErrCodeInvalid
		default:
			return errors.Join(ErrBackendUnavailable, err)
		}
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
		return err
	}

	// The code is burned, the password is live: revocation failure must
	// surface so the caller can retry rather than believe sessions died.
	if err := e.sessions.DeleteAllForUser(ctx, user.ID); err != nil {
		e.emitFailure(ctx, "password_reset.revoke", user.ID, user.Email, err)
		return errors.Join(ErrBackendUnavailable, err)
	}

	e.emitSuccess(ctx, "password_reset.confirmed", user, "")

	return nil
}
