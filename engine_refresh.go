package authkit

import (
	"context"
	"errors"

	akinternal "github.com/avdeyev/authkit/internal"
	"github.com/avdeyev/authkit/session"
)

// Refresh rotates a refresh token and mints a new token pair.
//
// Rotation is single-use: the presented token is atomically replaced, and
// presenting it again returns [ErrRefreshReuse] after the whole session
// lineage has been revoked. Unknown and expired tokens return
// [ErrRefreshInvalid].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	sessionID, secret, err := akinternal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, ErrRefreshInvalid
	}

	nextSecret, err := akinternal.NewRefreshSecret()
	if err != nil {
		return TokenPair{}, err
	}

	sess, err := e.sessions.Rotate(
		ctx,
		sessionID,
		akinternal.HashRefreshSecret(secret),
		akinternal.HashRefreshSecret(nextSecret),
	)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshHashMismatch):
			e.emitFailure(ctx, "session.reuse_detected", "", "", err)
			return TokenPair{}, ErrRefreshReuse
		case errors.Is(err, session.ErrSessionNotFound),
			errors.Is(err, session.ErrSessionExpired),
			errors.Is(err, session.ErrSessionCorrupt):
			return TokenPair{}, ErrRefreshInvalid
		default:
			return TokenPair{}, errors.Join(ErrBackendUnavailable, err)
		}
	}

	user, err := e.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Account deleted out from under the session; kill it.
			_ = e.sessions.Delete(ctx, sessionID)
			return TokenPair{}, ErrRefreshInvalid
		}
		return TokenPair{}, err
	}

	if e.config.EmailVerification.Enabled && e.config.EmailVerification.RequireForLogin && !user.EmailVerified {
		_ = e.sessions.Delete(ctx, sessionID)
		e.emitFailure(ctx, "session.unverified", user.ID, user.Email, ErrEmailNotVerified)
		return TokenPair{}, ErrEmailNotVerified
	}

	newRefreshToken, err := akinternal.EncodeRefreshToken(sessionID, nextSecret)
	if err != nil {
		return TokenPair{}, err
	}

	accessToken, accessExpiresAt, err := e.tokens.CreateAccess(user.ID, user.Email)
	if err != nil {
		return TokenPair{}, err
	}

	e.emitSuccess(ctx, "session.refreshed", user, sessionID)

	return TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     newRefreshToken,
		RefreshExpiresAt: sessionExpiry(sess),
		User:             user.Profile(),
	}, nil
}

// Logout revokes the session behind a refresh token. Unknown or malformed
// tokens are not an error; logout is idempotent.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	sessionID, _, err := akinternal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return nil
	}

	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}

	e.emit(ctx, auditEvent("session.logout", "", "", sessionID))

	return nil
}

// LogoutAll revokes every session for the user.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return errors.Join(ErrBackendUnavailable, err)
	}

	e.emit(ctx, auditEvent("session.logout_all", userID, "", ""))

	return nil
}
