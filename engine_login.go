package authkit

import (
	"context"
	"errors"
)

// Login verifies credentials and issues a token pair.
//
// Failure modes, in evaluation order: lockout, bad credentials, email not
// verified. Unknown email and wrong password both return
// [ErrInvalidCredentials], and the unknown-email path still burns a hash
// comparison so the two are not distinguishable by timing.
func (e *Engine) Login(ctx context.Context, email, pass string) (TokenPair, error) {
	email = normalizeEmail(email)

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.hasher.DummyVerify(pass)
			e.emitFailure(ctx, "login.unknown_email", "", email, nil)
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	now := e.now()

	if locked, retryAfter := e.lockout.Check(user.FailedLoginAttempts, user.LastFailedLoginAt, now); locked {
		e.emitFailure(ctx, "login.lockout", user.ID, user.Email, ErrAccountLocked)
		return TokenPair{}, &LockoutError{RetryAfter: retryAfter}
	}

	ok, err := e.hasher.Verify(user.PasswordHash, pass)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		restart := e.lockout.Stale(user.LastFailedLoginAt, now)
		if recErr := e.users.RecordLoginFailure(ctx, user.ID, now, restart); recErr != nil {
			e.emitFailure(ctx, "login.failure_record", user.ID, user.Email, recErr)
		}
		e.emitFailure(ctx, "login.bad_password", user.ID, user.Email, nil)
		return TokenPair{}, ErrInvalidCredentials
	}

	// Password checks out before the verification gate; an attacker must
	// hold the credential to learn the verification state.
	if e.config.EmailVerification.Enabled && e.config.EmailVerification.RequireForLogin && !user.EmailVerified {
		e.emitFailure(ctx, "login.unverified", user.ID, user.Email, ErrEmailNotVerified)
		return TokenPair{}, ErrEmailNotVerified
	}

	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, hashErr := e.hasher.Hash(pass); hashErr == nil {
			if upErr := e.users.UpdatePasswordHash(ctx, user.ID, newHash); upErr != nil {
				e.emitFailure(ctx, "login.hash_upgrade", user.ID, user.Email, upErr)
			}
		}
	}

	if err := e.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		e.emitFailure(ctx, "login.success_record", user.ID, user.Email, err)
	}

	pair, err := e.issueSession(ctx, user)
	if err != nil {
		return TokenPair{}, err
	}

	e.emitSuccess(ctx, "login.success", user, "")

	return pair, nil
}
