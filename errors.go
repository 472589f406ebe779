package authkit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// Callers must never be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountLocked is returned while the login lockout window is active.
	// The concrete error is a [*LockoutError] carrying a retry-after hint.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrDuplicateEmail is returned by [UserStore.CreateUser] and Register
	// when the email is already taken (case-insensitive).
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrUserNotFound is returned by [UserStore] lookups. It never crosses
	// the engine boundary on credential paths.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidEmail is returned when an email fails format validation.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrWeakPassword is wrapped by password policy violations.
	ErrWeakPassword = errors.New("password policy violation")
	// ErrEmailNotVerified is returned by Login when verification is required
	// and the account has not confirmed its email yet.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrEmailAlreadyVerified is returned when requesting a verification
	// code for an account that is already verified.
	ErrEmailAlreadyVerified = errors.New("email already verified")
	// ErrTokenInvalid is returned for malformed or badly signed access tokens.
	ErrTokenInvalid = errors.New("invalid access token")
	// ErrTokenExpired is returned for structurally valid but expired access tokens.
	ErrTokenExpired = errors.New("access token expired")
	// ErrRefreshInvalid covers unknown, expired, and already-rotated refresh
	// tokens.
	ErrRefreshInvalid = errors.New("invalid or expired refresh token")
	// ErrRefreshReuse is returned when a presented refresh token hash no
	// longer matches the stored one, i.e. the token was already rotated.
	// It wraps ErrRefreshInvalid so callers matching the generic failure
	// also catch reuse.
	ErrRefreshReuse = fmt.Errorf("%w: reuse detected", ErrRefreshInvalid)
	// ErrCodeInvalid covers unknown, superseded, expired, and wrong one-time
	// codes. The cases are deliberately indistinguishable to the caller.
	ErrCodeInvalid = errors.New("invalid code")
	// ErrVerificationDisabled is returned by verification operations when
	// the feature is switched off in [Config].
	ErrVerificationDisabled = errors.New("email verification disabled")
	// ErrBackendUnavailable wraps store and mail transport faults. Detail is
	// audited, never surfaced.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// LockoutError reports an active login lockout together with the time the
// caller should wait before retrying. It satisfies
// errors.Is(err, ErrAccountLocked).
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account temporarily locked, retry in %s", e.RetryAfter.Round(time.Second))
}

// Is reports whether target is [ErrAccountLocked].
func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}
