package authkit

import (
	"context"
	"errors"

	"github.com/avdeyev/authkit/password"
)

// RegisterInput carries new-account data. Email is normalized before
// storage; Name is optional.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates a new account.
//
// When email verification is enabled, a verification token is issued and
// delivered (or returned in DevVerificationToken if no mailer is
// configured). When AutoLogin is set and no verification gate applies, a
// token pair is issued immediately.
//
// Duplicate addresses return [ErrDuplicateEmail]. Registration reveals
// address existence; the reset flow is the one that stays silent.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	email := normalizeEmail(input.Email)
	if err := validateEmail(email); err != nil {
		return RegisterResult{}, err
	}
	if err := password.ValidatePolicy(input.Password); err != nil {
		return RegisterResult{}, errors.Join(ErrWeakPassword, err)
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	user, err := e.users.CreateUser(ctx, CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		Name:         normalizeName(input.Name),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.emitFailure(ctx, "register.duplicate", "", email, nil)
			return RegisterResult{}, ErrDuplicateEmail
		}
		return RegisterResult{}, err
	}

	result := RegisterResult{UserID: user.ID}

	if e.config.EmailVerification.Enabled {
		result.VerificationRequired = true

		devToken, err := e.issueVerification(ctx, user)
		if err != nil {
			// The account exists; the caller can re-request verification.
			e.emitFailure(ctx, "register.verification_issue", user.ID, user.Email, err)
			return result, err
		}
		result.DevVerificationToken = devToken
	}

	if e.config.Account.AutoLogin && !result.VerificationRequired {
		pair, err := e.issueSession(ctx, user)
		if err != nil {
			return result, err
		}
		result.Session = &pair
	}

	e.emitSuccess(ctx, "register.success", user, "")

	return result, nil
}
