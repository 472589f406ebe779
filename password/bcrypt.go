// Package password hashes credentials with bcrypt and enforces the
// password acceptance policy.
package password

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minCost     = 10
	maxCost     = 14
	defaultCost = 12

	minPasswordLen = 8
	maxPasswordLen = 128
)

// ErrWeakPassword reports a password rejected by ValidatePolicy. The
// wrapped message names the failed rule.
var ErrWeakPassword = errors.New("password does not meet policy")

// Config holds the hashing cost. Instances are configured during
// initialization and then treated as immutable.
type Config struct {
	Cost int
}

// Hasher hashes and verifies passwords. Safe for concurrent use.
type Hasher struct {
	cost int
}

func NewHasher(cfg Config) (*Hasher, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = defaultCost
	}
	if cost < minCost || cost > maxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", minCost, maxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Hash derives a bcrypt hash at the configured cost.
//
// Password bytes are used exactly as provided (no Unicode normalization).
func (h *Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. A mismatch is not an
// error; only malformed hashes or internal failures return one.
func (h *Hasher) Verify(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NeedsUpgrade reports whether a stored hash was produced at a lower cost
// than currently configured and should be rehashed on next login.
func (h *Hasher) NeedsUpgrade(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return cost < h.cost
}

// DummyVerify burns a bcrypt comparison against a fixed hash. Called on
// the unknown-user path so login timing does not reveal whether an email
// is registered.
func (h *Hasher) DummyVerify(password string) {
	// cost 12 hash of an unguessable throwaway value
	const dummy = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"
	_ = bcrypt.CompareHashAndPassword([]byte(dummy), []byte(password))
}

// ValidatePolicy checks the acceptance rules: 8 to 128 bytes, at least
// one letter, at least one digit.
func ValidatePolicy(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return fmt.Errorf("%w: must be at most %d characters", ErrWeakPassword, maxPasswordLen)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter {
		return fmt.Errorf("%w: must contain a letter", ErrWeakPassword)
	}
	if !hasDigit {
		return fmt.Errorf("%w: must contain a digit", ErrWeakPassword)
	}

	return nil
}
