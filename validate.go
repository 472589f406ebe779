package authkit

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	maxEmailLen = 254
	maxNameLen  = 255
)

// normalizeEmail lowercases and trims an address. Storage treats emails
// case-insensitively as well; normalizing here keeps audit records and
// token claims consistent with what is stored.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail checks shape, not deliverability.
func validateEmail(email string) error {
	if email == "" || len(email) > maxEmailLen {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}

// normalizeName trims and truncates a display name.
func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}
