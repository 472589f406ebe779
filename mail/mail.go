// Package mail delivers the transactional messages the engine sends:
// password reset codes and email verification links. The engine depends
// only on the Sender interface; when no sender is configured it falls
// back to returning codes in API responses for development setups.
package mail

import (
	"context"
	"fmt"
	"time"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages. Implementations must be safe for concurrent
// use; the engine sends from request goroutines.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// PasswordResetMessage builds the reset-code email.
func PasswordResetMessage(to, code string, ttl time.Duration) Message {
	minutes := int(ttl.Minutes())
	return Message{
		To:      to,
		Subject: "Your password reset code",
		Text: fmt.Sprintf(
			"Use this code to reset your password: %s\n\nThe code expires in %d minutes. If you did not request a reset, you can ignore this message.\n",
			code, minutes,
		),
		HTML: fmt.Sprintf(
			`<p>Use this code to reset your password:</p><p style="font-size:1.5em;letter-spacing:0.2em"><strong>%s</strong></p><p>The code expires in %d minutes. If you did not request a reset, you can ignore this message.</p>`,
			code, minutes,
		),
	}
}

// VerificationMessage builds the email-verification message. verifyURL
// already carries the token and email as query parameters.
func VerificationMessage(to, verifyURL string, ttl time.Duration) Message {
	hours := int(ttl.Hours())
	return Message{
		To:      to,
		Subject: "Verify your email address",
		Text: fmt.Sprintf(
			"Confirm your email address by opening this link:\n\n%s\n\nThe link expires in %d hours.\n",
			verifyURL, hours,
		),
		HTML: fmt.Sprintf(
			`<p>Confirm your email address:</p><p><a href="%s">Verify email</a></p><p>The link expires in %d hours.</p>`,
			verifyURL, hours,
		),
	}
}
