package authkit

import (
	"errors"
	"time"
)

// Config is the immutable engine configuration. Construct it once, pass it
// to [Builder.WithConfig], and treat it as read-only afterwards. Zero values
// are filled with hardened defaults by Build; Validate rejects combinations
// that would weaken the token or lockout guarantees.
type Config struct {
	JWT               JWTConfig
	Session           SessionConfig
	Password          PasswordConfig
	Lockout           LockoutConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Account           AccountConfig
	Audit             AuditConfig
}

// JWTConfig controls access token issuance. Secret is the HS256 signing key
// and must be provisioned out-of-band; it is never embedded in a token.
type JWTConfig struct {
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
	Leeway    time.Duration
}

// SessionConfig controls the Redis-backed refresh session registry.
type SessionConfig struct {
	RedisPrefix string
	RefreshTTL  time.Duration
}

// PasswordConfig controls bcrypt hashing. Cost must stay in the 10–14 range;
// UpgradeOnLogin rehashes stored credentials transparently after a cost bump.
type PasswordConfig struct {
	Cost           int
	UpgradeOnLogin bool
}

// LockoutConfig controls the login lockout policy: after MaxAttempts
// consecutive failures, logins are denied until Window has elapsed since the
// last failure.
type LockoutConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// PasswordResetConfig controls the one-time reset code flow.
type PasswordResetConfig struct {
	CodeTTL     time.Duration
	CodeDigits  int
	MaxAttempts int
}

// EmailVerificationConfig controls the optional email verification flow.
// When RequireForLogin is set, unverified accounts cannot log in or refresh.
type EmailVerificationConfig struct {
	Enabled         bool
	RequireForLogin bool
	TokenTTL        time.Duration
	MaxAttempts     int
}

// AccountConfig controls registration behavior. AutoLogin issues a token
// pair directly from Register when no verification step is pending.
type AccountConfig struct {
	AutoLogin bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

const (
	minJWTSecretBytes = 32
	minBcryptCost     = 10
	maxBcryptCost     = 14
)

// DefaultConfig returns the hardened defaults: 15 minute access tokens,
// 30 day refresh sessions, bcrypt cost 12, lockout after 5 failures for
// 15 minutes, 6-digit reset codes valid for 1 hour, verification tokens
// valid for 24 hours.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: 15 * time.Minute,
			Leeway:    30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "ak",
			RefreshTTL:  30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Cost:           12,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			CodeTTL:     time.Hour,
			CodeDigits:  6,
			MaxAttempts: 5,
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL:    24 * time.Hour,
			MaxAttempts: 5,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func (c *Config) withDefaults() {
	def := DefaultConfig()
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = def.JWT.AccessTTL
	}
	if c.JWT.Leeway == 0 {
		c.JWT.Leeway = def.JWT.Leeway
	}
	if c.Session.RedisPrefix == "" {
		c.Session.RedisPrefix = def.Session.RedisPrefix
	}
	if c.Session.RefreshTTL == 0 {
		c.Session.RefreshTTL = def.Session.RefreshTTL
	}
	if c.Password.Cost == 0 {
		c.Password.Cost = def.Password.Cost
	}
	if c.Lockout.MaxAttempts == 0 {
		c.Lockout.MaxAttempts = def.Lockout.MaxAttempts
	}
	if c.Lockout.Window == 0 {
		c.Lockout.Window = def.Lockout.Window
	}
	if c.PasswordReset.CodeTTL == 0 {
		c.PasswordReset.CodeTTL = def.PasswordReset.CodeTTL
	}
	if c.PasswordReset.CodeDigits == 0 {
		c.PasswordReset.CodeDigits = def.PasswordReset.CodeDigits
	}
	if c.PasswordReset.MaxAttempts == 0 {
		c.PasswordReset.MaxAttempts = def.PasswordReset.MaxAttempts
	}
	if c.EmailVerification.TokenTTL == 0 {
		c.EmailVerification.TokenTTL = def.EmailVerification.TokenTTL
	}
	if c.EmailVerification.MaxAttempts == 0 {
		c.EmailVerification.MaxAttempts = def.EmailVerification.MaxAttempts
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = def.Audit.BufferSize
	}
}

// Validate rejects configurations that would weaken the engine's guarantees.
func (c Config) Validate() error {
	if len(c.JWT.Secret) < minJWTSecretBytes {
		return errors.New("config: JWT secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.AccessTTL > time.Hour {
		return errors.New("config: access TTL must be within (0, 1h]")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("config: leeway must be within [0, 2m]")
	}
	if c.Session.RefreshTTL < time.Minute {
		return errors.New("config: refresh TTL must be at least 1 minute")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("config: refresh TTL must exceed access TTL")
	}
	if c.Password.Cost < minBcryptCost || c.Password.Cost > maxBcryptCost {
		return errors.New("config: bcrypt cost must be within [10, 14]")
	}
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("config: lockout max attempts must be at least 1")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("config: lockout window must be positive")
	}
	if c.PasswordReset.CodeTTL <= 0 || c.PasswordReset.CodeTTL > 24*time.Hour {
		return errors.New("config: reset code TTL must be within (0, 24h]")
	}
	if c.PasswordReset.CodeDigits < 6 || c.PasswordReset.CodeDigits > 10 {
		return errors.New("config: reset code digits must be within [6, 10]")
	}
	if c.PasswordReset.MaxAttempts < 1 {
		return errors.New("config: reset max attempts must be at least 1")
	}
	if c.EmailVerification.Enabled {
		if c.EmailVerification.TokenTTL <= 0 || c.EmailVerification.TokenTTL > 72*time.Hour {
			return errors.New("config: verification token TTL must be within (0, 72h]")
		}
		if c.EmailVerification.MaxAttempts < 1 {
			return errors.New("config: verification max attempts must be at least 1")
		}
	}
	if c.EmailVerification.RequireForLogin && !c.EmailVerification.Enabled {
		return errors.New("config: RequireForLogin needs email verification enabled")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = append([]byte(nil), cfg.JWT.Secret...)
	return out
}
