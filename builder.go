package authkit

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/avdeyev/authkit/internal/audit"
	"github.com/avdeyev/authkit/internal/codes"
	"github.com/avdeyev/authkit/internal/limiters"
	"github.com/avdeyev/authkit/jwt"
	"github.com/avdeyev/authkit/mail"
	"github.com/avdeyev/authkit/password"
	"github.com/avdeyev/authkit/session"
)

// Builder assembles an [Engine]. Configure it with the With* methods and
// call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	mailer    mail.Sender
	auditSink AuditSink

	// VerifyBaseURL, when set, turns verification emails into links of the
	// form VerifyBaseURL?token=...&email=... instead of bare tokens.
	verifyBaseURL string

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the session registry and the one-time
// code store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the credential store. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithMailer sets the outbound mail sender. Optional; without one, reset
// codes and verification tokens are returned in results for development
// setups instead of being delivered.
func (b *Builder) WithMailer(sender mail.Sender) *Builder {
	b.mailer = sender
	return b
}

// WithVerifyBaseURL sets the base URL embedded in verification emails.
func (b *Builder) WithVerifyBaseURL(url string) *Builder {
	b.verifyBaseURL = url
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	cfg.withDefaults()

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{Cost: cfg.Password.Cost})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		Secret:    cloneBytes(cfg.JWT.Secret),
		AccessTTL: cfg.JWT.AccessTTL,
		Issuer:    cfg.JWT.Issuer,
		Leeway:    cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:        cfg,
		users:         b.users,
		hasher:        hasher,
		tokens:        tokens,
		mailer:        b.mailer,
		verifyBaseURL: b.verifyBaseURL,
		sessions:      session.NewStore(b.redis, cfg.Session.RedisPrefix),
		codes:         codes.NewStore(b.redis, cfg.Session.RedisPrefix),
		lockout: limiters.LockoutPolicy{
			MaxAttempts: cfg.Lockout.MaxAttempts,
			Window:      cfg.Lockout.Window,
		},
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}
	engine.now = time.Now

	b.built = true

	return engine, nil
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
