// Command authd serves the credential and session API over HTTP.
//
// All configuration comes from AUTHD_* environment variables; the only
// required one is AUTHD_JWT_SECRET.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/avdeyev/authkit"
	"github.com/avdeyev/authkit/httpapi"
	"github.com/avdeyev/authkit/mail"
	"github.com/avdeyev/authkit/userstore"
)

type config struct {
	Addr      string `env:"AUTHD_ADDR" envDefault:":8080"`
	DBPath    string `env:"AUTHD_DB_PATH" envDefault:"authd.db"`
	RedisAddr string `env:"AUTHD_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int    `env:"AUTHD_REDIS_DB" envDefault:"0"`

	JWTSecret string        `env:"AUTHD_JWT_SECRET,required"`
	JWTIssuer string        `env:"AUTHD_JWT_ISSUER" envDefault:"authd"`
	AccessTTL time.Duration `env:"AUTHD_ACCESS_TTL" envDefault:"15m"`

	RefreshTTL time.Duration `env:"AUTHD_REFRESH_TTL" envDefault:"720h"`

	BcryptCost int `env:"AUTHD_BCRYPT_COST" envDefault:"12"`

	LockoutMaxAttempts int           `env:"AUTHD_LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	LockoutWindow      time.Duration `env:"AUTHD_LOCKOUT_WINDOW" envDefault:"15m"`

	ResetCodeTTL time.Duration `env:"AUTHD_RESET_CODE_TTL" envDefault:"1h"`

	VerificationEnabled  bool          `env:"AUTHD_VERIFICATION_ENABLED" envDefault:"false"`
	VerificationRequired bool          `env:"AUTHD_VERIFICATION_REQUIRED" envDefault:"false"`
	VerificationTTL      time.Duration `env:"AUTHD_VERIFICATION_TTL" envDefault:"24h"`
	VerifyBaseURL        string        `env:"AUTHD_VERIFY_BASE_URL"`

	AutoLogin bool `env:"AUTHD_AUTO_LOGIN" envDefault:"true"`

	SMTPHost     string `env:"AUTHD_SMTP_HOST"`
	SMTPPort     int    `env:"AUTHD_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"AUTHD_SMTP_USERNAME"`
	SMTPPassword string `env:"AUTHD_SMTP_PASSWORD"`
	SMTPFrom     string `env:"AUTHD_SMTP_FROM"`

	CookieSecure bool `env:"AUTHD_COOKIE_SECURE" envDefault:"true"`

	AuditLog bool `env:"AUTHD_AUDIT_LOG" envDefault:"true"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("authd: %v", err)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	users, err := userstore.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer users.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()

	engineConfig := authkit.DefaultConfig()
	engineConfig.JWT.Secret = []byte(cfg.JWTSecret)
	engineConfig.JWT.Issuer = cfg.JWTIssuer
	engineConfig.JWT.AccessTTL = cfg.AccessTTL
	engineConfig.Session.RefreshTTL = cfg.RefreshTTL
	engineConfig.Password.Cost = cfg.BcryptCost
	engineConfig.Lockout.MaxAttempts = cfg.LockoutMaxAttempts
	engineConfig.Lockout.Window = cfg.LockoutWindow
	engineConfig.PasswordReset.CodeTTL = cfg.ResetCodeTTL
	engineConfig.EmailVerification.Enabled = cfg.VerificationEnabled
	engineConfig.EmailVerification.RequireForLogin = cfg.VerificationRequired
	engineConfig.EmailVerification.TokenTTL = cfg.VerificationTTL
	engineConfig.Account.AutoLogin = cfg.AutoLogin
	engineConfig.Audit.Enabled = cfg.AuditLog

	builder := authkit.New().
		WithConfig(engineConfig).
		WithRedis(redisClient).
		WithUserStore(users).
		WithVerifyBaseURL(cfg.VerifyBaseURL)

	if cfg.AuditLog {
		builder = builder.WithAuditSink(authkit.NewJSONWriterSink(os.Stdout))
	}

	if cfg.SMTPHost != "" {
		sender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			return fmt.Errorf("configure smtp: %w", err)
		}
		builder = builder.WithMailer(sender)
	} else {
		log.Printf("authd: no SMTP configured, codes will be returned in responses")
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	api, err := httpapi.NewServer(httpapi.Config{
		Engine: engine,
		Cookie: httpapi.CookieConfig{Secure: cfg.CookieSecure},
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("authd: listening on %s", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	return nil
}
