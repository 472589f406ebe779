// Package httpapi exposes the engine over HTTP. It translates JSON
// requests into Engine calls and engine errors into status codes; it holds
// no authentication logic of its own.
package httpapi

import (
	"net/http"
	"time"

	"github.com/avdeyev/authkit"
)

// CookieConfig controls how the refresh token travels in a cookie. The
// cookie is always HttpOnly; Secure should only be disabled in local
// development.
type CookieConfig struct {
	Name     string
	Path     string
	Secure   bool
	SameSite http.SameSite
}

// Config wires a Server.
type Config struct {
	Engine *authkit.Engine
	Cookie CookieConfig
}

// Server is the HTTP front for an [authkit.Engine].
type Server struct {
	engine *authkit.Engine
	cookie CookieConfig
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errNoEngine
	}

	cookie := cfg.Cookie
	if cookie.Name == "" {
		cookie.Name = "refresh_token"
	}
	if cookie.Path == "" {
		cookie.Path = "/auth"
	}
	if cookie.SameSite == 0 {
		cookie.SameSite = http.SameSiteStrictMode
	}

	return &Server{engine: cfg.Engine, cookie: cookie}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/reset-password", s.handleResetPassword)
	mux.HandleFunc("POST /auth/verify-email", s.handleVerifyEmail)
	mux.HandleFunc("GET /auth/verify-email", s.handleVerifyEmailLink)
	mux.Handle("GET /auth/me", s.RequireAuth(http.HandlerFunc(s.handleMe)))
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return mux
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    token,
		Path:     s.cookie.Path,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: s.cookie.SameSite,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     s.cookie.Path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: s.cookie.SameSite,
	})
}

// refreshTokenFrom prefers an explicit body token over the cookie.
func (s *Server) refreshTokenFrom(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	if c, err := r.Cookie(s.cookie.Name); err == nil {
		return c.Value
	}
	return ""
}
