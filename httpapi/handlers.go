package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/avdeyev/authkit"
)

var errNoEngine = errors.New("engine is required")

const maxBodyBytes = 64 << 10

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type resetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code,omitempty"`
	NewPassword string `json:"new_password,omitempty"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Token string `json:"token,omitempty"`
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int64           `json:"expires_in"`
	User        authkit.Profile `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Register(r.Context(), authkit.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := map[string]any{
		"user_id":               result.UserID,
		"verification_required": result.VerificationRequired,
	}
	if result.DevVerificationToken != "" {
		resp["dev_verification_token"] = result.DevVerificationToken
	}
	if result.Session != nil {
		s.setRefreshCookie(w, result.Session.RefreshToken, result.Session.RefreshExpiresAt)
		resp["session"] = s.tokenResponse(*result.Session)
	}

	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	pair, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	s.writeJSON(w, http.StatusOK, s.tokenResponseWithRefresh(pair))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}

	token := s.refreshTokenFrom(r, req.RefreshToken)
	if token == "" {
		s.writeErrorCode(w, http.StatusUnauthorized, "refresh_invalid", "missing refresh token")
		return
	}

	pair, err := s.engine.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, authkit.ErrRefreshInvalid) || errors.Is(err, authkit.ErrEmailNotVerified) {
			s.clearRefreshCookie(w)
		}
		s.writeError(w, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	s.writeJSON(w, http.StatusOK, s.tokenResponseWithRefresh(pair))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}

	token := s.refreshTokenFrom(r, req.RefreshToken)
	if token != "" {
		if err := s.engine.Logout(r.Context(), token); err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.clearRefreshCookie(w)
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleResetPassword serves both halves of the reset flow: a body with
// only an email requests a code, a body with code and new_password
// confirms it.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Code == "" && req.NewPassword == "" {
		result, err := s.engine.RequestPasswordReset(r.Context(), req.Email)
		if err != nil {
			s.writeError(w, err)
			return
		}

		resp := map[string]any{
			"message":            "if the account exists, a reset code has been sent",
			"expires_in_seconds": int64(result.CodeTTL / time.Second),
		}
		if result.DevCode != "" {
			resp["dev_code"] = result.DevCode
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	if req.Code == "" || req.NewPassword == "" {
		s.writeErrorCode(w, http.StatusBadRequest, "bad_request", "code and new_password are both required")
		return
	}

	if err := s.engine.ConfirmPasswordReset(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		s.writeError(w, err)
		return
	}

	s.clearRefreshCookie(w)
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "password updated"})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.verifyEmail(w, r, req.Email, req.Token)
}

// handleVerifyEmailLink serves the clickable link from verification
// emails: GET /auth/verify-email?email=...&token=...
func (s *Server) handleVerifyEmailLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.verifyEmail(w, r, q.Get("email"), q.Get("token"))
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request, email, token string) {
	if token == "" {
		if email == "" {
			s.writeErrorCode(w, http.StatusBadRequest, "bad_request", "email is required")
			return
		}

		devToken, err := s.engine.RequestEmailVerification(r.Context(), email)
		if err != nil {
			s.writeError(w, err)
			return
		}

		resp := map[string]any{"message": "verification email sent"}
		if devToken != "" {
			resp["dev_token"] = devToken
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	if err := s.engine.VerifyEmail(r.Context(), email, token); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"message": "email verified"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		s.writeErrorCode(w, http.StatusUnauthorized, "token_invalid", "unauthorized")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"user_id": claims.UserID,
		"email":   claims.Email,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.writeErrorCode(w, http.StatusServiceUnavailable, "unavailable", "backend unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) tokenResponse(pair authkit.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(pair.AccessExpiresAt) / time.Second),
		User:        pair.User,
	}
}

// tokenResponseWithRefresh additionally echoes the refresh token in the
// body for clients that cannot use cookies.
func (s *Server) tokenResponseWithRefresh(pair authkit.TokenPair) map[string]any {
	base := s.tokenResponse(pair)
	return map[string]any{
		"access_token":  base.AccessToken,
		"token_type":    base.TokenType,
		"expires_in":    base.ExpiresIn,
		"refresh_token": pair.RefreshToken,
		"user":          base.User,
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return false
	}
	return true
}

// decodeOptional tolerates an empty body; refresh and logout accept
// cookie-only requests.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return s.decode(w, r, dst)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
		"code":  code,
	})
}

// writeError maps engine errors onto the HTTP error taxonomy. Unclassified
// errors become opaque 500s; detail stays in the audit trail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var lockout *authkit.LockoutError

	switch {
	case errors.As(err, &lockout):
		seconds := int64(lockout.RetryAfter/time.Second) + 1
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		s.writeErrorCode(w, http.StatusTooManyRequests, "account_locked", "account temporarily locked")
	case errors.Is(err, authkit.ErrInvalidCredentials):
		s.writeErrorCode(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, authkit.ErrRefreshReuse):
		s.writeErrorCode(w, http.StatusUnauthorized, "refresh_invalid", "invalid or expired refresh token")
	case errors.Is(err, authkit.ErrRefreshInvalid):
		s.writeErrorCode(w, http.StatusUnauthorized, "refresh_invalid", "invalid or expired refresh token")
	case errors.Is(err, authkit.ErrTokenExpired):
		s.writeErrorCode(w, http.StatusUnauthorized, "token_expired", "access token expired")
	case errors.Is(err, authkit.ErrTokenInvalid):
		s.writeErrorCode(w, http.StatusUnauthorized, "token_invalid", "invalid access token")
	case errors.Is(err, authkit.ErrEmailNotVerified):
		s.writeErrorCode(w, http.StatusForbidden, "email_not_verified", "email not verified")
	case errors.Is(err, authkit.ErrEmailAlreadyVerified):
		s.writeErrorCode(w, http.StatusConflict, "already_verified", "email already verified")
	case errors.Is(err, authkit.ErrDuplicateEmail):
		s.writeErrorCode(w, http.StatusConflict, "duplicate_email", "email already registered")
	case errors.Is(err, authkit.ErrInvalidEmail):
		s.writeErrorCode(w, http.StatusBadRequest, "invalid_email", "invalid email address")
	case errors.Is(err, authkit.ErrWeakPassword):
		s.writeErrorCode(w, http.StatusBadRequest, "weak_password", "password does not meet policy")
	case errors.Is(err, authkit.ErrCodeInvalid):
		s.writeErrorCode(w, http.StatusBadRequest, "code_invalid", "invalid or expired code")
	case errors.Is(err, authkit.ErrVerificationDisabled):
		s.writeErrorCode(w, http.StatusNotFound, "verification_disabled", "email verification disabled")
	case errors.Is(err, authkit.ErrBackendUnavailable):
		s.writeErrorCode(w, http.StatusServiceUnavailable, "unavailable", "backend unavailable")
	default:
		s.writeErrorCode(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
