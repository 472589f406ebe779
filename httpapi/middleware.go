package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/avdeyev/authkit"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the validated access claims injected by
// [Server.RequireAuth].
func ClaimsFromContext(ctx context.Context) (authkit.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(authkit.Claims)
	return claims, ok
}

// RequireAuth validates the Authorization bearer token and injects its
// claims into the request context. All decisions are delegated to the
// engine; this is a pass/reject adapter only.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			s.writeErrorCode(w, http.StatusUnauthorized, "token_invalid", "unauthorized")
			return
		}

		claims, err := s.engine.ValidateAccess(token)
		if err != nil {
			s.writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
