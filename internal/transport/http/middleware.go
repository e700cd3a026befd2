package httptransport

import (
	"log/slog"
	"net/http"
	"strings"

	"sellsync/internal/jwttoken"
)

// TokenValidator validates bearer tokens for the protected endpoints.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "missing bearer token",
				})
				return
			}
			if validator == nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"error": "token validation unavailable",
				})
				return
			}
			if _, err := validator.ValidateToken(strings.TrimPrefix(authHeader, bearerPrefix)); err != nil {
				logger.Warn("rejected token", "path", r.URL.Path, "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "invalid token",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
