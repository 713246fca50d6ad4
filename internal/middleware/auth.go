package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	logpkg "github.com/benvon/nextstep/internal/logger"
	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/request"
	"github.com/benvon/nextstep/internal/services/session"
	"go.uber.org/zap"
)

// TokenVerifier validates a session token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.JWTClaims, error)
}

// UserFromContext extracts the authenticated caller from the request context
func UserFromContext(r *http.Request) *models.User {
	return request.UserFromContext(r)
}

// sessionToken reads the bearer token, falling back to the session cookie
func sessionToken(r *http.Request, cookieName string) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

// Auth creates authentication middleware that validates session tokens
func Auth(verifier TokenVerifier, cookieName string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := sessionToken(r, cookieName)
			if !ok {
				respondError(w, http.StatusUnauthorized, "Missing or malformed session token")
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Debug("session_verification_failed",
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("error", logpkg.SanitizeError(err)),
				)
				respondError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}

			ctx := request.WithUser(r.Context(), session.UserFromClaims(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     http.StatusText(status),
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	_ = json.NewEncoder(w).Encode(response)
}
