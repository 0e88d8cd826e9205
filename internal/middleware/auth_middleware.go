package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/notilink/notilink/internal/service"
	"github.com/sirupsen/logrus"
)

type AuthMiddleware struct {
	sessions   *service.SessionService
	cookieName string
	logger     *logrus.Logger
}

func NewAuthMiddleware(sessions *service.SessionService, cookieName string, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions:   sessions,
		cookieName: cookieName,
		logger:     logger,
	}
}

// RequireSession authenticates the request from the session cookie, falling
// back to a bearer token for non-browser callers.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := m.extractToken(r)
		if tokenString == "" {
			m.respondUnauthorized(w, "Not authenticated")
			return
		}

		claims, err := m.sessions.VerifyToken(tokenString)
		if err != nil {
			m.logger.WithError(err).Debug("Session verification failed")
			m.respondUnauthorized(w, "Invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), "claims", claims)
		ctx = context.WithValue(ctx, "user_id", claims.UserID())

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}

	return ""
}

func (m *AuthMiddleware) respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"` + message + `"}}`))
}
