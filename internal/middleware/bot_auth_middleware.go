package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// BotAuthMiddleware guards the internal confirm endpoint. Bot integrations
// send a shared API key in X-Api-Key; only its bcrypt hash is configured on
// the server side.
type BotAuthMiddleware struct {
	keyHash []byte
	logger  *logrus.Logger
}

func NewBotAuthMiddleware(keyHash string, logger *logrus.Logger) *BotAuthMiddleware {
	return &BotAuthMiddleware{
		keyHash: []byte(keyHash),
		logger:  logger,
	}
}

func (m *BotAuthMiddleware) RequireBotKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Api-Key")
		if len(m.keyHash) == 0 || key == "" {
			m.respondUnauthorized(w)
			return
		}

		if err := bcrypt.CompareHashAndPassword(m.keyHash, []byte(key)); err != nil {
			m.logger.WithField("remote", r.RemoteAddr).Warn("Rejected bot request with bad API key")
			m.respondUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *BotAuthMiddleware) respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid bot API key"}}`))
}
