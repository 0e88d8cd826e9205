package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/notilink/notilink/internal/config"
	"github.com/sirupsen/logrus"
)

// SessionService verifies session tokens minted by the hosted auth backend.
// This service never issues tokens; it only validates them and extracts the
// caller's identity claims.
type SessionService struct {
	secretKey []byte
	logger    *logrus.Logger
}

func NewSessionService(cfg *config.AuthConfig, logger *logrus.Logger) (*SessionService, error) {
	secretKey := []byte(cfg.JWTSecret)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &SessionService{
		secretKey: secretKey,
		logger:    logger,
	}, nil
}

type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the stable user identifier carried by the session.
func (c *Claims) UserID() string {
	return c.Subject
}

func (s *SessionService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("token carries no subject")
	}

	return claims, nil
}
