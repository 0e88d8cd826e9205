package service

import (
	"context"
	"time"

	"github.com/notilink/notilink/internal/config"
	"github.com/sirupsen/logrus"
)

// StartCounter is the storage side of the limiter; implemented by the Redis
// rate-limit repository.
type StartCounter interface {
	Bump(ctx context.Context, userID string, window time.Duration) (int64, error)
}

// RateLimitService enforces a fixed-window cap on link-start attempts per
// user. Counter failures fail open: a broken Redis must not take the link
// flow down with it.
type RateLimitService struct {
	counter StartCounter
	cfg     *config.RateLimitConfig
	logger  *logrus.Logger
}

func NewRateLimitService(counter StartCounter, cfg *config.RateLimitConfig, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{
		counter: counter,
		cfg:     cfg,
		logger:  logger,
	}
}

func (s *RateLimitService) AllowStart(ctx context.Context, userID string) bool {
	count, err := s.counter.Bump(ctx, userID, s.cfg.StartWindow)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Rate limit counter unavailable, allowing request")
		return true
	}

	return count <= int64(s.cfg.StartMax)
}
