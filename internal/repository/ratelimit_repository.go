package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimitRepository counts link-start attempts per user in a fixed Redis
// window. Failures are surfaced so the caller can decide to fail open.
type RateLimitRepository struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRateLimitRepository(client *redis.Client, logger *logrus.Logger) *RateLimitRepository {
	return &RateLimitRepository{
		client: client,
		logger: logger,
	}
}

// Bump increments the user's counter and returns the count within the
// current window. The key expires with the window, so an idle user resets.
func (r *RateLimitRepository) Bump(ctx context.Context, userID string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("linkstart:%s", userID)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		r.logger.WithError(err).Error("Failed to increment rate limit counter")
		return 0, fmt.Errorf("failed to bump rate limit: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return count, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count, nil
}
