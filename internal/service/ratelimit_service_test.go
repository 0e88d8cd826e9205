package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notilink/notilink/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeCounter struct {
	count int64
	err   error
}

func (f *fakeCounter) Bump(context.Context, string, time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.count++
	return f.count, nil
}

func TestAllowStartWithinLimit(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := &config.RateLimitConfig{StartMax: 2, StartWindow: time.Minute}
	svc := NewRateLimitService(&fakeCounter{}, cfg, logger)

	assert.True(t, svc.AllowStart(context.Background(), "user-1"))
	assert.True(t, svc.AllowStart(context.Background(), "user-1"))
	assert.False(t, svc.AllowStart(context.Background(), "user-1"))
}

func TestAllowStartFailsOpen(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := &config.RateLimitConfig{StartMax: 1, StartWindow: time.Minute}
	svc := NewRateLimitService(&fakeCounter{err: errors.New("redis down")}, cfg, logger)

	assert.True(t, svc.AllowStart(context.Background(), "user-1"))
}
