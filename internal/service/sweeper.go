package service

import (
	"context"
	"time"

	"github.com/notilink/notilink/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SweepStore is the slice of the verification store the sweeper needs.
type SweepStore interface {
	ListExpired(ctx context.Context, now time.Time) ([]models.VerificationRequest, error)
	Delete(ctx context.Context, nonce string) error
}

// Sweeper periodically removes expired verification requests. Status checks
// already clean up lazily; the sweep only reclaims rows nobody polls again.
type Sweeper struct {
	store  SweepStore
	logger *logrus.Logger
	cron   *cron.Cron
	now    func() time.Time
}

func NewSweeper(store SweepStore, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		logger: logger,
		cron:   cron.New(),
		now:    time.Now,
	}
}

func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("schedule", schedule).Info("Verification sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	s.cron.Stop()
}

func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.store.ListExpired(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list expired verification requests")
		return
	}

	removed := 0
	for _, req := range expired {
		if err := s.store.Delete(ctx, req.Nonce); err != nil {
			s.logger.WithError(err).WithField("nonce", req.Nonce).Warn("Failed to sweep verification request")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.WithField("count", removed).Info("Swept expired verification requests")
	}
}
