package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notilink/notilink/internal/config"
	"github.com/notilink/notilink/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidChannel = errors.New("invalid or missing channel")
	ErrRateLimited    = errors.New("too many link attempts")
)

type LinkStatus string

const (
	StatusPending LinkStatus = "pending"
	StatusDone    LinkStatus = "done"
	StatusExpired LinkStatus = "expired"
)

// VerificationStore holds pending link attempts keyed by nonce.
type VerificationStore interface {
	Insert(ctx context.Context, req models.VerificationRequest) error
	Find(ctx context.Context, nonce, userID string) (*models.VerificationRequest, error)
	Delete(ctx context.Context, nonce string) error
}

// ConfirmationStore holds links the bot integrations have confirmed.
type ConfirmationStore interface {
	Insert(ctx context.Context, link models.ConfirmedChannelLink) error
	FindRecent(ctx context.Context, userID string, since time.Time) (*models.ConfirmedChannelLink, error)
}

// StartLimiter caps how often a user may begin a new link attempt.
type StartLimiter interface {
	AllowStart(ctx context.Context, userID string) bool
}

type LinkService struct {
	verifications VerificationStore
	confirmations ConfirmationStore
	limiter       StartLimiter
	cfg           *config.LinkConfig
	logger        *logrus.Logger
	now           func() time.Time
}

// NewLinkService wires the handshake state machine. limiter may be nil to
// disable rate limiting.
func NewLinkService(
	verifications VerificationStore,
	confirmations ConfirmationStore,
	limiter StartLimiter,
	cfg *config.LinkConfig,
	logger *logrus.Logger,
) *LinkService {
	return &LinkService{
		verifications: verifications,
		confirmations: confirmations,
		limiter:       limiter,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

type StartResult struct {
	Nonce    string `json:"nonce"`
	Command  string `json:"command"`
	DeepLink string `json:"deepLink"`
}

type StatusResult struct {
	Status LinkStatus `json:"status"`
	Link   string     `json:"link,omitempty"`
}

// Start creates a fresh verification request for the user and returns the
// nonce together with the bot command and deep link the user needs to
// complete the handshake out-of-band.
func (s *LinkService) Start(ctx context.Context, userID string, channel models.ChannelKind) (*StartResult, error) {
	if !channel.Valid() {
		return nil, ErrInvalidChannel
	}

	if s.limiter != nil && !s.limiter.AllowStart(ctx, userID) {
		return nil, ErrRateLimited
	}

	now := s.now()
	nonce := uuid.New().String()

	req := models.VerificationRequest{
		Nonce:     nonce,
		UserID:    userID,
		Channel:   channel,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.VerifyExpiry),
	}

	if err := s.verifications.Insert(ctx, req); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"channel": channel,
		}).Error("Failed to store verification request")
		return nil, fmt.Errorf("failed to start link verification: %w", err)
	}

	command := "/link " + nonce

	return &StartResult{
		Nonce:    nonce,
		Command:  command,
		DeepLink: s.deepLink(channel, nonce, command),
	}, nil
}

// Status resolves a polling check for the given nonce.
//
// The confirming bot may delete the verification row before the client ever
// polls, so absence of the row is not an error; the recent-confirmation
// lookup below covers that ordering. A confirmation that carries a nonce only
// resolves the attempt it names.
func (s *LinkService) Status(ctx context.Context, userID, nonce string) (*StatusResult, error) {
	now := s.now()

	req, err := s.verifications.Find(ctx, nonce, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up verification request: %w", err)
	}

	if req != nil && req.Expired(now) {
		if err := s.verifications.Delete(ctx, nonce); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"nonce":   nonce,
			}).Error("Failed to delete expired verification request")
			return nil, fmt.Errorf("failed to clean up expired request: %w", err)
		}
		return &StatusResult{Status: StatusExpired}, nil
	}

	conf, err := s.confirmations.FindRecent(ctx, userID, now.Add(-s.cfg.VerifyExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to look up confirmed link: %w", err)
	}

	if conf != nil && (conf.Nonce == "" || conf.Nonce == nonce) {
		if req == nil || req.Channel == conf.Channel {
			return &StatusResult{Status: StatusDone, Link: conf.Link}, nil
		}
	}

	return &StatusResult{Status: StatusPending}, nil
}

type ConfirmInput struct {
	UserID  string
	Channel models.ChannelKind
	Link    string
	Nonce   string
}

// Confirm records a link the bot integration validated out-of-band and
// consumes the verification request it answered.
func (s *LinkService) Confirm(ctx context.Context, in ConfirmInput) error {
	if !in.Channel.Valid() {
		return ErrInvalidChannel
	}

	link := models.ConfirmedChannelLink{
		UserID:     in.UserID,
		Channel:    in.Channel,
		Link:       in.Link,
		Nonce:      in.Nonce,
		VerifiedAt: s.now(),
	}

	if err := s.confirmations.Insert(ctx, link); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": in.UserID,
			"channel": in.Channel,
		}).Error("Failed to store confirmed channel link")
		return fmt.Errorf("failed to confirm link: %w", err)
	}

	if in.Nonce != "" {
		// The confirmation row is authoritative; a stale verification row is
		// cleaned up lazily by the next status check if this delete fails.
		if err := s.verifications.Delete(ctx, in.Nonce); err != nil {
			s.logger.WithError(err).WithField("nonce", in.Nonce).Warn("Failed to consume verification request")
		}
	}

	return nil
}

func (s *LinkService) deepLink(channel models.ChannelKind, nonce, command string) string {
	switch channel {
	case models.ChannelTelegram:
		return fmt.Sprintf("https://t.me/%s?start=link_%s", s.cfg.TelegramBot, nonce)
	case models.ChannelWhatsApp:
		// wa.me expects %20 for spaces, not '+'
		encoded := strings.ReplaceAll(url.QueryEscape(command), "+", "%20")
		return fmt.Sprintf("https://wa.me/%s?text=%s", s.cfg.WhatsAppPhone, encoded)
	}
	return ""
}
